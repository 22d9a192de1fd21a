package pipeline

import (
	"fmt"
	"strings"
)

// SentenceChunker creates a chunker that groups sentences into chunks of at
// most maxSentencesPerChunk. Clinical notes are dense, so small chunks keep
// retrieval granular.
func SentenceChunker(maxSentencesPerChunk int) ChunkFunc {
	return func(text string) ([]string, error) {
		if maxSentencesPerChunk <= 0 {
			return nil, fmt.Errorf("max sentences per chunk must be positive")
		}

		if strings.TrimSpace(text) == "" {
			return []string{}, nil
		}

		text = strings.ReplaceAll(text, "! ", "!|")
		text = strings.ReplaceAll(text, "? ", "?|")
		text = strings.ReplaceAll(text, ". ", ".|")

		var sentences []string
		for _, s := range strings.Split(text, "|") {
			s = strings.TrimSpace(s)
			if s != "" {
				sentences = append(sentences, s)
			}
		}

		var chunks []string
		var current []string
		for _, sentence := range sentences {
			current = append(current, sentence)
			if len(current) >= maxSentencesPerChunk {
				chunks = append(chunks, strings.Join(current, " "))
				current = nil
			}
		}
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
		}

		return chunks, nil
	}
}

// SectionChunker creates a chunker that splits on blank lines, one chunk per
// note section (HPI, assessment, plan, ...). Sections longer than maxChars
// are split further by sentences.
func SectionChunker(maxChars int) ChunkFunc {
	sentenceFallback := SentenceChunker(3)

	return func(text string) ([]string, error) {
		if maxChars <= 0 {
			return nil, fmt.Errorf("max chars must be positive")
		}

		var chunks []string
		for _, section := range strings.Split(text, "\n\n") {
			section = strings.TrimSpace(section)
			if section == "" {
				continue
			}
			if len(section) <= maxChars {
				chunks = append(chunks, section)
				continue
			}
			split, err := sentenceFallback(section)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, split...)
		}

		return chunks, nil
	}
}

// DefaultChunker returns the chunker used when callers have no preference
func DefaultChunker() ChunkFunc {
	return SectionChunker(500)
}
