package synthesis

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/medgrain/clinctx/model"
)

// NoInformationSentinel is returned as the full context when nothing relevant
// was retrieved
const NoInformationSentinel = "No relevant information found in the patient's record."

// DefaultSystemPrompt frames the model as a clinical assistant grounded in the
// supplied record context
const DefaultSystemPrompt = "You are a clinical assistant. Answer the question using only the patient record context below. " +
	"If the context does not contain the answer, say so. Cite the source type and date of the records you use."

const (
	contextHeader = "--- PATIENT RECORD CONTEXT ---"
	contextFooter = "--- END PATIENT RECORD CONTEXT ---"
)

// sourceLabels are the human-readable section labels per source type
var sourceLabels = map[model.SourceType]string{
	model.SourceLabResult:  "LAB RESULT",
	model.SourceMedication: "MEDICATION",
	model.SourceEncounter:  "ENCOUNTER",
	model.SourceDocument:   "DOCUMENT",
	model.SourceVitalSign:  "VITAL SIGN",
}

// ContextSynthesizer packs ranked results into a token-budgeted context block.
// It never fails; empty input produces the no-information sentinel.
type ContextSynthesizer struct {
	log *slog.Logger
}

// NewContextSynthesizer creates a new synthesizer
func NewContextSynthesizer(logger *slog.Logger) *ContextSynthesizer {
	return &ContextSynthesizer{log: logger}
}

// Synthesize formats ranked results in order, appending each while the running
// token estimate stays within maxTokens. The fill is greedy; once a block
// would exceed the budget, synthesis stops with what fit so far.
func (s *ContextSynthesizer) Synthesize(ranked []*model.RankedResult, analysis model.QueryAnalysis, maxTokens int) model.SynthesizedContext {
	if len(ranked) == 0 {
		return model.SynthesizedContext{
			FullContext:     NoInformationSentinel,
			TotalChunksUsed: 0,
		}
	}

	var builder strings.Builder
	sections := make(map[model.SourceType]string)
	usedTokens := 0
	used := 0

	for _, entry := range ranked {
		block := formatBlock(entry.Result)
		blockTokens := estimateTokens(block)
		if usedTokens+blockTokens > maxTokens {
			break
		}

		builder.WriteString(block)
		sections[entry.Result.SourceType] += block
		usedTokens += blockTokens
		used++
	}

	if used == 0 {
		return model.SynthesizedContext{
			FullContext:     NoInformationSentinel,
			TotalChunksUsed: 0,
		}
	}

	if s.log != nil {
		s.log.Debug("Context synthesized",
			slog.Int("chunks_used", used),
			slog.Int("chunks_available", len(ranked)),
			slog.Int("estimated_tokens", usedTokens))
	}

	return model.SynthesizedContext{
		FullContext:     strings.TrimRight(builder.String(), "\n"),
		TotalChunksUsed: used,
		TotalTokens:     usedTokens,
		Sections:        sections,
	}
}

// CreatePromptContext wraps a synthesized context with a system preamble and a
// delimited context section. An empty systemPrompt selects the default.
func (s *ContextSynthesizer) CreatePromptContext(synthesized model.SynthesizedContext, systemPrompt string) string {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return systemPrompt + "\n\n" +
		contextHeader + "\n" +
		synthesized.FullContext + "\n" +
		contextFooter
}

// formatBlock renders one result with its source-type label and date
func formatBlock(result *model.RetrievalResult) string {
	label, ok := sourceLabels[result.SourceType]
	if !ok {
		label = strings.ToUpper(string(result.SourceType))
	}
	if result.ContextDate != nil {
		label = fmt.Sprintf("%s | %s", label, result.ContextDate.Format("2006-01-02"))
	}
	return fmt.Sprintf("[%s]\n%s\n\n", label, result.Content)
}

// estimateTokens is a monotonic length proxy, roughly four characters per
// token for English clinical text
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
