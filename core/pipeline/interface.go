package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/medgrain/clinctx/model"
)

// ChunkFunc is a function that splits record text into retrievable chunks
type ChunkFunc func(text string) ([]string, error)

// EmbedFunc is a function that generates a normalized embedding for text.
// It is a blocking call; use LazyEmbedder for deferred model loading and
// EmbedAsync for channel-based callers.
type EmbedFunc func(text string) ([]float32, error)

// EntityTagFunc extracts entity names from record text, used to tag chunk
// metadata at ingestion time
type EntityTagFunc func(text string) ([]string, error)

// Pipeline turns raw patient record text into embedded record chunks
type Pipeline struct {
	Chunker      ChunkFunc
	Embedder     EmbedFunc
	EntityTagger EntityTagFunc // Optional
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// SetEntityTagger sets the optional entity tagging function
func (p *Pipeline) SetEntityTagger(tagger EntityTagFunc) {
	p.EntityTagger = tagger
}

// Process splits text into chunks, embeds each, and attaches record metadata.
// Entity tagging failures are ignored; a record chunk without tags is still
// retrievable.
func (p *Pipeline) Process(text string, patientRID uuid.UUID, sourceType model.SourceType, sourceID string, eventDate *time.Time) ([]*model.RecordChunk, error) {
	contents, err := p.Chunker(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]*model.RecordChunk, 0, len(contents))
	for i, content := range contents {
		embedding, err := p.Embedder(content)
		if err != nil {
			return nil, err
		}

		metadata := model.Metadata{"chunk_index": i}
		if p.EntityTagger != nil {
			if entities, err := p.EntityTagger(content); err == nil && len(entities) > 0 {
				metadata["entities"] = entities
			}
		}

		chunks = append(chunks, &model.RecordChunk{
			PatientRID: patientRID,
			SourceType: sourceType,
			SourceID:   sourceID,
			Content:    content,
			ChunkType:  "narrative",
			Embedding:  embedding,
			EventDate:  eventDate,
			Metadata:   metadata,
		})
	}

	return chunks, nil
}
