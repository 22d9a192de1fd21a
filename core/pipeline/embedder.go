package pipeline

import (
	"fmt"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/medgrain/clinctx/helper"
)

// EmbeddingDim is the dimension produced by the default embedding model
const EmbeddingDim = 384

// DefaultEmbedder creates an embedder using a sentence transformer model.
// Uses all-MiniLM-L6-v2, which produces 384-dimensional embeddings.
func DefaultEmbedder() (EmbedFunc, error) {
	// Prepare model (download if needed)
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return func(text string) ([]float32, error) {
		result, err := sentencePipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}

		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}

		return result.Embeddings[0], nil
	}, nil
}

// EmbedResult is the outcome of an asynchronous embedding call
type EmbedResult struct {
	Embedding []float32
	Err       error
}

// EmbedAsync runs a blocking embedder off the caller's goroutine
func EmbedAsync(embed EmbedFunc, text string) <-chan EmbedResult {
	out := make(chan EmbedResult, 1)
	go func() {
		defer close(out)
		embedding, err := embed(text)
		out <- EmbedResult{Embedding: embedding, Err: err}
	}()
	return out
}

// LazyEmbedder defers model loading to the first embedding call. The load is
// single-flight guarded: concurrent first callers wait for one initialization,
// and a failed load is cached so it is not re-attempted.
type LazyEmbedder struct {
	build func() (EmbedFunc, error)
	once  sync.Once
	embed EmbedFunc
	err   error
}

// NewLazyEmbedder wraps an embedder constructor for on-demand loading
func NewLazyEmbedder(build func() (EmbedFunc, error)) *LazyEmbedder {
	return &LazyEmbedder{build: build}
}

// Embed loads the model on first use and delegates to it
func (l *LazyEmbedder) Embed(text string) ([]float32, error) {
	l.once.Do(func() {
		l.embed, l.err = l.build()
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.embed(text)
}

// Func exposes the lazy embedder as a plain EmbedFunc
func (l *LazyEmbedder) Func() EmbedFunc {
	return l.Embed
}
