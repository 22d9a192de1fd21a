package ranking

import (
	"fmt"
	"testing"
	"unicode/utf8"

	"github.com/medgrain/clinctx/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossEncoderRerank(t *testing.T) {
	config := model.DefaultEngineConfig()

	t.Run("Scores and sorts results", func(t *testing.T) {
		scores := map[string]float64{
			"low passage":  0.2,
			"high passage": 0.9,
		}
		reranker := NewCrossEncoderReranker(func() (ScoreFunc, error) {
			return func(query string, passages []string) ([]float64, error) {
				out := make([]float64, len(passages))
				for i, passage := range passages {
					out[i] = scores[passage]
				}
				return out, nil
			}, nil
		}, config, nil)

		results := []*model.RetrievalResult{
			{ID: "a", Content: "low passage", CombinedScore: 0.8},
			{ID: "b", Content: "high passage", CombinedScore: 0.4},
		}

		reranked := reranker.Rerank("question", results)

		require.Len(t, reranked, 2)
		assert.Equal(t, "b", reranked[0].ID, "Expected the higher cross-encoder score first")
		require.NotNil(t, reranked[0].RerankScore, "Expected rerank score populated")
		assert.InDelta(t, 0.9, *reranked[0].RerankScore, 0.001)
	})

	t.Run("Load failure is cached and yields empty lists", func(t *testing.T) {
		attempts := 0
		reranker := NewCrossEncoderReranker(func() (ScoreFunc, error) {
			attempts++
			return nil, fmt.Errorf("model file missing")
		}, config, nil)

		results := []*model.RetrievalResult{{ID: "a", Content: "text"}}

		first := reranker.Rerank("question", results)
		second := reranker.Rerank("question", results)

		assert.Empty(t, first, "Expected empty list on load failure")
		assert.Empty(t, second, "Expected empty list on every later call")
		assert.Equal(t, 1, attempts, "Expected the load to be attempted exactly once")
	})

	t.Run("Inference failure disables the reranker", func(t *testing.T) {
		calls := 0
		reranker := NewCrossEncoderReranker(func() (ScoreFunc, error) {
			return func(query string, passages []string) ([]float64, error) {
				calls++
				return nil, fmt.Errorf("inference blew up")
			}, nil
		}, config, nil)

		results := []*model.RetrievalResult{{ID: "a", Content: "text"}}

		first := reranker.Rerank("question", results)
		second := reranker.Rerank("question", results)

		assert.Empty(t, first, "Expected empty list on inference failure")
		assert.Empty(t, second, "Expected the failure to be cached")
		assert.Equal(t, 1, calls, "Expected no further inference attempts")
	})

	t.Run("Content is capped before scoring", func(t *testing.T) {
		var seen []string
		reranker := NewCrossEncoderReranker(func() (ScoreFunc, error) {
			return func(query string, passages []string) ([]float64, error) {
				seen = append(seen, passages...)
				return make([]float64, len(passages)), nil
			}, nil
		}, config, nil)

		long := make([]byte, config.RerankContentCap*2)
		for i := range long {
			long[i] = 'x'
		}
		results := []*model.RetrievalResult{{ID: "a", Content: string(long)}}

		reranker.Rerank("question", results)

		require.Len(t, seen, 1)
		assert.Len(t, seen[0], config.RerankContentCap, "Expected passage truncated to the content cap")
	})

	t.Run("Capping never splits a multi-byte character", func(t *testing.T) {
		tight := config
		tight.RerankContentCap = 8

		var seen []string
		reranker := NewCrossEncoderReranker(func() (ScoreFunc, error) {
			return func(query string, passages []string) ([]float64, error) {
				seen = append(seen, passages...)
				return make([]float64, len(passages)), nil
			}, nil
		}, tight, nil)

		// The two-byte degree sign straddles the 8-byte cap
		content := "1234567" + "°" + "trailing"
		results := []*model.RetrievalResult{{ID: "a", Content: content}}

		reranker.Rerank("question", results)

		require.Len(t, seen, 1)
		assert.True(t, utf8.ValidString(seen[0]), "Expected a valid UTF-8 passage after capping")
		assert.LessOrEqual(t, len(seen[0]), tight.RerankContentCap, "Expected the cap still honored")
		assert.Equal(t, "1234567", seen[0], "Expected the cut backed up to the rune boundary")
	})

	t.Run("Scoring runs in batches", func(t *testing.T) {
		smallBatches := config
		smallBatches.RerankBatchSize = 2

		var batchSizes []int
		reranker := NewCrossEncoderReranker(func() (ScoreFunc, error) {
			return func(query string, passages []string) ([]float64, error) {
				batchSizes = append(batchSizes, len(passages))
				return make([]float64, len(passages)), nil
			}, nil
		}, smallBatches, nil)

		results := make([]*model.RetrievalResult, 5)
		for i := range results {
			results[i] = &model.RetrievalResult{ID: fmt.Sprintf("r%d", i), Content: "text"}
		}

		reranked := reranker.Rerank("question", results)

		assert.Len(t, reranked, 5)
		assert.Equal(t, []int{2, 2, 1}, batchSizes, "Expected batches of the configured size")
	})

	t.Run("Empty input yields empty output without loading", func(t *testing.T) {
		attempts := 0
		reranker := NewCrossEncoderReranker(func() (ScoreFunc, error) {
			attempts++
			return nil, nil
		}, config, nil)

		reranked := reranker.Rerank("question", nil)

		assert.Empty(t, reranked)
		assert.Equal(t, 0, attempts, "Expected no model load for empty input")
	})
}
