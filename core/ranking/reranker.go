package ranking

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/medgrain/clinctx/helper"
	"github.com/medgrain/clinctx/model"
)

// ScoreFunc scores each passage against the query, returning one value in
// [0,1] per passage
type ScoreFunc func(query string, passages []string) ([]float64, error)

// DefaultCrossEncoder creates a pairwise scorer backed by a cross-encoder
// model. Query and passage are joined with the model's separator token; the
// single output logit is sigmoid-normalized by the pipeline.
func DefaultCrossEncoder() (ScoreFunc, error) {
	modelName := "cross-encoder/ms-marco-MiniLM-L-6-v2"
	modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "cross-encoder-pipeline",
		Options: []hugot.TextClassificationOption{
			pipelines.WithSigmoid(),
		},
	}
	scoringPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create scoring pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create scoring pipeline: %w", err)
	}

	return func(query string, passages []string) ([]float64, error) {
		inputs := make([]string, len(passages))
		for i, passage := range passages {
			inputs[i] = query + " [SEP] " + passage
		}

		result, err := scoringPipeline.RunPipeline(inputs)
		if err != nil {
			return nil, fmt.Errorf("failed to run cross-encoder: %w", err)
		}
		if len(result.ClassificationOutputs) != len(passages) {
			return nil, fmt.Errorf("expected %d scores, got %d", len(passages), len(result.ClassificationOutputs))
		}

		scores := make([]float64, len(passages))
		for i, outputs := range result.ClassificationOutputs {
			if len(outputs) == 0 {
				return nil, fmt.Errorf("no score for passage %d", i)
			}
			scores[i] = clamp01(float64(outputs[0].Score))
		}
		return scores, nil
	}, nil
}

// CrossEncoderReranker is an optional second ranking stage. The scoring model
// is loaded lazily on first use with a single-flight guard; any load or
// inference failure is cached and every later call returns an empty list, so
// callers fall back to heuristic ranking. It never returns an error.
type CrossEncoderReranker struct {
	build  func() (ScoreFunc, error)
	once   sync.Once
	score  ScoreFunc
	config model.EngineConfig
	log    *slog.Logger

	mu      sync.Mutex
	failure error
}

// NewCrossEncoderReranker wraps a scorer constructor for on-demand loading
func NewCrossEncoderReranker(build func() (ScoreFunc, error), config model.EngineConfig, logger *slog.Logger) *CrossEncoderReranker {
	return &CrossEncoderReranker{
		build:  build,
		config: config,
		log:    logger,
	}
}

// Rerank scores the results against the query and returns them with rerank
// scores set, sorted descending. An empty list means the reranker is
// unavailable; the input order then stands.
func (r *CrossEncoderReranker) Rerank(query string, results []*model.RetrievalResult) []*model.RetrievalResult {
	if len(results) == 0 {
		return []*model.RetrievalResult{}
	}

	r.once.Do(func() {
		score, err := r.build()
		if err != nil {
			r.setFailure(helper.NewError("load cross-encoder", err))
			return
		}
		r.score = score
	})

	if failure := r.getFailure(); failure != nil {
		if r.log != nil {
			r.log.Debug("Cross-encoder unavailable, skipping rerank", slog.Any("error", failure))
		}
		return []*model.RetrievalResult{}
	}

	passages := make([]string, len(results))
	for i, result := range results {
		passages[i] = capContent(result.Content, r.config.RerankContentCap)
	}

	batchSize := r.config.RerankBatchSize
	if batchSize <= 0 {
		batchSize = len(passages)
	}

	scores := make([]float64, 0, len(passages))
	for start := 0; start < len(passages); start += batchSize {
		end := start + batchSize
		if end > len(passages) {
			end = len(passages)
		}
		batchScores, err := r.score(query, passages[start:end])
		if err != nil {
			r.setFailure(helper.NewError("run cross-encoder", err))
			if r.log != nil {
				r.log.Error("Cross-encoder inference failed, disabling rerank", slog.Any("error", err))
			}
			return []*model.RetrievalResult{}
		}
		scores = append(scores, batchScores...)
	}

	reranked := make([]*model.RetrievalResult, len(results))
	for i, result := range results {
		score := scores[i]
		result.RerankScore = &score
		reranked[i] = result
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return *reranked[i].RerankScore > *reranked[j].RerankScore
	})

	return reranked
}

// capContent truncates content to at most maxBytes, backing up to a rune
// boundary so a multi-byte character is never split
func capContent(content string, maxBytes int) string {
	if maxBytes <= 0 || len(content) <= maxBytes {
		return content
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

func (r *CrossEncoderReranker) setFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure == nil {
		r.failure = err
	}
}

func (r *CrossEncoderReranker) getFailure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}
