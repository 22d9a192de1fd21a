package model

import (
	"time"

	"github.com/google/uuid"
)

// RetrievalResult represents one patient record chunk returned by a retrieval channel.
// Each channel populates only its own sub-score; fusion fills CombinedScore.
type RetrievalResult struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id,omitempty"`
	PatientRID uuid.UUID  `json:"patient_rid"`

	SemanticScore   float64  `json:"semantic_score,omitempty"`
	KeywordScore    float64  `json:"keyword_score,omitempty"`
	StructuredScore float64  `json:"structured_score,omitempty"`
	CombinedScore   float64  `json:"combined_score"`
	RerankScore     *float64 `json:"rerank_score,omitempty"`

	ContextDate *time.Time `json:"context_date,omitempty"`
	ChunkType   string     `json:"chunk_type,omitempty"`
}

// BestScore returns the rerank score when a cross-encoder provided one,
// otherwise the fused combined score
func (r *RetrievalResult) BestScore() float64 {
	if r.RerankScore != nil && *r.RerankScore > r.CombinedScore {
		return *r.RerankScore
	}
	return r.CombinedScore
}

// RetrievalResponse is the fused, ordered output of the hybrid retriever
type RetrievalResponse struct {
	Results       []*RetrievalResult `json:"results"`
	TotalCombined int                `json:"total_combined"` // count passing the fusion threshold
}

// RankedResult wraps a RetrievalResult with the ranking breakdown
type RankedResult struct {
	Result           *RetrievalResult `json:"result"`
	FinalScore       float64          `json:"final_score"`
	RelevanceScore   float64          `json:"relevance_score"`
	DiversityPenalty float64          `json:"diversity_penalty"`
	PositionScore    float64          `json:"position_score"`
	Reasoning        string           `json:"reasoning"`
}

// SynthesizedContext is the token-budgeted context block fed to a language model
type SynthesizedContext struct {
	FullContext     string                `json:"full_context"`
	TotalChunksUsed int                   `json:"total_chunks_used"`
	TotalTokens     int                   `json:"total_tokens"` // estimated, not tokenizer-exact
	Sections        map[SourceType]string `json:"sections,omitempty"`
}

// StageTimings records per-stage latency of one GetContext call, in milliseconds
type StageTimings struct {
	AnalyzeMs    int64 `json:"analyze_ms"`
	RetrieveMs   int64 `json:"retrieve_ms"`
	RankMs       int64 `json:"rank_ms"`
	SynthesizeMs int64 `json:"synthesize_ms"`
	TotalMs      int64 `json:"total_ms"`
}

// ContextResult bundles everything one GetContext call produced
type ContextResult struct {
	Analysis    QueryAnalysis      `json:"analysis"`
	Retrieval   RetrievalResponse  `json:"retrieval"`
	Ranked      []*RankedResult    `json:"ranked"`
	Synthesized SynthesizedContext `json:"synthesized"`
	Prompt      string             `json:"prompt"`
	Timings     StageTimings       `json:"timings"`
}
