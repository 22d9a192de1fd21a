package model

// EngineConfig represents the tunable configuration of the context engine.
// The weights are heuristic constants, not protocol invariants; fusion weights
// are re-normalized per result over the sub-scores it actually has.
type EngineConfig struct {
	// Fusion weights per retrieval channel
	SemanticWeight   float64 `json:"semantic_weight"`
	KeywordWeight    float64 `json:"keyword_weight"`
	StructuredWeight float64 `json:"structured_weight"`

	// Fixed score assigned to structured lookups (direct table hits)
	StructuredScore float64 `json:"structured_score"`

	// Ranking blend weights
	RelevanceWeight float64 `json:"relevance_weight"`
	DiversityWeight float64 `json:"diversity_weight"`
	PositionWeight  float64 `json:"position_weight"`

	// Ranking bonuses (caps)
	KeywordBonusMax float64 `json:"keyword_bonus_max"`
	EntityBonusMax  float64 `json:"entity_bonus_max"`
	RecencyBonusMax float64 `json:"recency_bonus_max"`

	// Diversity filtering
	DiversityThreshold float64 `json:"diversity_threshold"`

	// Recency decay window in days
	RecencyWindowDays int `json:"recency_window_days"`

	// Coverage re-rank
	MinPerSource int `json:"min_per_source"`

	// Engine defaults
	MaxResults int     `json:"max_results"`
	MaxTokens  int     `json:"max_tokens"`
	MinScore   float64 `json:"min_score"`

	// Cross-encoder reranking
	RerankContentCap int `json:"rerank_content_cap"`
	RerankBatchSize  int `json:"rerank_batch_size"`

	// Sampling profile for reasoning tasks
	ReasoningTemperature float64 `json:"reasoning_temperature"`
	ReasoningTopP        float64 `json:"reasoning_top_p"`
}

// DefaultEngineConfig returns a sensible default configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SemanticWeight:   0.6,
		KeywordWeight:    0.3,
		StructuredWeight: 0.1,

		StructuredScore: 0.9,

		RelevanceWeight: 0.7,
		DiversityWeight: 0.2,
		PositionWeight:  0.1,

		KeywordBonusMax: 0.2,
		EntityBonusMax:  0.15,
		RecencyBonusMax: 0.15,

		DiversityThreshold: 0.7,
		RecencyWindowDays:  365,

		MinPerSource: 2,

		MaxResults: 10,
		MaxTokens:  2000,
		MinScore:   0.3,

		RerankContentCap: 512,
		RerankBatchSize:  16,

		ReasoningTemperature: 0.7,
		ReasoningTopP:        0.9,
	}
}
