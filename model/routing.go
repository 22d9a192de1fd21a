package model

// Task is the generation task a question routes to, independent of the
// retrieval pipeline's intent classification
type Task string

const (
	TaskDocSummary    Task = "doc_summary"
	TaskTrendAnalysis Task = "trend_analysis"
	TaskMedReconcile  Task = "medication_reconciliation"
	TaskLabInterpret  Task = "lab_interpretation"
	TaskVisionExtract Task = "vision_extraction"
	TaskGeneralQA     Task = "general_qa"
)

// RoutingResult is the outcome of routing a question to a generation task
type RoutingResult struct {
	Task              Task     `json:"task"`
	Confidence        float64  `json:"confidence"`
	ExtractedEntities []string `json:"extracted_entities,omitempty"`
	TemporalIntent    bool     `json:"temporal_intent"`
}

// ProfileLabel names the decoding style selected for generation
type ProfileLabel string

const (
	ProfileFactual   ProfileLabel = "factual"
	ProfileReasoning ProfileLabel = "reasoning"
)

// DecodingProfile is the sampling configuration handed to the generation caller.
// Factual questions get deterministic greedy decoding; reasoning tasks sample.
type DecodingProfile struct {
	Label       ProfileLabel `json:"label"`
	DoSample    bool         `json:"do_sample"`
	Temperature float64      `json:"temperature"`
	TopP        float64      `json:"top_p"`
}
