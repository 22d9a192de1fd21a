package model

import "time"

// Intent classifies what a clinical question is asking for
type Intent string

const (
	IntentList    Intent = "list"    // enumerate items (e.g. current medications)
	IntentValue   Intent = "value"   // a specific measured value (e.g. last HbA1c)
	IntentStatus  Intent = "status"  // current state of a condition or treatment
	IntentHistory Intent = "history" // longitudinal course of the record
	IntentRecent  Intent = "recent"  // latest entries in the record
	IntentSummary Intent = "summary" // broad overview across source types
	IntentGeneral Intent = "general" // fallback when nothing else matches
)

// SourceType is the record category a retrieved chunk originated from
type SourceType string

const (
	SourceLabResult  SourceType = "lab_result"
	SourceMedication SourceType = "medication"
	SourceEncounter  SourceType = "encounter"
	SourceDocument   SourceType = "document"
	SourceVitalSign  SourceType = "vital_sign"
)

// AllSourceTypes returns every known source type, used as the default
// retrieval scope when intent classification is ambiguous
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceLabResult,
		SourceMedication,
		SourceEncounter,
		SourceDocument,
		SourceVitalSign,
	}
}

// TimeRange is an explicit date window extracted from a query
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// TemporalInfo carries the temporal signals extracted from a query.
// Either Range is set (explicit dates) or RelativeDays is non-zero
// (e.g. "last 30 days"); IsTemporal is true in both cases and for
// bare relative terms like "recent".
type TemporalInfo struct {
	IsTemporal   bool       `json:"is_temporal"`
	Range        *TimeRange `json:"range,omitempty"`
	RelativeDays int        `json:"relative_days,omitempty"`
}

// QueryAnalysis is the immutable result of analyzing a clinical question.
// It drives which retrieval channels run and how results are ranked.
type QueryAnalysis struct {
	OriginalQuery   string `json:"original_query"`
	NormalizedQuery string `json:"normalized_query"`

	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`

	MedicalEntities []string `json:"medical_entities"`
	MedicationNames []string `json:"medication_names"`
	TestNames       []string `json:"test_names"`
	ConditionNames  []string `json:"condition_names"`

	Temporal TemporalInfo `json:"temporal"`

	DataSources []SourceType `json:"data_sources"`
	Keywords    []string     `json:"keywords"`

	UseSemanticSearch bool `json:"use_semantic_search"`
	UseKeywordSearch  bool `json:"use_keyword_search"`
	BoostRecent       bool `json:"boost_recent"`
}

// HasSource reports whether the analysis scopes retrieval to the given source type
func (a *QueryAnalysis) HasSource(source SourceType) bool {
	for _, s := range a.DataSources {
		if s == source {
			return true
		}
	}
	return false
}
