package routing

import (
	"log/slog"
	"strings"

	"github.com/medgrain/clinctx/model"
)

// Task confidences per rule. General is the floor every question reaches.
const (
	confidenceSummary = 0.8
	confidenceTrend   = 0.85
	confidenceMedRec  = 0.75
	confidenceLab     = 0.75
	confidenceVision  = 0.85
	confidenceGeneral = 0.5
)

// Router classifies a question into a generation task. It is a total
// function; anything unmatched routes to general QA at low confidence.
type Router struct {
	log *slog.Logger
}

// NewRouter creates a new query router
func NewRouter(logger *slog.Logger) *Router {
	return &Router{log: logger}
}

// Route runs the task rules in fixed precedence order and returns the first
// match. When the question names no measurement, trend entities are also
// looked up in the conversation history.
func (r *Router) Route(question string, history []string) model.RoutingResult {
	normalized := strings.ToLower(strings.TrimSpace(question))

	entities := trendEntityRegex.FindAllString(normalized, -1)
	if len(entities) == 0 {
		for _, turn := range history {
			entities = append(entities, trendEntityRegex.FindAllString(strings.ToLower(turn), -1)...)
		}
	}
	entities = dedupLower(entities)

	temporal := temporalRegex.MatchString(normalized)

	result := model.RoutingResult{
		Task:              model.TaskGeneralQA,
		Confidence:        confidenceGeneral,
		ExtractedEntities: entities,
		TemporalIntent:    temporal,
	}

	switch {
	case summaryRegex.MatchString(normalized):
		result.Task = model.TaskDocSummary
		result.Confidence = confidenceSummary
	case trendIntentRegex.MatchString(normalized) && len(entities) > 0:
		result.Task = model.TaskTrendAnalysis
		result.Confidence = confidenceTrend
	case medicationContextRegex.MatchString(normalized):
		result.Task = model.TaskMedReconcile
		result.Confidence = confidenceMedRec
	case labContextRegex.MatchString(normalized) &&
		(interpretationRegex.MatchString(normalized) || rangeCheckRegex.MatchString(normalized)):
		result.Task = model.TaskLabInterpret
		result.Confidence = confidenceLab
	case visionRegex.MatchString(normalized):
		result.Task = model.TaskVisionExtract
		result.Confidence = confidenceVision
	}

	if r.log != nil {
		r.log.Debug("Question routed",
			slog.String("task", string(result.Task)),
			slog.Float64("confidence", result.Confidence),
			slog.Bool("temporal", result.TemporalIntent))
	}

	return result
}

func dedupLower(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, value := range values {
		value = strings.ToLower(value)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}
