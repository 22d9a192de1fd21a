package routing

import (
	"strings"

	"github.com/medgrain/clinctx/model"
)

// reasoningTasks are the tasks that warrant exploratory decoding
var reasoningTasks = map[model.Task]bool{
	model.TaskDocSummary:    true,
	model.TaskTrendAnalysis: true,
	model.TaskLabInterpret:  true,
}

// IntentClassifier selects the decoding profile for a generation call from
// the routed task, the retrieval intent, and the question's own phrasing
type IntentClassifier struct {
	config model.EngineConfig
}

// NewIntentClassifier creates a new classifier
func NewIntentClassifier(config model.EngineConfig) *IntentClassifier {
	return &IntentClassifier{config: config}
}

// DecodingProfile returns the sampling configuration for the question.
// Reasoning tasks and reasoning-style phrasing sample with the configured
// temperature; everything else decodes greedily so factual answers stay
// deterministic.
func (c *IntentClassifier) DecodingProfile(question string, task model.Task, intent model.Intent) model.DecodingProfile {
	normalized := strings.ToLower(question)

	reasoning := reasoningTasks[task] ||
		intent == model.IntentSummary ||
		reasoningKeywordRegex.MatchString(normalized)

	if reasoning {
		return model.DecodingProfile{
			Label:       model.ProfileReasoning,
			DoSample:    true,
			Temperature: c.config.ReasoningTemperature,
			TopP:        c.config.ReasoningTopP,
		}
	}

	return model.DecodingProfile{
		Label:       model.ProfileFactual,
		DoSample:    false,
		Temperature: 0,
		TopP:        1,
	}
}
