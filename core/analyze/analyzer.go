package analyze

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/medgrain/clinctx/model"
)

// Analyzer classifies query intent and extracts entity and temporal signals.
// Analyze is a total function: it never fails, and unmatched input yields
// a general-intent analysis with semantic search enabled.
type Analyzer struct {
	log *slog.Logger
	now func() time.Time
}

// NewAnalyzer creates a new query analyzer
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	return &Analyzer{
		log: logger,
		now: time.Now,
	}
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Analyze classifies a clinical question and extracts retrieval signals.
// history is optional prior conversation turns, consulted for entities only
// when the question itself names none.
func (a *Analyzer) Analyze(query string, history []string) model.QueryAnalysis {
	normalized := normalizeQuery(query)

	intent, confidence := classifyIntent(normalized)

	analysis := model.QueryAnalysis{
		OriginalQuery:   query,
		NormalizedQuery: normalized,
		Intent:          intent,
		Confidence:      confidence,
	}

	analysis.MedicationNames = extractTerms(medicationRegex, normalized)
	analysis.TestNames = extractTerms(labRegex, normalized)
	analysis.ConditionNames = extractTerms(conditionRegex, normalized)

	// Fall back to the most recent history turn when the question itself
	// carries no entities ("what about her labs?")
	if len(analysis.MedicationNames)+len(analysis.TestNames)+len(analysis.ConditionNames) == 0 && len(history) > 0 {
		previous := normalizeQuery(history[len(history)-1])
		analysis.MedicationNames = extractTerms(medicationRegex, previous)
		analysis.TestNames = extractTerms(labRegex, previous)
		analysis.ConditionNames = extractTerms(conditionRegex, previous)
	}

	analysis.MedicalEntities = mergeEntities(analysis.MedicationNames, analysis.TestNames, analysis.ConditionNames)

	analysis.Temporal = extractTemporal(normalized, a.now())
	analysis.Keywords = extractKeywords(normalized)
	analysis.DataSources = deriveSources(intent, &analysis)

	analysis.UseSemanticSearch = true
	analysis.UseKeywordSearch = len(analysis.Keywords) > 0
	analysis.BoostRecent = analysis.Temporal.IsTemporal || intent == model.IntentRecent

	if a.log != nil {
		a.log.Debug("Analyzed query",
			slog.String("intent", string(intent)),
			slog.Float64("confidence", confidence),
			slog.Int("entities", len(analysis.MedicalEntities)),
			slog.Bool("temporal", analysis.Temporal.IsTemporal))
	}

	return analysis
}

// normalizeQuery lowercases and collapses whitespace
func normalizeQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	return whitespaceRegex.ReplaceAllString(normalized, " ")
}

// classifyIntent scores every pattern group and picks the strongest match,
// with declaration order breaking ties. No match yields the general intent.
func classifyIntent(normalized string) (model.Intent, float64) {
	bestIntent := model.IntentGeneral
	bestMatches := 0

	for _, group := range intentGroups {
		matches := 0
		for _, phrase := range group.Phrases {
			if strings.Contains(normalized, phrase) {
				matches++
			}
		}
		if matches > bestMatches {
			bestMatches = matches
			bestIntent = group.Intent
		}
	}

	if bestMatches == 0 {
		return model.IntentGeneral, 0.3
	}

	confidence := 0.5 + 0.2*float64(bestMatches)
	if confidence > 0.9 {
		confidence = 0.9
	}
	return bestIntent, confidence
}

// extractTerms finds vocabulary matches, lowercased and deduplicated
func extractTerms(vocabulary *regexp.Regexp, normalized string) []string {
	matches := vocabulary.FindAllString(normalized, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	terms := make([]string, 0, len(matches))
	for _, m := range matches {
		term := strings.ToLower(m)
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	return terms
}

func mergeEntities(groups ...[]string) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, group := range groups {
		for _, term := range group {
			if !seen[term] {
				seen[term] = true
				merged = append(merged, term)
			}
		}
	}
	return merged
}

// extractKeywords returns the ordered, stopword-filtered content words
func extractKeywords(normalized string) []string {
	words := wordSplitter.Split(normalized, -1)
	seen := make(map[string]bool, len(words))
	var keywords []string
	for _, w := range words {
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// deriveSources maps intent to a source scope, widened by any source types
// the extracted entities imply
func deriveSources(intent model.Intent, analysis *model.QueryAnalysis) []model.SourceType {
	sources := append([]model.SourceType{}, sourcesByIntent[intent]...)

	if len(analysis.MedicationNames) > 0 {
		sources = appendSource(sources, model.SourceMedication)
	}
	if len(analysis.TestNames) > 0 {
		sources = appendSource(sources, model.SourceLabResult)
	}
	if len(analysis.ConditionNames) > 0 {
		sources = appendSource(sources, model.SourceEncounter)
		sources = appendSource(sources, model.SourceDocument)
	}

	if len(sources) == 0 {
		return model.AllSourceTypes()
	}
	return sources
}

func appendSource(sources []model.SourceType, source model.SourceType) []model.SourceType {
	for _, s := range sources {
		if s == source {
			return sources
		}
	}
	return append(sources, source)
}
