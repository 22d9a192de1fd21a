package ranking

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/medgrain/clinctx/model"
)

// sourceWeightsByIntent maps every intent to a priority weight per source type.
// The table is exhaustive over both enums so a missing combination is a test
// failure, not a silent runtime default.
var sourceWeightsByIntent = map[model.Intent]map[model.SourceType]float64{
	model.IntentList: {
		model.SourceMedication: 1.0,
		model.SourceLabResult:  0.6,
		model.SourceEncounter:  0.6,
		model.SourceDocument:   0.5,
		model.SourceVitalSign:  0.5,
	},
	model.IntentValue: {
		model.SourceLabResult:  1.0,
		model.SourceVitalSign:  0.9,
		model.SourceEncounter:  0.6,
		model.SourceMedication: 0.5,
		model.SourceDocument:   0.5,
	},
	model.IntentStatus: {
		model.SourceMedication: 0.9,
		model.SourceEncounter:  0.8,
		model.SourceDocument:   0.8,
		model.SourceLabResult:  0.6,
		model.SourceVitalSign:  0.6,
	},
	model.IntentHistory: {
		model.SourceEncounter:  0.9,
		model.SourceDocument:   0.9,
		model.SourceLabResult:  0.7,
		model.SourceMedication: 0.7,
		model.SourceVitalSign:  0.7,
	},
	model.IntentRecent: {
		model.SourceLabResult:  0.8,
		model.SourceMedication: 0.8,
		model.SourceEncounter:  0.8,
		model.SourceDocument:   0.8,
		model.SourceVitalSign:  0.8,
	},
	model.IntentSummary: {
		model.SourceLabResult:  0.8,
		model.SourceMedication: 0.8,
		model.SourceEncounter:  0.8,
		model.SourceDocument:   0.8,
		model.SourceVitalSign:  0.8,
	},
	model.IntentGeneral: {
		model.SourceLabResult:  0.7,
		model.SourceMedication: 0.7,
		model.SourceEncounter:  0.7,
		model.SourceDocument:   0.7,
		model.SourceVitalSign:  0.7,
	},
}

// defaultSourceWeight applies to source types outside the table
const defaultSourceWeight = 0.6

var wordSplitter = regexp.MustCompile(`[^a-z0-9]+`)

// ContextRanker orders fused retrieval results by relevance, diversity, and
// position. It never fails; degenerate input produces an empty ranked list.
type ContextRanker struct {
	config model.EngineConfig
	log    *slog.Logger
	now    func() time.Time
}

// NewContextRanker creates a new ranker
func NewContextRanker(config model.EngineConfig, logger *slog.Logger) *ContextRanker {
	return &ContextRanker{
		config: config,
		log:    logger,
		now:    time.Now,
	}
}

// Rank scores the given results against the query analysis and returns at most
// maxResults of them, ordered by final score descending. Near-duplicates of an
// already-selected result are excluded outright.
func (r *ContextRanker) Rank(results []*model.RetrievalResult, analysis model.QueryAnalysis, maxResults int) []*model.RankedResult {
	if len(results) == 0 || maxResults <= 0 {
		return []*model.RankedResult{}
	}

	type candidate struct {
		result    *model.RetrievalResult
		relevance float64
		reasoning string
		words     map[string]bool
	}

	seen := make(map[string]bool)
	candidates := make([]*candidate, 0, len(results))
	for _, result := range results {
		if result == nil || seen[result.ID] {
			continue
		}
		seen[result.ID] = true
		relevance, reasoning := r.relevanceScore(result, analysis)
		candidates = append(candidates, &candidate{
			result:    result,
			relevance: relevance,
			reasoning: reasoning,
			words:     wordSet(result.Content),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].relevance != candidates[j].relevance {
			return candidates[i].relevance > candidates[j].relevance
		}
		return candidates[i].result.ID < candidates[j].result.ID
	})

	var ranked []*model.RankedResult
	var selectedWords []map[string]bool
	for _, cand := range candidates {
		if len(ranked) >= maxResults {
			break
		}

		maxSimilarity := 0.0
		for _, words := range selectedWords {
			if similarity := jaccard(cand.words, words); similarity > maxSimilarity {
				maxSimilarity = similarity
			}
		}
		if maxSimilarity >= r.config.DiversityThreshold {
			if r.log != nil {
				r.log.Debug("Excluding near-duplicate result",
					slog.String("id", cand.result.ID),
					slog.Float64("similarity", maxSimilarity))
			}
			continue
		}

		positionScore := 1.0 - float64(len(ranked))/float64(maxResults)
		finalScore := clamp01(r.config.RelevanceWeight*cand.relevance +
			r.config.DiversityWeight*1.0 +
			r.config.PositionWeight*positionScore)

		ranked = append(ranked, &model.RankedResult{
			Result:           cand.result,
			FinalScore:       finalScore,
			RelevanceScore:   cand.relevance,
			DiversityPenalty: 0,
			PositionScore:    positionScore,
			Reasoning:        cand.reasoning,
		})
		selectedWords = append(selectedWords, cand.words)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		return ranked[i].Result.ID < ranked[j].Result.ID
	})

	return ranked
}

// relevanceScore computes the heuristic relevance of one result: the best
// available base score weighted by source-type priority for the intent, plus
// capped keyword, entity, and recency bonuses.
func (r *ContextRanker) relevanceScore(result *model.RetrievalResult, analysis model.QueryAnalysis) (float64, string) {
	base := result.BestScore()

	sourceWeight := defaultSourceWeight
	if weights, ok := sourceWeightsByIntent[analysis.Intent]; ok {
		if weight, ok := weights[result.SourceType]; ok {
			sourceWeight = weight
		}
	}

	score := base * sourceWeight

	lowered := strings.ToLower(result.Content)

	keywordBonus := matchFraction(lowered, analysis.Keywords) * r.config.KeywordBonusMax
	score += keywordBonus

	entityBonus := matchFraction(lowered, analysis.MedicalEntities) * r.config.EntityBonusMax
	score += entityBonus

	recencyBonus := 0.0
	if analysis.BoostRecent && result.ContextDate != nil {
		recencyBonus = r.recencyBonus(*result.ContextDate)
		score += recencyBonus
	}

	score = clamp01(score)

	reasoning := fmt.Sprintf("base %.2f x %s weight %.2f, keyword +%.2f, entity +%.2f, recency +%.2f",
		base, result.SourceType, sourceWeight, keywordBonus, entityBonus, recencyBonus)

	return score, reasoning
}

// recencyBonus decays linearly from the cap to 0 over the configured window
func (r *ContextRanker) recencyBonus(contextDate time.Time) float64 {
	window := float64(r.config.RecencyWindowDays)
	if window <= 0 {
		return 0
	}
	ageDays := r.now().Sub(contextDate).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	if ageDays >= window {
		return 0
	}
	return (1 - ageDays/window) * r.config.RecencyBonusMax
}

// RerankForCoverage selects at most maxResults entries from a score-ordered
// pool, guaranteeing every represented source type up to minPerSource entries
// before the remaining slots fill by score. Used for summary-style intents,
// where breadth across the record matters more than pure score order: a
// low-scored source type still earns its guaranteed slots even when maxResults
// higher-scored entries of other types exist. The selected set is returned in
// score order.
func (r *ContextRanker) RerankForCoverage(ranked []*model.RankedResult, minPerSource, maxResults int) []*model.RankedResult {
	if maxResults <= 0 || maxResults > len(ranked) {
		maxResults = len(ranked)
	}
	if len(ranked) == 0 || minPerSource <= 0 {
		return ranked[:maxResults]
	}

	selected := make([]*model.RankedResult, 0, maxResults)
	chosen := make(map[string]bool)
	taken := make(map[model.SourceType]int)

	// Round-robin over pick indices so one source's first entry is never
	// displaced by another source's second
	for pick := 0; pick < minPerSource && len(selected) < maxResults; pick++ {
		for _, entry := range ranked {
			if len(selected) >= maxResults {
				break
			}
			if chosen[entry.Result.ID] || taken[entry.Result.SourceType] != pick {
				continue
			}
			chosen[entry.Result.ID] = true
			taken[entry.Result.SourceType]++
			selected = append(selected, entry)
		}
	}

	for _, entry := range ranked {
		if len(selected) >= maxResults {
			break
		}
		if chosen[entry.Result.ID] {
			continue
		}
		chosen[entry.Result.ID] = true
		selected = append(selected, entry)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].FinalScore != selected[j].FinalScore {
			return selected[i].FinalScore > selected[j].FinalScore
		}
		return selected[i].Result.ID < selected[j].Result.ID
	})

	return selected
}

// matchFraction returns the fraction of terms present in the lowered content
func matchFraction(loweredContent string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	matched := 0
	for _, term := range terms {
		if strings.Contains(loweredContent, strings.ToLower(term)) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// wordSet returns the lower-cased word set of the content
func wordSet(content string) map[string]bool {
	words := make(map[string]bool)
	for _, word := range wordSplitter.Split(strings.ToLower(content), -1) {
		if word != "" {
			words[word] = true
		}
	}
	return words
}

// jaccard returns the Jaccard similarity of two word sets
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if b[word] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
