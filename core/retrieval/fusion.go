package retrieval

import (
	"sort"

	"github.com/medgrain/clinctx/model"
)

// fuseResults merges the per-channel result lists by ID, keeping the best
// value for each populated sub-score, and computes the combined score as a
// weighted sum re-normalized over the sub-scores each result actually has.
// A structured-only hit therefore keeps its fixed high score instead of being
// crushed by the weights of channels that never saw it.
// Results below minScore are dropped; output is sorted by combined score
// descending (ID ascending on ties, for determinism) and truncated to limit.
func fuseResults(channels map[channelKind][]*model.RetrievalResult, config model.EngineConfig, minScore float64, limit int) model.RetrievalResponse {
	merged := make(map[string]*model.RetrievalResult)

	for _, results := range channels {
		for _, r := range results {
			existing, ok := merged[r.ID]
			if !ok {
				clone := *r
				merged[r.ID] = &clone
				continue
			}
			if r.SemanticScore > existing.SemanticScore {
				existing.SemanticScore = r.SemanticScore
			}
			if r.KeywordScore > existing.KeywordScore {
				existing.KeywordScore = r.KeywordScore
			}
			if r.StructuredScore > existing.StructuredScore {
				existing.StructuredScore = r.StructuredScore
			}
			if existing.ContextDate == nil && r.ContextDate != nil {
				existing.ContextDate = r.ContextDate
			}
		}
	}

	results := make([]*model.RetrievalResult, 0, len(merged))
	for _, r := range merged {
		var weighted, totalWeight float64
		if r.SemanticScore > 0 {
			weighted += config.SemanticWeight * r.SemanticScore
			totalWeight += config.SemanticWeight
		}
		if r.KeywordScore > 0 {
			weighted += config.KeywordWeight * r.KeywordScore
			totalWeight += config.KeywordWeight
		}
		if r.StructuredScore > 0 {
			weighted += config.StructuredWeight * r.StructuredScore
			totalWeight += config.StructuredWeight
		}
		if totalWeight > 0 {
			combined := weighted / totalWeight
			if combined > 1.0 {
				combined = 1.0
			}
			r.CombinedScore = combined
		}
		if r.CombinedScore < minScore {
			continue
		}
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].ID < results[j].ID
	})

	totalCombined := len(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return model.RetrievalResponse{
		Results:       results,
		TotalCombined: totalCombined,
	}
}
