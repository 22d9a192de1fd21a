package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/medgrain/clinctx/core/pipeline"
	"github.com/medgrain/clinctx/helper"
	"github.com/medgrain/clinctx/model"
)

// channelKind identifies one retrieval sub-search
type channelKind string

const (
	channelSemantic   channelKind = "semantic"
	channelKeyword    channelKind = "keyword"
	channelStructured channelKind = "structured"
)

// Retriever fans a query analysis out to semantic, keyword, and structured
// sub-searches over a patient's record and fuses the results. Sub-searches run
// concurrently; a failing channel is logged and treated as an empty result
// set, so retrieval degrades instead of failing.
type Retriever struct {
	embed      pipeline.EmbedFunc
	vector     VectorSearcher
	keyword    KeywordSearcher
	structured StructuredSearcher
	config     model.EngineConfig
	log        *slog.Logger
}

// NewRetriever creates a hybrid retriever. Any searcher may be nil; its
// channel simply never runs.
func NewRetriever(embed pipeline.EmbedFunc, vector VectorSearcher, keyword KeywordSearcher, structured StructuredSearcher, config model.EngineConfig, logger *slog.Logger) *Retriever {
	return &Retriever{
		embed:      embed,
		vector:     vector,
		keyword:    keyword,
		structured: structured,
		config:     config,
		log:        logger,
	}
}

// Retrieve runs the enabled sub-searches concurrently and fuses their results.
// A negative limit is a validation error; limit 0 falls back to the configured
// default. An empty response is not an error, even when every channel failed.
func (r *Retriever) Retrieve(ctx context.Context, analysis model.QueryAnalysis, patientRID uuid.UUID, limit int, minScore float64) (model.RetrievalResponse, error) {
	if limit < 0 {
		return model.RetrievalResponse{}, helper.NewError("validate limit", fmt.Errorf("limit must not be negative, got %d", limit))
	}
	if limit == 0 {
		limit = r.config.MaxResults
	}

	// Over-fetch per channel so fusion has enough candidates to merge
	channelLimit := limit * 3

	type channelOutput struct {
		kind    channelKind
		results []*model.RetrievalResult
	}

	var wg sync.WaitGroup
	outputs := make(chan channelOutput, 3)

	runChannel := func(kind channelKind, search func() ([]*model.RetrievalResult, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := search()
			if err != nil {
				if r.log != nil {
					r.log.Error("Retrieval channel failed",
						slog.String("channel", string(kind)),
						slog.Any("error", err))
				}
				results = nil
			}
			outputs <- channelOutput{kind: kind, results: results}
		}()
	}

	if analysis.UseSemanticSearch && r.vector != nil && r.embed != nil {
		runChannel(channelSemantic, func() ([]*model.RetrievalResult, error) {
			return r.searchSemantic(ctx, analysis, patientRID, channelLimit)
		})
	}
	if analysis.UseKeywordSearch && r.keyword != nil && len(analysis.Keywords) > 0 {
		runChannel(channelKeyword, func() ([]*model.RetrievalResult, error) {
			return r.searchKeyword(ctx, analysis, patientRID, channelLimit)
		})
	}
	if r.structured != nil && (analysis.HasSource(model.SourceMedication) || analysis.HasSource(model.SourceLabResult)) {
		runChannel(channelStructured, func() ([]*model.RetrievalResult, error) {
			return r.searchStructured(ctx, analysis, patientRID)
		})
	}

	wg.Wait()
	close(outputs)

	channels := make(map[channelKind][]*model.RetrievalResult)
	for out := range outputs {
		channels[out.kind] = out.results
	}

	response := fuseResults(channels, r.config, minScore, limit)

	if r.log != nil {
		r.log.Debug("Hybrid retrieval complete",
			slog.Int("channels", len(channels)),
			slog.Int("results", len(response.Results)),
			slog.Int("total_combined", response.TotalCombined))
	}

	return response, nil
}

// searchSemantic embeds the query and runs a patient-scoped similarity search
func (r *Retriever) searchSemantic(ctx context.Context, analysis model.QueryAnalysis, patientRID uuid.UUID, limit int) ([]*model.RetrievalResult, error) {
	embedding, err := r.embed(analysis.NormalizedQuery)
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}

	chunks, err := r.vector.SearchBySimilarity(ctx, patientRID, embedding, limit, 0)
	if err != nil {
		return nil, helper.NewError("similarity search", err)
	}

	results := make([]*model.RetrievalResult, 0, len(chunks))
	for _, chunk := range chunks {
		similarity := 0.0
		if chunk.Similarity != nil {
			similarity = *chunk.Similarity
		}
		if similarity < 0 {
			similarity = 0
		}
		if similarity > 1 {
			similarity = 1
		}
		result := chunkToResult(chunk)
		result.SemanticScore = similarity
		results = append(results, result)
	}
	return results, nil
}

// searchKeyword runs a patient-scoped lexical search; the score is the
// fraction of query keywords found in the chunk content
func (r *Retriever) searchKeyword(ctx context.Context, analysis model.QueryAnalysis, patientRID uuid.UUID, limit int) ([]*model.RetrievalResult, error) {
	chunks, err := r.keyword.SearchByKeywords(ctx, patientRID, analysis.Keywords, limit)
	if err != nil {
		return nil, helper.NewError("keyword search", err)
	}

	results := make([]*model.RetrievalResult, 0, len(chunks))
	for _, chunk := range chunks {
		result := chunkToResult(chunk)
		result.KeywordScore = keywordCoverage(chunk.Content, analysis.Keywords)
		results = append(results, result)
	}
	return results, nil
}

// searchStructured performs direct filtered lookups against structured tables.
// A hit from a structured table is near-certain relevance, so it gets a fixed
// high score.
func (r *Retriever) searchStructured(ctx context.Context, analysis model.QueryAnalysis, patientRID uuid.UUID) ([]*model.RetrievalResult, error) {
	var results []*model.RetrievalResult

	if analysis.HasSource(model.SourceMedication) {
		medications, err := r.structured.ActiveMedications(ctx, patientRID)
		if err != nil {
			return nil, helper.NewError("active medications lookup", err)
		}
		for _, med := range medications {
			results = append(results, &model.RetrievalResult{
				ID:              "med:" + med.RID.String(),
				Content:         formatMedication(med),
				SourceType:      model.SourceMedication,
				SourceID:        med.RID.String(),
				PatientRID:      med.PatientRID,
				StructuredScore: r.config.StructuredScore,
				ContextDate:     med.StartedAt,
				ChunkType:       "structured",
			})
		}
	}

	if analysis.HasSource(model.SourceLabResult) {
		labs, err := r.structured.AbnormalLabs(ctx, patientRID)
		if err != nil {
			return nil, helper.NewError("abnormal labs lookup", err)
		}
		for _, lab := range labs {
			results = append(results, &model.RetrievalResult{
				ID:              "lab:" + lab.RID.String(),
				Content:         formatLabResult(lab),
				SourceType:      model.SourceLabResult,
				SourceID:        lab.RID.String(),
				PatientRID:      lab.PatientRID,
				StructuredScore: r.config.StructuredScore,
				ContextDate:     lab.ResultedAt,
				ChunkType:       "structured",
			})
		}
	}

	return results, nil
}

func chunkToResult(chunk *model.RecordChunk) *model.RetrievalResult {
	return &model.RetrievalResult{
		ID:          "chunk:" + chunk.RID.String(),
		Content:     chunk.Content,
		SourceType:  chunk.SourceType,
		SourceID:    chunk.SourceID,
		PatientRID:  chunk.PatientRID,
		ContextDate: chunk.EventDate,
		ChunkType:   chunk.ChunkType,
	}
}

// keywordCoverage returns the fraction of keywords present in the content
func keywordCoverage(content string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lowered := strings.ToLower(content)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func formatMedication(med *model.Medication) string {
	parts := []string{med.Name}
	if med.Dosage != "" {
		parts = append(parts, med.Dosage)
	}
	if med.Frequency != "" {
		parts = append(parts, med.Frequency)
	}
	line := strings.Join(parts, " ")
	if med.Active {
		return line + " (active)"
	}
	return line + " (stopped)"
}

func formatLabResult(lab *model.LabResult) string {
	line := fmt.Sprintf("%s: %s", lab.TestName, lab.Value)
	if lab.Unit != "" {
		line += " " + lab.Unit
	}
	if lab.RefRange != "" {
		line += " (ref " + lab.RefRange + ")"
	}
	if lab.Abnormal {
		line += " [abnormal]"
	}
	return line
}
