package clinctx

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medgrain/clinctx/core/ranking"
	"github.com/medgrain/clinctx/core/synthesis"
	"github.com/medgrain/clinctx/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStores is an in-memory record store serving all three retrieval channels
type fakeStores struct {
	chunks      []*model.RecordChunk
	medications []*model.Medication
	labs        []*model.LabResult

	vectorErr error
}

func (f *fakeStores) SearchBySimilarity(ctx context.Context, patientRID uuid.UUID, embedding []float32, limit int, threshold float64) ([]*model.RecordChunk, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	var out []*model.RecordChunk
	for _, chunk := range f.chunks {
		if chunk.PatientRID != patientRID {
			continue
		}
		out = append(out, chunk)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStores) SearchByKeywords(ctx context.Context, patientRID uuid.UUID, keywords []string, limit int) ([]*model.RecordChunk, error) {
	var out []*model.RecordChunk
	for _, chunk := range f.chunks {
		if chunk.PatientRID != patientRID {
			continue
		}
		lowered := strings.ToLower(chunk.Content)
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				out = append(out, chunk)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStores) ActiveMedications(ctx context.Context, patientRID uuid.UUID) ([]*model.Medication, error) {
	var out []*model.Medication
	for _, med := range f.medications {
		if med.PatientRID == patientRID && med.Active {
			out = append(out, med)
		}
	}
	return out, nil
}

func (f *fakeStores) AbnormalLabs(ctx context.Context, patientRID uuid.UUID) ([]*model.LabResult, error) {
	var out []*model.LabResult
	for _, lab := range f.labs {
		if lab.PatientRID == patientRID && lab.Abnormal {
			out = append(out, lab)
		}
	}
	return out, nil
}

func fakeEmbed(text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func testChunk(patientRID uuid.UUID, sourceType model.SourceType, content string, similarity float64, daysAgo int) *model.RecordChunk {
	date := time.Now().AddDate(0, 0, -daysAgo)
	return &model.RecordChunk{
		RID:        uuid.New(),
		PatientRID: patientRID,
		SourceType: sourceType,
		SourceID:   uuid.NewString(),
		Content:    content,
		ChunkType:  "narrative",
		EventDate:  &date,
		Similarity: &similarity,
	}
}

func newTestEngine(stores *fakeStores, reranker *ranking.CrossEncoderReranker) *Engine {
	return NewEngineWithStores(fakeEmbed, stores, stores, stores, reranker, model.DefaultEngineConfig(), nil)
}

func TestGetContext(t *testing.T) {
	ctx := context.Background()
	patientRID := uuid.New()

	stores := &fakeStores{
		chunks: []*model.RecordChunk{
			testChunk(patientRID, model.SourceDocument, "Progress note: diabetes well controlled on metformin", 0.8, 30),
			testChunk(patientRID, model.SourceEncounter, "Office visit for hypertension follow up, blood pressure stable", 0.6, 90),
		},
		medications: []*model.Medication{
			{RID: uuid.New(), PatientRID: patientRID, Name: "Metformin", Dosage: "500mg", Frequency: "twice daily", Active: true},
		},
		labs: []*model.LabResult{
			{RID: uuid.New(), PatientRID: patientRID, TestName: "HbA1c", Value: "7.2", Unit: "%", Abnormal: true},
		},
	}

	t.Run("Medication question produces medication-led context", func(t *testing.T) {
		engine := newTestEngine(stores, nil)

		result, err := engine.GetContext(ctx, "What medications is the patient on?", patientRID, ContextOptions{})
		require.NoError(t, err, "Expected GetContext to not return an error")
		require.NotNil(t, result)

		assert.Equal(t, model.IntentList, result.Analysis.Intent, "Expected list intent")
		require.NotEmpty(t, result.Ranked, "Expected ranked results")
		assert.Equal(t, model.SourceMedication, result.Ranked[0].Result.SourceType, "Expected a medication result first")
		assert.Contains(t, result.Synthesized.FullContext, "Metformin", "Expected the medication in the context")
		assert.Contains(t, result.Prompt, synthesis.DefaultSystemPrompt, "Expected the default system prompt")
		assert.GreaterOrEqual(t, result.Timings.TotalMs, int64(0), "Expected timings recorded")
	})

	t.Run("Scores stay within bounds and ids unique", func(t *testing.T) {
		engine := newTestEngine(stores, nil)

		result, err := engine.GetContext(ctx, "summary of the patient", patientRID, ContextOptions{})
		require.NoError(t, err)

		seen := map[string]bool{}
		for _, entry := range result.Ranked {
			assert.GreaterOrEqual(t, entry.FinalScore, 0.0)
			assert.LessOrEqual(t, entry.FinalScore, 1.0)
			assert.False(t, seen[entry.Result.ID], "Expected unique ids in ranked output")
			seen[entry.Result.ID] = true
		}
	})

	t.Run("Unknown patient yields the no-information sentinel", func(t *testing.T) {
		engine := newTestEngine(stores, nil)

		result, err := engine.GetContext(ctx, "any recent labs?", uuid.New(), ContextOptions{})
		require.NoError(t, err, "Expected empty retrieval to not be an error")

		assert.Empty(t, result.Ranked)
		assert.Equal(t, synthesis.NoInformationSentinel, result.Synthesized.FullContext, "Expected the sentinel context")
		assert.Contains(t, result.Prompt, synthesis.NoInformationSentinel, "Expected the sentinel in the prompt")
	})

	t.Run("Failing reranker falls back to heuristic ranking", func(t *testing.T) {
		reranker := ranking.NewCrossEncoderReranker(func() (ranking.ScoreFunc, error) {
			return nil, fmt.Errorf("model load failed")
		}, model.DefaultEngineConfig(), nil)
		engine := newTestEngine(stores, reranker)

		result, err := engine.GetContext(ctx, "What medications is the patient on?", patientRID, ContextOptions{})
		require.NoError(t, err, "Expected no error when the reranker is unavailable")
		require.NotEmpty(t, result.Ranked, "Expected heuristic ranking to still produce results")
		for _, entry := range result.Ranked {
			assert.Nil(t, entry.Result.RerankScore, "Expected no rerank scores from a failed reranker")
		}
	})

	t.Run("Working reranker populates rerank scores", func(t *testing.T) {
		reranker := ranking.NewCrossEncoderReranker(func() (ranking.ScoreFunc, error) {
			return func(query string, passages []string) ([]float64, error) {
				scores := make([]float64, len(passages))
				for i := range scores {
					scores[i] = 0.5
				}
				return scores, nil
			}, nil
		}, model.DefaultEngineConfig(), nil)
		engine := newTestEngine(stores, reranker)

		result, err := engine.GetContext(ctx, "What medications is the patient on?", patientRID, ContextOptions{})
		require.NoError(t, err)
		require.NotEmpty(t, result.Ranked)
		assert.NotNil(t, result.Ranked[0].Result.RerankScore, "Expected rerank scores populated")
	})

	t.Run("Summary keeps a low-scored source type in the context", func(t *testing.T) {
		summaryPatient := uuid.New()
		summaryStores := &fakeStores{}
		reports := []string{
			"Chest radiograph demonstrates clear lungs without consolidation",
			"Echocardiogram shows preserved ejection fraction and normal valves",
			"Abdominal ultrasound reveals mild hepatic steatosis",
			"Colonoscopy identified two benign polyps, removed without complication",
			"Dermatology consult noted a stable seborrheic keratosis",
			"Podiatry exam found intact sensation and no ulceration",
		}
		for _, report := range reports {
			summaryStores.chunks = append(summaryStores.chunks,
				testChunk(summaryPatient, model.SourceDocument, report, 0.9, 30))
		}
		summaryStores.chunks = append(summaryStores.chunks,
			testChunk(summaryPatient, model.SourceEncounter, "Office visit covering vaccination counseling", 0.35, 60))

		engine := newTestEngine(summaryStores, nil)

		result, err := engine.GetContext(ctx, "summary of the patient", summaryPatient, ContextOptions{MaxResults: 5})
		require.NoError(t, err)
		assert.Equal(t, model.IntentSummary, result.Analysis.Intent)
		require.Len(t, result.Ranked, 5)

		sources := map[model.SourceType]bool{}
		for _, entry := range result.Ranked {
			sources[entry.Result.SourceType] = true
		}
		assert.True(t, sources[model.SourceEncounter], "Expected the encounter to keep a slot despite its low score")
	})

	t.Run("Max results and token budget are honored", func(t *testing.T) {
		engine := newTestEngine(stores, nil)

		result, err := engine.GetContext(ctx, "summary of the patient", patientRID, ContextOptions{
			MaxResults: 1,
			MaxTokens:  40,
		})
		require.NoError(t, err)

		assert.LessOrEqual(t, len(result.Ranked), 1, "Expected max results respected")
		assert.LessOrEqual(t, len(result.Synthesized.FullContext)/4, 40+1, "Expected the budget respected")
	})

	t.Run("Negative max results falls back to defaults", func(t *testing.T) {
		engine := newTestEngine(stores, nil)

		result, err := engine.GetContext(ctx, "What medications is the patient on?", patientRID, ContextOptions{MaxResults: -5})
		require.NoError(t, err, "Expected defaults to absorb a non-positive max results")
		assert.NotEmpty(t, result.Ranked)
	})
}

func TestGetRawRetrieval(t *testing.T) {
	ctx := context.Background()
	patientRID := uuid.New()

	stores := &fakeStores{
		chunks: []*model.RecordChunk{
			testChunk(patientRID, model.SourceDocument, "Note about metformin dosing", 0.9, 10),
		},
	}

	t.Run("Returns analysis and fused results", func(t *testing.T) {
		engine := newTestEngine(stores, nil)

		analysis, response, err := engine.GetRawRetrieval(ctx, "metformin dose", patientRID, 5, 0)
		require.NoError(t, err)

		assert.NotEmpty(t, analysis.Keywords, "Expected keywords extracted")
		require.NotEmpty(t, response.Results, "Expected fused results")
		assert.LessOrEqual(t, response.Results[0].CombinedScore, 1.0)
	})

	t.Run("All channels failing yields empty response, not an error", func(t *testing.T) {
		failing := &fakeStores{vectorErr: fmt.Errorf("store offline")}
		engine := newTestEngine(failing, nil)

		_, response, err := engine.GetRawRetrieval(ctx, "zzz qqq", patientRID, 5, 0)
		require.NoError(t, err, "Expected channel failures to degrade, not fail")
		assert.Empty(t, response.Results)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	patientRID := uuid.New()

	stores := &fakeStores{
		chunks: []*model.RecordChunk{
			testChunk(patientRID, model.SourceDocument, "Discharge summary after pneumonia admission", 0.7, 20),
		},
	}

	t.Run("Returns plain maps", func(t *testing.T) {
		engine := newTestEngine(stores, nil)

		rows, err := engine.Search(ctx, "pneumonia admission", patientRID, 5)
		require.NoError(t, err)
		require.NotEmpty(t, rows)

		assert.Contains(t, rows[0], "id")
		assert.Contains(t, rows[0], "content")
		assert.Contains(t, rows[0], "source_type")
		assert.Contains(t, rows[0], "score")
	})
}

func TestEngineRouting(t *testing.T) {
	engine := newTestEngine(&fakeStores{}, nil)

	t.Run("Route and profile work end to end", func(t *testing.T) {
		routed := engine.Route("How has the blood pressure changed over time?", nil)
		assert.Equal(t, model.TaskTrendAnalysis, routed.Task)

		profile := engine.DecodingProfile("How has the blood pressure changed over time?", routed.Task, model.IntentHistory)
		assert.Equal(t, model.ProfileReasoning, profile.Label)
		assert.True(t, profile.DoSample)
	})

	t.Run("Factual route decodes greedily", func(t *testing.T) {
		routed := engine.Route("What is the current dose?", nil)
		profile := engine.DecodingProfile("What is the current dose?", routed.Task, model.IntentValue)

		assert.Equal(t, model.ProfileFactual, profile.Label)
		assert.False(t, profile.DoSample)
	})
}
