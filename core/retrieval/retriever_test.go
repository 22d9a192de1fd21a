package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medgrain/clinctx/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVectorSearcher struct {
	chunks []*model.RecordChunk
	err    error
	calls  int
}

func (f *fakeVectorSearcher) SearchBySimilarity(ctx context.Context, patientRID uuid.UUID, embedding []float32, limit int, threshold float64) ([]*model.RecordChunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.chunks) {
		return f.chunks[:limit], nil
	}
	return f.chunks, nil
}

type fakeKeywordSearcher struct {
	chunks []*model.RecordChunk
	err    error
	calls  int
}

func (f *fakeKeywordSearcher) SearchByKeywords(ctx context.Context, patientRID uuid.UUID, keywords []string, limit int) ([]*model.RecordChunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

type fakeStructuredSearcher struct {
	medications []*model.Medication
	labs        []*model.LabResult
	medErr      error
	labErr      error
}

func (f *fakeStructuredSearcher) ActiveMedications(ctx context.Context, patientRID uuid.UUID) ([]*model.Medication, error) {
	if f.medErr != nil {
		return nil, f.medErr
	}
	return f.medications, nil
}

func (f *fakeStructuredSearcher) AbnormalLabs(ctx context.Context, patientRID uuid.UUID) ([]*model.LabResult, error) {
	if f.labErr != nil {
		return nil, f.labErr
	}
	return f.labs, nil
}

func retrievalChunk(content string, similarity float64) *model.RecordChunk {
	date := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	return &model.RecordChunk{
		RID:        uuid.New(),
		PatientRID: uuid.New(),
		SourceType: model.SourceDocument,
		SourceID:   "doc-1",
		Content:    content,
		ChunkType:  "narrative",
		EventDate:  &date,
		Similarity: &similarity,
	}
}

func testEmbedFunc(text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func testAnalysis(keywords []string, sources []model.SourceType) model.QueryAnalysis {
	return model.QueryAnalysis{
		OriginalQuery:     strings.Join(keywords, " "),
		NormalizedQuery:   strings.Join(keywords, " "),
		Intent:            model.IntentGeneral,
		Keywords:          keywords,
		DataSources:       sources,
		UseSemanticSearch: true,
		UseKeywordSearch:  true,
	}
}

func TestRetrieverRetrieve(t *testing.T) {
	ctx := context.Background()
	config := model.DefaultEngineConfig()
	patientRID := uuid.New()

	t.Run("Combines semantic and keyword channels", func(t *testing.T) {
		vector := &fakeVectorSearcher{chunks: []*model.RecordChunk{retrievalChunk("metformin dosing note", 0.8)}}
		keyword := &fakeKeywordSearcher{chunks: []*model.RecordChunk{retrievalChunk("metformin mentioned here", 0.0)}}
		retriever := NewRetriever(testEmbedFunc, vector, keyword, nil, config, nil)

		response, err := retriever.Retrieve(ctx, testAnalysis([]string{"metformin"}, []model.SourceType{model.SourceDocument}), patientRID, 10, 0)
		require.NoError(t, err)

		assert.Len(t, response.Results, 2, "Expected hits from both channels")
		assert.Equal(t, 1, vector.calls)
		assert.Equal(t, 1, keyword.calls)
	})

	t.Run("Structured channel runs only for medication or lab sources", func(t *testing.T) {
		structured := &fakeStructuredSearcher{
			medications: []*model.Medication{
				{RID: uuid.New(), PatientRID: patientRID, Name: "Metformin", Dosage: "500mg", Active: true},
			},
		}
		retriever := NewRetriever(testEmbedFunc, nil, nil, structured, config, nil)

		response, err := retriever.Retrieve(ctx, testAnalysis([]string{"medications"}, []model.SourceType{model.SourceMedication}), patientRID, 10, 0)
		require.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.Equal(t, model.SourceMedication, response.Results[0].SourceType)
		assert.Contains(t, response.Results[0].Content, "Metformin")

		response, err = retriever.Retrieve(ctx, testAnalysis([]string{"notes"}, []model.SourceType{model.SourceDocument}), patientRID, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, response.Results, "Expected no structured lookup for document-only scope")
	})

	t.Run("Failing channel degrades to empty instead of failing retrieval", func(t *testing.T) {
		vector := &fakeVectorSearcher{err: fmt.Errorf("connection refused")}
		keyword := &fakeKeywordSearcher{chunks: []*model.RecordChunk{retrievalChunk("lisinopril increased to 20mg", 0.0)}}
		retriever := NewRetriever(testEmbedFunc, vector, keyword, nil, config, nil)

		response, err := retriever.Retrieve(ctx, testAnalysis([]string{"lisinopril"}, []model.SourceType{model.SourceDocument}), patientRID, 10, 0)
		require.NoError(t, err, "Expected a failing channel to be absorbed")
		require.Len(t, response.Results, 1, "Expected the healthy channel's results")
		assert.Greater(t, response.Results[0].KeywordScore, 0.0)
	})

	t.Run("All channels failing yields an empty response", func(t *testing.T) {
		vector := &fakeVectorSearcher{err: fmt.Errorf("down")}
		keyword := &fakeKeywordSearcher{err: fmt.Errorf("down")}
		structured := &fakeStructuredSearcher{medErr: fmt.Errorf("down")}
		retriever := NewRetriever(testEmbedFunc, vector, keyword, structured, config, nil)

		response, err := retriever.Retrieve(ctx, testAnalysis([]string{"anything"}, []model.SourceType{model.SourceMedication}), patientRID, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, response.Results)
	})

	t.Run("Negative limit is a validation error", func(t *testing.T) {
		retriever := NewRetriever(testEmbedFunc, &fakeVectorSearcher{}, nil, nil, config, nil)

		_, err := retriever.Retrieve(ctx, testAnalysis([]string{"x"}, nil), patientRID, -1, 0)
		assert.Error(t, err, "Expected an error for a negative limit")
	})

	t.Run("Zero limit falls back to the configured default", func(t *testing.T) {
		chunks := make([]*model.RecordChunk, 0, config.MaxResults+5)
		for i := 0; i < config.MaxResults+5; i++ {
			chunks = append(chunks, retrievalChunk(fmt.Sprintf("note %d", i), 0.9))
		}
		vector := &fakeVectorSearcher{chunks: chunks}
		retriever := NewRetriever(testEmbedFunc, vector, nil, nil, config, nil)

		response, err := retriever.Retrieve(ctx, testAnalysis([]string{"note"}, []model.SourceType{model.SourceDocument}), patientRID, 0, 0)
		require.NoError(t, err)
		assert.Len(t, response.Results, config.MaxResults, "Expected truncation to the default limit")
	})

	t.Run("Keyword score is the fraction of keywords matched", func(t *testing.T) {
		keyword := &fakeKeywordSearcher{chunks: []*model.RecordChunk{retrievalChunk("metformin continued, blood pressure stable", 0.0)}}
		retriever := NewRetriever(testEmbedFunc, nil, keyword, nil, config, nil)

		response, err := retriever.Retrieve(ctx, testAnalysis([]string{"metformin", "pressure", "insulin", "aspirin"}, []model.SourceType{model.SourceDocument}), patientRID, 10, 0)
		require.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.InDelta(t, 0.5, response.Results[0].KeywordScore, 0.001, "Expected two of four keywords matched")
	})

	t.Run("Semantic similarity is clamped to the unit interval", func(t *testing.T) {
		vector := &fakeVectorSearcher{chunks: []*model.RecordChunk{retrievalChunk("note", 1.4)}}
		retriever := NewRetriever(testEmbedFunc, vector, nil, nil, config, nil)

		response, err := retriever.Retrieve(ctx, testAnalysis([]string{"note"}, []model.SourceType{model.SourceDocument}), patientRID, 10, 0)
		require.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.LessOrEqual(t, response.Results[0].SemanticScore, 1.0)
	})
}

func TestFormatStructuredResults(t *testing.T) {
	t.Run("Medication line includes dose, frequency, and status", func(t *testing.T) {
		medication := &model.Medication{Name: "Metformin", Dosage: "500mg", Frequency: "twice daily", Active: true}
		assert.Equal(t, "Metformin 500mg twice daily (active)", formatMedication(medication))

		stopped := &model.Medication{Name: "Atorvastatin"}
		assert.Equal(t, "Atorvastatin (stopped)", formatMedication(stopped))
	})

	t.Run("Lab line includes unit, reference range, and abnormal flag", func(t *testing.T) {
		lab := &model.LabResult{TestName: "HbA1c", Value: "7.2", Unit: "%", RefRange: "4.0-5.6", Abnormal: true}
		assert.Equal(t, "HbA1c: 7.2 % (ref 4.0-5.6) [abnormal]", formatLabResult(lab))

		minimal := &model.LabResult{TestName: "Sodium", Value: "140"}
		assert.Equal(t, "Sodium: 140", formatLabResult(minimal))
	})
}
