package retrieval

import (
	"context"

	"github.com/google/uuid"
	"github.com/medgrain/clinctx/model"
)

// VectorSearcher finds patient record chunks by embedding similarity.
// Implementations: database.RecordsDBHandler (pgvector)
type VectorSearcher interface {
	// SearchBySimilarity returns chunks scoped to the patient, ordered by
	// descending cosine similarity, at most limit rows at or above threshold.
	SearchBySimilarity(ctx context.Context, patientRID uuid.UUID, embedding []float32, limit int, threshold float64) ([]*model.RecordChunk, error)
}

// KeywordSearcher finds patient record chunks by lexical match.
// Implementations: database.RecordsDBHandler
type KeywordSearcher interface {
	// SearchByKeywords returns chunks scoped to the patient whose content
	// matches any of the given keywords.
	SearchByKeywords(ctx context.Context, patientRID uuid.UUID, keywords []string, limit int) ([]*model.RecordChunk, error)
}

// StructuredSearcher performs direct filtered lookups against structured tables.
// Implementations: database.MedicationsDBHandler + database.LabsDBHandler via
// the StructuredStore composite
type StructuredSearcher interface {
	ActiveMedications(ctx context.Context, patientRID uuid.UUID) ([]*model.Medication, error)
	AbnormalLabs(ctx context.Context, patientRID uuid.UUID) ([]*model.LabResult, error)
}
