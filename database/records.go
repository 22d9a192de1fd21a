package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/medgrain/clinctx/helper"
	"github.com/medgrain/clinctx/model"
	loadSql "github.com/medgrain/clinctx/sql"
	"github.com/pgvector/pgvector-go"
)

// RecordsDBHandlerFunctions defines the interface for record chunk database operations.
type RecordsDBHandlerFunctions interface {
	InsertChunk(chunk *model.RecordChunk) error
	InsertChunks(chunks []*model.RecordChunk) error
	SelectChunk(rid uuid.UUID) (*model.RecordChunk, error)
	SelectChunksByPatient(patientRID uuid.UUID) ([]*model.RecordChunk, error)
	SearchBySimilarity(ctx context.Context, patientRID uuid.UUID, embedding []float32, limit int, threshold float64) ([]*model.RecordChunk, error)
	SearchByKeywords(ctx context.Context, patientRID uuid.UUID, keywords []string, limit int) ([]*model.RecordChunk, error)
	DeleteChunksBySource(patientRID uuid.UUID, sourceType model.SourceType, sourceID string) (int64, error)
}

// RecordsDBHandler handles record-chunk database operations, including the
// pgvector similarity search and the keyword search behind hybrid retrieval
type RecordsDBHandler struct {
	db *helper.Database
}

// NewRecordsDBHandler creates a new record chunks database handler.
// It loads the record-related SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRecordsDBHandler(db *helper.Database, embeddingDim int, force bool) (*RecordsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	recordsDbHandler := &RecordsDBHandler{
		db: db,
	}

	err := loadSql.LoadRecordsSql(recordsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load records sql", err)
	}

	err = recordsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RecordsDBHandler")

	return recordsDbHandler, nil
}

// CreateTable creates the 'record_chunks' table with its indexes.
// If the table already exists, it does not create it again.
func (h *RecordsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_records($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init records table", err)
	}

	h.db.Logger.Info("Checked/created table record_chunks")

	return nil
}

// InsertChunk inserts a new record chunk
func (h *RecordsDBHandler) InsertChunk(chunk *model.RecordChunk) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_record_chunk($1, $2, $3, $4, $5, $6, $7, $8)`,
		chunk.PatientRID,
		chunk.SourceType,
		chunk.SourceID,
		chunk.Content,
		chunk.ChunkType,
		pgvector.NewVector(chunk.Embedding),
		chunk.EventDate,
		chunk.Metadata,
	)

	return scanChunk(row, chunk)
}

// InsertChunks inserts all chunks of one processed record
func (h *RecordsDBHandler) InsertChunks(chunks []*model.RecordChunk) error {
	for _, chunk := range chunks {
		if err := h.InsertChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

// SelectChunk retrieves a record chunk by RID
func (h *RecordsDBHandler) SelectChunk(rid uuid.UUID) (*model.RecordChunk, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_record_chunk($1)`,
		rid,
	)

	chunk := &model.RecordChunk{}
	err := scanChunk(row, chunk)
	if err != nil {
		return nil, err
	}

	return chunk, nil
}

// SelectChunksByPatient retrieves all record chunks for a patient
func (h *RecordsDBHandler) SelectChunksByPatient(patientRID uuid.UUID) ([]*model.RecordChunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_record_chunks_by_patient($1)`,
		patientRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectChunks(rows, false)
}

// SearchBySimilarity performs a patient-scoped vector similarity search.
// Results are ordered by descending cosine similarity.
func (h *RecordsDBHandler) SearchBySimilarity(ctx context.Context, patientRID uuid.UUID, embedding []float32, limit int, threshold float64) ([]*model.RecordChunk, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT * FROM select_record_chunks_by_similarity($1, $2, $3, $4)`,
		patientRID,
		pgvector.NewVector(embedding),
		limit,
		threshold,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectChunks(rows, true)
}

// SearchByKeywords performs a patient-scoped lexical search over chunk content
func (h *RecordsDBHandler) SearchByKeywords(ctx context.Context, patientRID uuid.UUID, keywords []string, limit int) ([]*model.RecordChunk, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT * FROM select_record_chunks_by_keywords($1, $2, $3)`,
		patientRID,
		pq.Array(keywords),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectChunks(rows, false)
}

// DeleteChunksBySource deletes all chunks of one source record, returning the
// number of deleted rows. Used when a record is re-ingested.
func (h *RecordsDBHandler) DeleteChunksBySource(patientRID uuid.UUID, sourceType model.SourceType, sourceID string) (int64, error) {
	var deleted int64
	err := h.db.Instance.QueryRow(
		`SELECT delete_record_chunks_by_source($1, $2, $3)`,
		patientRID,
		sourceType,
		sourceID,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return deleted, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner, chunk *model.RecordChunk) error {
	var embedding pgvector.Vector
	err := row.Scan(
		&chunk.ID,
		&chunk.RID,
		&chunk.PatientRID,
		&chunk.SourceType,
		&chunk.SourceID,
		&chunk.Content,
		&chunk.ChunkType,
		&embedding,
		&chunk.EventDate,
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	chunk.Embedding = embedding.Slice()
	return nil
}

func scanChunkWithSimilarity(row rowScanner, chunk *model.RecordChunk) error {
	var embedding pgvector.Vector
	err := row.Scan(
		&chunk.ID,
		&chunk.RID,
		&chunk.PatientRID,
		&chunk.SourceType,
		&chunk.SourceID,
		&chunk.Content,
		&chunk.ChunkType,
		&embedding,
		&chunk.EventDate,
		&chunk.Metadata,
		&chunk.CreatedAt,
		&chunk.Similarity,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	chunk.Embedding = embedding.Slice()
	return nil
}

func collectChunks(rows interface {
	rowScanner
	Next() bool
	Err() error
}, withSimilarity bool) ([]*model.RecordChunk, error) {
	var chunks []*model.RecordChunk
	for rows.Next() {
		chunk := &model.RecordChunk{}

		var err error
		if withSimilarity {
			err = scanChunkWithSimilarity(rows, chunk)
		} else {
			err = scanChunk(rows, chunk)
		}
		if err != nil {
			return nil, err
		}

		chunks = append(chunks, chunk)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}
