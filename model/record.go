package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Metadata represents JSONB metadata stored in PostgreSQL
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}

// RecordChunk is a unit of patient-record text eligible for retrieval.
// Chunks come from documents, encounter notes, or rendered structured rows,
// and carry an embedding for similarity search.
type RecordChunk struct {
	ID         int64      `json:"id"`
	RID        uuid.UUID  `json:"rid"`
	PatientRID uuid.UUID  `json:"patient_rid"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id,omitempty"`
	Content    string     `json:"content"`
	ChunkType  string     `json:"chunk_type,omitempty"`
	Embedding  []float32  `json:"embedding,omitempty"`
	EventDate  *time.Time `json:"event_date,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	// Result fields populated by similarity search
	Similarity *float64 `json:"similarity,omitempty"`
}

// Medication is a structured medication row in a patient's record
type Medication struct {
	ID         int64      `json:"id"`
	RID        uuid.UUID  `json:"rid"`
	PatientRID uuid.UUID  `json:"patient_rid"`
	Name       string     `json:"name"`
	Dosage     string     `json:"dosage,omitempty"`
	Frequency  string     `json:"frequency,omitempty"`
	Active     bool       `json:"active"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// LabResult is a structured lab result row in a patient's record
type LabResult struct {
	ID         int64      `json:"id"`
	RID        uuid.UUID  `json:"rid"`
	PatientRID uuid.UUID  `json:"patient_rid"`
	TestName   string     `json:"test_name"`
	Value      string     `json:"value"`
	Unit       string     `json:"unit,omitempty"`
	RefRange   string     `json:"ref_range,omitempty"`
	Abnormal   bool       `json:"abnormal"`
	ResultedAt *time.Time `json:"resulted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
