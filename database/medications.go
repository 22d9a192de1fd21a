package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medgrain/clinctx/helper"
	"github.com/medgrain/clinctx/model"
	loadSql "github.com/medgrain/clinctx/sql"
)

// MedicationsDBHandlerFunctions defines the interface for medication database operations.
type MedicationsDBHandlerFunctions interface {
	InsertMedication(medication *model.Medication) error
	SelectMedicationsByPatient(patientRID uuid.UUID) ([]*model.Medication, error)
	ActiveMedications(ctx context.Context, patientRID uuid.UUID) ([]*model.Medication, error)
	StopMedication(rid uuid.UUID, stoppedAt *time.Time) (*model.Medication, error)
	DeleteMedication(rid uuid.UUID) error
}

// MedicationsDBHandler handles medication-related database operations
type MedicationsDBHandler struct {
	db *helper.Database
}

// NewMedicationsDBHandler creates a new medications database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewMedicationsDBHandler(db *helper.Database, force bool) (*MedicationsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	medicationsDbHandler := &MedicationsDBHandler{
		db: db,
	}

	err := loadSql.LoadMedicationsSql(medicationsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load medications sql", err)
	}

	err = medicationsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized MedicationsDBHandler")

	return medicationsDbHandler, nil
}

// CreateTable creates the 'medications' table with its indexes
func (h *MedicationsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_medications();`)
	if err != nil {
		return helper.NewError("init medications table", err)
	}

	h.db.Logger.Info("Checked/created table medications")

	return nil
}

// InsertMedication inserts a new medication
func (h *MedicationsDBHandler) InsertMedication(medication *model.Medication) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_medication($1, $2, $3, $4, $5)`,
		medication.PatientRID,
		medication.Name,
		medication.Dosage,
		medication.Frequency,
		medication.StartedAt,
	)

	return scanMedication(row, medication)
}

// SelectMedicationsByPatient retrieves all medications for a patient,
// active first
func (h *MedicationsDBHandler) SelectMedicationsByPatient(patientRID uuid.UUID) ([]*model.Medication, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_medications_by_patient($1)`,
		patientRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var medications []*model.Medication
	for rows.Next() {
		medication := &model.Medication{}
		if err := scanMedication(rows, medication); err != nil {
			return nil, err
		}
		medications = append(medications, medication)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return medications, nil
}

// ActiveMedications retrieves the active medications for a patient. This is
// the structured lookup behind medication-biased retrieval.
func (h *MedicationsDBHandler) ActiveMedications(ctx context.Context, patientRID uuid.UUID) ([]*model.Medication, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT * FROM select_active_medications($1)`,
		patientRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var medications []*model.Medication
	for rows.Next() {
		medication := &model.Medication{}
		if err := scanMedication(rows, medication); err != nil {
			return nil, err
		}
		medications = append(medications, medication)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return medications, nil
}

// StopMedication marks a medication inactive. A nil stoppedAt stops it now.
func (h *MedicationsDBHandler) StopMedication(rid uuid.UUID, stoppedAt *time.Time) (*model.Medication, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM stop_medication($1, $2)`,
		rid,
		stoppedAt,
	)

	medication := &model.Medication{}
	err := scanMedication(row, medication)
	if err != nil {
		return nil, err
	}

	return medication, nil
}

// DeleteMedication deletes a medication by RID
func (h *MedicationsDBHandler) DeleteMedication(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_medication($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanMedication(row rowScanner, medication *model.Medication) error {
	err := row.Scan(
		&medication.ID,
		&medication.RID,
		&medication.PatientRID,
		&medication.Name,
		&medication.Dosage,
		&medication.Frequency,
		&medication.Active,
		&medication.StartedAt,
		&medication.StoppedAt,
		&medication.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}
	return nil
}
