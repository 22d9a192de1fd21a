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

// LabsDBHandlerFunctions defines the interface for lab result database operations.
type LabsDBHandlerFunctions interface {
	InsertLabResult(lab *model.LabResult) error
	SelectLabResultsByPatient(patientRID uuid.UUID) ([]*model.LabResult, error)
	SelectLabResultsByTest(patientRID uuid.UUID, testName string) ([]*model.LabResult, error)
	AbnormalLabs(ctx context.Context, patientRID uuid.UUID) ([]*model.LabResult, error)
	DeleteLabResult(rid uuid.UUID) error
}

// LabsDBHandler handles lab-result-related database operations
type LabsDBHandler struct {
	db *helper.Database
}

// NewLabsDBHandler creates a new labs database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewLabsDBHandler(db *helper.Database, force bool) (*LabsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	labsDbHandler := &LabsDBHandler{
		db: db,
	}

	err := loadSql.LoadLabsSql(labsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load labs sql", err)
	}

	err = labsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized LabsDBHandler")

	return labsDbHandler, nil
}

// CreateTable creates the 'lab_results' table with its indexes
func (h *LabsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_labs();`)
	if err != nil {
		return helper.NewError("init labs table", err)
	}

	h.db.Logger.Info("Checked/created table lab_results")

	return nil
}

// InsertLabResult inserts a new lab result
func (h *LabsDBHandler) InsertLabResult(lab *model.LabResult) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_lab_result($1, $2, $3, $4, $5, $6, $7)`,
		lab.PatientRID,
		lab.TestName,
		lab.Value,
		lab.Unit,
		lab.RefRange,
		lab.Abnormal,
		lab.ResultedAt,
	)

	return scanLabResult(row, lab)
}

// SelectLabResultsByPatient retrieves all lab results for a patient, newest first
func (h *LabsDBHandler) SelectLabResultsByPatient(patientRID uuid.UUID) ([]*model.LabResult, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_lab_results_by_patient($1)`,
		patientRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectLabResults(rows)
}

// SelectLabResultsByTest retrieves all results of one test for a patient,
// newest first. Used for trend questions over a named measurement.
func (h *LabsDBHandler) SelectLabResultsByTest(patientRID uuid.UUID, testName string) ([]*model.LabResult, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_lab_results_by_test($1, $2)`,
		patientRID,
		testName,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectLabResults(rows)
}

// AbnormalLabs retrieves the abnormal lab results for a patient. This is the
// structured lookup behind lab-biased retrieval.
func (h *LabsDBHandler) AbnormalLabs(ctx context.Context, patientRID uuid.UUID) ([]*model.LabResult, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT * FROM select_abnormal_lab_results($1)`,
		patientRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectLabResults(rows)
}

// DeleteLabResult deletes a lab result by RID
func (h *LabsDBHandler) DeleteLabResult(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_lab_result($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanLabResult(row rowScanner, lab *model.LabResult) error {
	err := row.Scan(
		&lab.ID,
		&lab.RID,
		&lab.PatientRID,
		&lab.TestName,
		&lab.Value,
		&lab.Unit,
		&lab.RefRange,
		&lab.Abnormal,
		&lab.ResultedAt,
		&lab.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}
	return nil
}

func collectLabResults(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]*model.LabResult, error) {
	var labs []*model.LabResult
	for rows.Next() {
		lab := &model.LabResult{}
		if err := scanLabResult(rows, lab); err != nil {
			return nil, err
		}
		labs = append(labs, lab)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return labs, nil
}
