package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/medgrain/clinctx/helper"
	"github.com/medgrain/clinctx/model"
)

// StructuredStore bundles the medication and lab handlers into the single
// structured lookup surface the hybrid retriever consumes
type StructuredStore struct {
	Medications *MedicationsDBHandler
	Labs        *LabsDBHandler
}

// NewStructuredStore creates a structured store from its handlers
func NewStructuredStore(medications *MedicationsDBHandler, labs *LabsDBHandler) (*StructuredStore, error) {
	if medications == nil || labs == nil {
		return nil, helper.NewError("structured store validation", fmt.Errorf("medications and labs handlers must not be nil"))
	}
	return &StructuredStore{
		Medications: medications,
		Labs:        labs,
	}, nil
}

// ActiveMedications delegates to the medications handler
func (s *StructuredStore) ActiveMedications(ctx context.Context, patientRID uuid.UUID) ([]*model.Medication, error) {
	return s.Medications.ActiveMedications(ctx, patientRID)
}

// AbnormalLabs delegates to the labs handler
func (s *StructuredStore) AbnormalLabs(ctx context.Context, patientRID uuid.UUID) ([]*model.LabResult, error) {
	return s.Labs.AbnormalLabs(ctx, patientRID)
}
