package encounter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Code tables.
const (
	TableEncounter    = "encounter"
	TableLabOrder     = "lab_order"
	TablePrescription = "encounter_prescription"
)

type Repository interface {
	LastCode(ctx context.Context, table string) (string, error)
	// FindByAppointment returns nil without error when no encounter exists.
	FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Encounter, error)
	Create(ctx context.Context, e *Encounter) error
	UpdateDiagnosis(ctx context.Context, e *Encounter) error
	Finalize(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateLabOrder(ctx context.Context, o *LabOrder) error
	ListLabOrders(ctx context.Context, encounterID uuid.UUID) ([]*LabOrder, error)

	CreatePrescription(ctx context.Context, p *Prescription) error
	ListPrescriptions(ctx context.Context, encounterID uuid.UUID) ([]*Prescription, error)
	SetItemUnitPrice(ctx context.Context, itemID uuid.UUID, price float64) error
}
