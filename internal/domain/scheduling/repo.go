package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	LastCode(ctx context.Context) (string, error)
	SlotTaken(ctx context.Context, doctorID uuid.UUID, visitDate, visitTime string) (bool, error)
	MaxQueueNo(ctx context.Context, doctorID uuid.UUID, visitDate string) (int, error)
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	SetFinalCost(ctx context.Context, id uuid.UUID, cost float64) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
}
