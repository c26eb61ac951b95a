package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Store is the read-only catalog interface used by the booking and billing
// services. Single lookups return an apperr NotFound for unknown ids; batch
// lookups omit unknown ids from the result map.
type Store interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetService(ctx context.Context, id uuid.UUID) (*ClinicService, error)
	GetMedicines(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error)
	GetLabTests(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*LabTest, error)
}
