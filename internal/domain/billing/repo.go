package billing

import (
	"context"

	"github.com/google/uuid"
)

type InvoiceRepository interface {
	LastCode(ctx context.Context) (string, error)
	// FindByAppointment returns nil without error when no invoice exists.
	FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error)
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	ListItems(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceItem, error)
	ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)
	AddPayment(ctx context.Context, p *Payment) error
	UpdatePaid(ctx context.Context, id uuid.UUID, paid float64, status string) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error)
}
