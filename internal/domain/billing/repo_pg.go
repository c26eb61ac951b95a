package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

// Constraint names from migrations/004_billing.sql.
const (
	constraintAppointment = "invoice_appointment_uniq"
	constraintCode        = "invoice_code_key"
)

type invoiceRepoPG struct{ pool db.DBTX }

func NewInvoiceRepoPG(pool db.DBTX) InvoiceRepository {
	return &invoiceRepoPG{pool: pool}
}

func (r *invoiceRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const invoiceCols = `id, code, appointment_id, encounter_id, patient_id, doctor_id,
	patient_name, patient_phone, doctor_name, subtotal, discount, tax,
	total_amount, paid_amount, status, note, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Code, &inv.AppointmentID, &inv.EncounterID, &inv.PatientID, &inv.DoctorID,
		&inv.PatientName, &inv.PatientPhone, &inv.DoctorName, &inv.Subtotal, &inv.Discount, &inv.Tax,
		&inv.TotalAmount, &inv.PaidAmount, &inv.Status, &inv.Note, &inv.CreatedAt, &inv.UpdatedAt)
	return &inv, err
}

func (r *invoiceRepoPG) LastCode(ctx context.Context) (string, error) {
	return db.LastCode(ctx, r.conn(ctx), "invoice")
}

func (r *invoiceRepoPG) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM invoice WHERE appointment_id = $1`, appointmentID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	return inv, nil
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO invoice (id, code, appointment_id, encounter_id, patient_id, doctor_id,
			patient_name, patient_phone, doctor_name, subtotal, discount, tax,
			total_amount, paid_amount, status, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`,
		inv.ID, inv.Code, inv.AppointmentID, inv.EncounterID, inv.PatientID, inv.DoctorID,
		inv.PatientName, inv.PatientPhone, inv.DoctorName, inv.Subtotal, inv.Discount, inv.Tax,
		inv.TotalAmount, inv.PaidAmount, inv.Status, inv.Note,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err, constraintAppointment):
		return apperr.Wrap(apperr.KindConflict, err, "appointment is already invoiced")
	case db.IsUniqueViolation(err, constraintCode):
		return db.MarkRetryable(err)
	case err != nil:
		return fmt.Errorf("insert invoice: %w", err)
	}

	for i := range inv.Items {
		it := &inv.Items[i]
		it.ID = uuid.New()
		it.InvoiceID = inv.ID
		if _, err := q.Exec(ctx, `
			INSERT INTO invoice_item (id, invoice_id, item_type, ref_id, description,
				quantity, unit_price, line_total, sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.ID, it.InvoiceID, it.ItemType, it.RefID, it.Description,
			it.Quantity, it.UnitPrice, it.LineTotal, it.Sequence,
		); err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return nil
}

func (r *invoiceRepoPG) get(ctx context.Context, id uuid.UUID, lock string) (*Invoice, error) {
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM invoice WHERE id = $1`+lock, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("invoice not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.get(ctx, id, "")
}

func (r *invoiceRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *invoiceRepoPG) ListItems(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, item_type, ref_id, description, quantity, unit_price, line_total, sequence
		FROM invoice_item WHERE invoice_id = $1 ORDER BY sequence`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (InvoiceItem, error) {
		var it InvoiceItem
		err := row.Scan(&it.ID, &it.InvoiceID, &it.ItemType, &it.RefID, &it.Description,
			&it.Quantity, &it.UnitPrice, &it.LineTotal, &it.Sequence)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan invoice items: %w", err)
	}
	return items, nil
}

func (r *invoiceRepoPG) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, amount, method, ref_number, note, paid_at
		FROM payment WHERE invoice_id = $1 ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var p Payment
		err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.RefNumber, &p.Note, &p.PaidAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}
	return payments, nil
}

func (r *invoiceRepoPG) AddPayment(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payment (id, invoice_id, amount, method, ref_number, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING paid_at`,
		p.ID, p.InvoiceID, p.Amount, p.Method, p.RefNumber, p.Note,
	).Scan(&p.PaidAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *invoiceRepoPG) UpdatePaid(ctx context.Context, id uuid.UUID, paid float64, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice SET paid_amount = $2, status = $3, updated_at = NOW()
		WHERE id = $1`, id, paid, status)
	if err != nil {
		return fmt.Errorf("update invoice payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("invoice not found")
	}
	return nil
}

func (r *invoiceRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	query := `SELECT ` + invoiceCols + ` FROM invoice` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, code DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}
