package encounter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

var codeTables = map[string]bool{TableEncounter: true, TableLabOrder: true, TablePrescription: true}

type repoPG struct{ pool db.DBTX }

func NewRepoPG(pool db.DBTX) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

// Unique violations on codes or the appointment link mean a concurrent writer
// won; the retried transaction sees its row.
func retryOnUnique(err error, what string) error {
	if db.IsUniqueViolation(err, "") {
		return db.MarkRetryable(err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (r *repoPG) LastCode(ctx context.Context, table string) (string, error) {
	if !codeTables[table] {
		return "", fmt.Errorf("unknown code table %q", table)
	}
	return db.LastCode(ctx, r.conn(ctx), table)
}

const encCols = `id, code, appointment_id, patient_id, doctor_id, service_id,
	symptoms, diagnosis, doctor_note, status, finalized_at, created_at, updated_at`

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.Code, &e.AppointmentID, &e.PatientID, &e.DoctorID, &e.ServiceID,
		&e.Symptoms, &e.Diagnosis, &e.DoctorNote, &e.Status, &e.FinalizedAt, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *repoPG) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Encounter, error) {
	e, err := scanEncounter(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encCols+` FROM encounter WHERE appointment_id = $1`, appointmentID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find encounter: %w", err)
	}
	return e, nil
}

func (r *repoPG) Create(ctx context.Context, e *Encounter) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter (id, code, appointment_id, patient_id, doctor_id, service_id,
			symptoms, diagnosis, doctor_note, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		e.ID, e.Code, e.AppointmentID, e.PatientID, e.DoctorID, e.ServiceID,
		e.Symptoms, e.Diagnosis, e.DoctorNote, e.Status,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return retryOnUnique(err, "insert encounter")
	}
	return nil
}

func (r *repoPG) UpdateDiagnosis(ctx context.Context, e *Encounter) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE encounter SET symptoms = $2, diagnosis = $3, doctor_note = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'draft'
		RETURNING updated_at`,
		e.ID, e.Symptoms, e.Diagnosis, e.DoctorNote,
	).Scan(&e.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.Validation("encounter is no longer editable")
	}
	if err != nil {
		return fmt.Errorf("update encounter: %w", err)
	}
	return nil
}

func (r *repoPG) Finalize(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE encounter SET status = 'finalized', finalized_at = $2, updated_at = NOW()
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("finalize encounter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Invariant("encounter %s disappeared during completion", id)
	}
	return nil
}

func (r *repoPG) CreateLabOrder(ctx context.Context, o *LabOrder) error {
	o.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO lab_order (id, code, encounter_id, patient_id, doctor_id, priority, note, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		o.ID, o.Code, o.EncounterID, o.PatientID, o.DoctorID, o.Priority, o.Note, o.Status,
	).Scan(&o.CreatedAt)
	if err != nil {
		return retryOnUnique(err, "insert lab order")
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.ID = uuid.New()
		it.LabOrderID = o.ID
		if _, err := q.Exec(ctx, `
			INSERT INTO lab_order_item (id, lab_order_id, lab_test_id, test_name, sequence, status, note)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, it.LabOrderID, it.LabTestID, it.TestName, it.Sequence, it.Status, it.Note,
		); err != nil {
			return fmt.Errorf("insert lab order item: %w", err)
		}
	}
	return nil
}

func (r *repoPG) ListLabOrders(ctx context.Context, encounterID uuid.UUID) ([]*LabOrder, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT o.id, o.code, o.encounter_id, o.patient_id, o.doctor_id, o.priority, o.note, o.status, o.created_at,
			i.id, i.lab_test_id, i.test_name, i.sequence, i.result, i.status, i.note, i.warning
		FROM lab_order o
		LEFT JOIN lab_order_item i ON i.lab_order_id = o.id
		WHERE o.encounter_id = $1
		ORDER BY o.created_at, o.code, i.sequence`, encounterID)
	if err != nil {
		return nil, fmt.Errorf("list lab orders: %w", err)
	}
	defer rows.Close()

	var orders []*LabOrder
	byID := make(map[uuid.UUID]*LabOrder)
	for rows.Next() {
		var o LabOrder
		var itemID, testID *uuid.UUID
		var name, status *string
		var seq *int
		var it LabOrderItem
		if err := rows.Scan(&o.ID, &o.Code, &o.EncounterID, &o.PatientID, &o.DoctorID,
			&o.Priority, &o.Note, &o.Status, &o.CreatedAt,
			&itemID, &testID, &name, &seq, &it.Result, &status, &it.Note, &it.Warning); err != nil {
			return nil, fmt.Errorf("scan lab order: %w", err)
		}
		order, ok := byID[o.ID]
		if !ok {
			o.Items = []LabOrderItem{}
			order = &o
			byID[o.ID] = order
			orders = append(orders, order)
		}
		if itemID == nil {
			continue
		}
		it.ID, it.LabOrderID, it.LabTestID = *itemID, order.ID, *testID
		it.TestName, it.Sequence, it.Status = *name, *seq, *status
		order.Items = append(order.Items, it)
	}
	return orders, rows.Err()
}

func (r *repoPG) CreatePrescription(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO encounter_prescription (id, code, encounter_id, advice)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		p.ID, p.Code, p.EncounterID, p.Advice,
	).Scan(&p.CreatedAt)
	if err != nil {
		return retryOnUnique(err, "insert prescription")
	}

	for i := range p.Items {
		it := &p.Items[i]
		it.ID = uuid.New()
		it.PrescriptionID = p.ID
		if _, err := q.Exec(ctx, `
			INSERT INTO prescription_item (id, prescription_id, medicine_id, custom_name,
				dose, frequency, duration, quantity, unit_price, note, sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			it.ID, it.PrescriptionID, it.MedicineID, it.CustomName,
			it.Dose, it.Frequency, it.Duration, it.Quantity, it.UnitPrice, it.Note, it.Sequence,
		); err != nil {
			return fmt.Errorf("insert prescription item: %w", err)
		}
	}
	return nil
}

func (r *repoPG) ListPrescriptions(ctx context.Context, encounterID uuid.UUID) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.id, p.code, p.encounter_id, p.advice, p.created_at,
			i.id, i.medicine_id, i.custom_name, i.dose, i.frequency, i.duration,
			i.quantity, i.unit_price, i.note, i.sequence
		FROM encounter_prescription p
		LEFT JOIN prescription_item i ON i.prescription_id = p.id
		WHERE p.encounter_id = $1
		ORDER BY p.created_at, p.code, i.sequence`, encounterID)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	var out []*Prescription
	byID := make(map[uuid.UUID]*Prescription)
	for rows.Next() {
		var p Prescription
		var itemID *uuid.UUID
		var dose, freq, dur *string
		var seq *int
		var it PrescriptionItem
		if err := rows.Scan(&p.ID, &p.Code, &p.EncounterID, &p.Advice, &p.CreatedAt,
			&itemID, &it.MedicineID, &it.CustomName, &dose, &freq, &dur,
			&it.Quantity, &it.UnitPrice, &it.Note, &seq); err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		rx, ok := byID[p.ID]
		if !ok {
			p.Items = []PrescriptionItem{}
			rx = &p
			byID[p.ID] = rx
			out = append(out, rx)
		}
		if itemID == nil {
			continue
		}
		it.ID, it.PrescriptionID = *itemID, rx.ID
		it.Dose, it.Frequency, it.Duration, it.Sequence = *dose, *freq, *dur, *seq
		rx.Items = append(rx.Items, it)
	}
	return out, rows.Err()
}

func (r *repoPG) SetItemUnitPrice(ctx context.Context, itemID uuid.UUID, price float64) error {
	if _, err := r.conn(ctx).Exec(ctx,
		`UPDATE prescription_item SET unit_price = $2 WHERE id = $1`, itemID, price); err != nil {
		return fmt.Errorf("price prescription item: %w", err)
	}
	return nil
}
