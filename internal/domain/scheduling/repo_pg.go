package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

// Constraint names from migrations/002_appointment.sql.
const (
	constraintSlot  = "appointment_slot_uniq"
	constraintQueue = "appointment_doctor_queue_uniq"
	constraintCode  = "appointment_code_key"
)

type appointmentRepoPG struct{ pool db.DBTX }

func NewAppointmentRepoPG(pool db.DBTX) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const apptCols = `a.id, a.code, a.patient_id, a.doctor_id, a.service_id,
	a.visit_date::text, to_char(a.visit_time, 'HH24:MI'), a.reason, a.status,
	a.queue_no, a.final_cost, a.created_at, a.updated_at,
	p.full_name, d.full_name, s.name`

const apptFrom = ` FROM appointment a
	JOIN patient p ON p.id = a.patient_id
	JOIN doctor d ON d.id = a.doctor_id
	LEFT JOIN clinic_service s ON s.id = a.service_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Code, &a.PatientID, &a.DoctorID, &a.ServiceID,
		&a.VisitDate, &a.VisitTime, &a.Reason, &a.Status,
		&a.QueueNo, &a.FinalCost, &a.CreatedAt, &a.UpdatedAt,
		&a.PatientName, &a.DoctorName, &a.ServiceName)
	return &a, err
}

func (r *appointmentRepoPG) LastCode(ctx context.Context) (string, error) {
	return db.LastCode(ctx, r.conn(ctx), "appointment")
}

func (r *appointmentRepoPG) SlotTaken(ctx context.Context, doctorID uuid.UUID, visitDate, visitTime string) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND visit_date = $2::date AND visit_time = $3::time
		)`, doctorID, visitDate, visitTime).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return taken, nil
}

func (r *appointmentRepoPG) MaxQueueNo(ctx context.Context, doctorID uuid.UUID, visitDate string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_no), 0) FROM appointment
		WHERE doctor_id = $1 AND visit_date = $2::date`, doctorID, visitDate).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max queue number: %w", err)
	}
	return n, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, code, patient_id, doctor_id, service_id,
			visit_date, visit_time, reason, status, queue_no)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7::time, $8, $9, $10)
		RETURNING created_at, updated_at`,
		a.ID, a.Code, a.PatientID, a.DoctorID, a.ServiceID,
		a.VisitDate, a.VisitTime, a.Reason, a.Status, a.QueueNo,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, constraintSlot):
		return apperr.Wrap(apperr.KindConflict, err, "time slot is already booked")
	case db.IsUniqueViolation(err, constraintQueue), db.IsUniqueViolation(err, constraintCode):
		return db.MarkRetryable(err)
	}
	return fmt.Errorf("insert appointment: %w", err)
}

func (r *appointmentRepoPG) get(ctx context.Context, id uuid.UUID, lock bool) (*Appointment, error) {
	q := `SELECT ` + apptCols + apptFrom + ` WHERE a.id = $1`
	if lock {
		q += ` FOR UPDATE OF a`
	}
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, q, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, id, false)
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, id, true)
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoPG) SetFinalCost(ctx context.Context, id uuid.UUID, cost float64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET final_cost = $2, updated_at = NOW() WHERE id = $1`, id, cost)
	if err != nil {
		return fmt.Errorf("set final cost: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND a.doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.VisitDate != "" {
		where += fmt.Sprintf(` AND a.visit_date = $%d::date`, idx)
		args = append(args, f.VisitDate)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment a`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := `SELECT ` + apptCols + apptFrom + where +
		fmt.Sprintf(` ORDER BY a.visit_date DESC, a.visit_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
