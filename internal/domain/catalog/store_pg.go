package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

type storePG struct{ pool db.DBTX }

func NewStorePG(pool db.DBTX) Store { return &storePG{pool: pool} }

func (r *storePG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

func (r *storePG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, full_name, phone, user_id, active FROM patient WHERE id = $1`, id,
	).Scan(&p.ID, &p.FullName, &p.Phone, &p.UserID, &p.Active)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

func (r *storePG) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT d.id, d.full_name, d.specialty_id, s.name, d.user_id, d.active
		FROM doctor d LEFT JOIN specialty s ON s.id = d.specialty_id
		WHERE d.id = $1`, id,
	).Scan(&d.ID, &d.FullName, &d.SpecialtyID, &d.Specialty, &d.UserID, &d.Active)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("doctor not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return &d, nil
}

func (r *storePG) GetService(ctx context.Context, id uuid.UUID) (*ClinicService, error) {
	var s ClinicService
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, category, price, active FROM clinic_service WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Category, &s.Price, &s.Active)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("service not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &s, nil
}

func (r *storePG) GetMedicines(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error) {
	out := make(map[uuid.UUID]*Medicine, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, unit, price, active FROM medicine WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get medicines: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Medicine, error) {
		var m Medicine
		err := row.Scan(&m.ID, &m.Name, &m.Unit, &m.Price, &m.Active)
		return &m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan medicines: %w", err)
	}
	for _, m := range items {
		out[m.ID] = m
	}
	return out, nil
}

func (r *storePG) GetLabTests(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*LabTest, error) {
	out := make(map[uuid.UUID]*LabTest, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, price, active FROM lab_test WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get lab tests: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*LabTest, error) {
		var t LabTest
		err := row.Scan(&t.ID, &t.Name, &t.Price, &t.Active)
		return &t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan lab tests: %w", err)
	}
	for _, t := range items {
		out[t.ID] = t
	}
	return out, nil
}
