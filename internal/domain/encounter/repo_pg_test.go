package encounter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestRepoPG_FindByAppointmentMissing(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM encounter WHERE appointment_id").WillReturnError(pgx.ErrNoRows)

	e, err := NewRepoPG(mock).FindByAppointment(context.Background(), uuid.New())
	if err != nil || e != nil {
		t.Fatalf("expected nil, nil; got %v, %v", e, err)
	}
}

func TestRepoPG_FindByAppointment(t *testing.T) {
	mock := newMock(t)
	id, appt, now := uuid.New(), uuid.New(), time.Now()
	mock.ExpectQuery("FROM encounter WHERE appointment_id").WithArgs(appt).
		WillReturnRows(pgxmock.NewRows([]string{"id", "code", "appointment_id", "patient_id", "doctor_id", "service_id",
			"symptoms", "diagnosis", "doctor_note", "status", "finalized_at", "created_at", "updated_at"}).
			AddRow(id, "KB0003", &appt, uuid.New(), uuid.New(), (*uuid.UUID)(nil),
				"fever", "flu", "", StatusDraft, (*time.Time)(nil), now, now))

	e, err := NewRepoPG(mock).FindByAppointment(context.Background(), appt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID != id || e.Code != "KB0003" || *e.AppointmentID != appt || e.ServiceID != nil {
		t.Errorf("unexpected encounter %+v", e)
	}
}

func TestRepoPG_CreateUniqueViolationIsRetryable(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("INSERT INTO encounter").
		WillReturnError(&pgconn.PgError{Code: db.CodeUniqueViolation, ConstraintName: "encounter_appointment_id_key"})

	err := NewRepoPG(mock).Create(context.Background(), &Encounter{Code: "KB0001", Status: StatusDraft})
	if err == nil || apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected a retryable store error, got %v", err)
	}
	if !db.IsUniqueViolation(err, "encounter_appointment_id_key") {
		t.Errorf("expected wrapped unique violation, got %v", err)
	}
}

func TestRepoPG_UpdateDiagnosisNotDraft(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("UPDATE encounter SET symptoms").WillReturnError(pgx.ErrNoRows)

	err := NewRepoPG(mock).UpdateDiagnosis(context.Background(), &Encounter{ID: uuid.New()})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRepoPG_FinalizeMissingIsInvariant(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("UPDATE encounter SET status = 'finalized'").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewRepoPG(mock).Finalize(context.Background(), uuid.New(), time.Now())
	if !apperr.Is(err, apperr.KindInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestRepoPG_LastCodeUnknownTable(t *testing.T) {
	mock := newMock(t)
	if _, err := NewRepoPG(mock).LastCode(context.Background(), "patient"); err == nil {
		t.Fatal("expected error for unknown table")
	}
}

func TestRepoPG_CreateLabOrderInsertsItems(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("INSERT INTO lab_order").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO lab_order_item").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO lab_order_item").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	o := &LabOrder{Code: "XN0001", Priority: PriorityNormal, Status: LabStatusProcessing, Items: []LabOrderItem{
		{LabTestID: uuid.New(), TestName: "CBC", Sequence: 1, Status: LabStatusProcessing},
		{LabTestID: uuid.New(), TestName: "Glucose", Sequence: 2, Status: LabStatusProcessing},
	}}
	if err := NewRepoPG(mock).CreateLabOrder(context.Background(), o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, it := range o.Items {
		if it.ID == uuid.Nil || it.LabOrderID != o.ID {
			t.Errorf("expected item linked to order, got %+v", it)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepoPG_ListLabOrdersGroupsItems(t *testing.T) {
	mock := newMock(t)
	enc, now := uuid.New(), time.Now()
	o1, o2 := uuid.New(), uuid.New()
	i1, i2 := uuid.New(), uuid.New()
	t1, t2 := uuid.New(), uuid.New()
	name1, name2, processing := "CBC", "Glucose", LabStatusProcessing
	seq1, seq2 := 1, 2

	cols := []string{"id", "code", "encounter_id", "patient_id", "doctor_id", "priority", "note", "status", "created_at",
		"item_id", "lab_test_id", "test_name", "sequence", "result", "item_status", "item_note", "warning"}
	pid, did := uuid.New(), uuid.New()
	mock.ExpectQuery("FROM lab_order o").WithArgs(enc).WillReturnRows(pgxmock.NewRows(cols).
		AddRow(o1, "XN0001", enc, pid, did, PriorityNormal, "", LabStatusProcessing, now,
			&i1, &t1, &name1, &seq1, (*string)(nil), &processing, (*string)(nil), (*string)(nil)).
		AddRow(o1, "XN0001", enc, pid, did, PriorityNormal, "", LabStatusProcessing, now,
			&i2, &t2, &name2, &seq2, (*string)(nil), &processing, (*string)(nil), (*string)(nil)).
		AddRow(o2, "XN0002", enc, pid, did, PriorityUrgent, "declined", LabStatusProcessing, now,
			(*uuid.UUID)(nil), (*uuid.UUID)(nil), (*string)(nil), (*int)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil)))

	orders, err := NewRepoPG(mock).ListLabOrders(context.Background(), enc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if len(orders[0].Items) != 2 || orders[0].Items[1].TestName != "Glucose" {
		t.Errorf("unexpected first order items %+v", orders[0].Items)
	}
	if len(orders[1].Items) != 0 || orders[1].Items == nil {
		t.Errorf("expected empty item slice, got %+v", orders[1].Items)
	}
}

func TestRepoPG_ListPrescriptionsError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM encounter_prescription p").WillReturnError(errors.New("connection lost"))
	if _, err := NewRepoPG(mock).ListPrescriptions(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error")
	}
}
