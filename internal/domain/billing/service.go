package billing

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/domain/catalog"
	"github.com/clinicops/clinic/internal/domain/encounter"
	"github.com/clinicops/clinic/internal/domain/scheduling"
	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/db"
	"github.com/clinicops/clinic/internal/platform/middleware"
	"github.com/clinicops/clinic/internal/platform/metrics"
	"github.com/clinicops/clinic/pkg/seqcode"
)

// Encounters is the part of the encounter workflow that invoicing drives.
// *encounter.Service satisfies it.
type Encounters interface {
	Ensure(ctx context.Context, a *scheduling.Appointment) (*encounter.Encounter, error)
	Load(ctx context.Context, e *encounter.Encounter) (*encounter.Detail, error)
	Finalize(ctx context.Context, e *encounter.Encounter, at time.Time) error
	PriceItem(ctx context.Context, itemID uuid.UUID, price float64) error
}

type Service struct {
	invoices     InvoiceRepository
	appointments scheduling.AppointmentRepository
	encounters   Encounters
	catalog      catalog.Store
	tx           db.Transactor
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(inv InvoiceRepository, appts scheduling.AppointmentRepository, enc Encounters, cat catalog.Store, tx db.Transactor, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		invoices:     inv,
		appointments: appts,
		encounters:   enc,
		catalog:      cat,
		tx:           tx,
		logger:       logger,
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// log returns the service logger tagged with the request id carried by ctx.
func (s *Service) log(ctx context.Context) *zerolog.Logger {
	l := middleware.ContextLogger(ctx, s.logger)
	return &l
}

// CompleteEncounter closes the visit and generates its invoice in one
// transaction. Calling it again returns the invoice already generated.
func (s *Service) CompleteEncounter(ctx context.Context, caller auth.Context, appointmentID uuid.UUID) (*Invoice, error) {
	if !caller.IsDoctor() && !caller.IsAdmin() {
		return nil, apperr.Forbidden("only the appointment's doctor can complete the visit")
	}

	var inv *Invoice
	var created bool
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		created = false
		a, err := s.appointments.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if err := encounter.AuthorizeDoctor(caller, a); err != nil {
			return err
		}

		existing, err := s.invoices.FindByAppointment(ctx, a.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			inv = existing
			return nil
		}

		inv, err = s.generate(ctx, a)
		created = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.metrics.InvoiceGenerated(inv.TotalAmount)
		s.log(ctx).Info().
			Str("invoice", inv.Code).
			Str("appointment_id", appointmentID.String()).
			Int("items", len(inv.Items)).
			Float64("total", inv.TotalAmount).
			Msg("invoice generated")
		inv.Payments = []Payment{}
		return inv, nil
	}
	return s.withLines(ctx, inv)
}

func (s *Service) generate(ctx context.Context, a *scheduling.Appointment) (*Invoice, error) {
	switch {
	case scheduling.IsOpen(a.Status):
		if err := s.appointments.UpdateStatus(ctx, a.ID, scheduling.StatusDone); err != nil {
			return nil, err
		}
	case a.Status == scheduling.StatusDone:
	default:
		return nil, apperr.Validation("appointment is %s and cannot be completed", a.Status)
	}

	e, err := s.encounters.Ensure(ctx, a)
	if err != nil {
		return nil, err
	}
	if e.Status != encounter.StatusDraft {
		return nil, apperr.Invariant("encounter %s is %s but appointment %s has no invoice", e.Code, e.Status, a.Code)
	}
	detail, err := s.encounters.Load(ctx, e)
	if err != nil {
		return nil, err
	}
	items, err := s.buildItems(ctx, a, detail)
	if err != nil {
		return nil, err
	}

	patient, err := s.catalog.GetPatient(ctx, a.PatientID)
	if err != nil {
		return nil, err
	}
	doctor, err := s.catalog.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		return nil, err
	}
	last, err := s.invoices.LastCode(ctx)
	if err != nil {
		return nil, err
	}

	var subtotal float64
	for _, it := range items {
		subtotal += it.LineTotal
	}
	subtotal = roundMoney(subtotal)

	apptID, encID, doctorID := a.ID, e.ID, a.DoctorID
	inv := &Invoice{
		Code:          seqcode.Next(seqcode.Invoice, last, seqcode.DefaultWidth),
		AppointmentID: &apptID,
		EncounterID:   &encID,
		PatientID:     a.PatientID,
		DoctorID:      &doctorID,
		PatientName:   patient.FullName,
		DoctorName:    doctor.FullName,
		Subtotal:      subtotal,
		TotalAmount:   subtotal,
		Status:        PaymentStatus(0, subtotal),
		Items:         items,
	}
	if patient.Phone != nil {
		inv.PatientPhone = *patient.Phone
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}

	if err := s.encounters.Finalize(ctx, e, s.now()); err != nil {
		return nil, err
	}
	if err := s.appointments.SetFinalCost(ctx, a.ID, inv.TotalAmount); err != nil {
		return nil, err
	}
	return inv, nil
}

// buildItems lists the billable lines in order: the visit service, lab tests,
// then dispensed medicines. Zero-priced lines are left out. Lab and medicine
// lines reference the lab order item or prescription item they bill.
func (s *Service) buildItems(ctx context.Context, a *scheduling.Appointment, d *encounter.Detail) ([]InvoiceItem, error) {
	items := []InvoiceItem{}
	add := func(kind string, ref uuid.UUID, desc string, qty int, price float64) {
		id := ref
		items = append(items, InvoiceItem{
			ItemType:    kind,
			RefID:       &id,
			Description: desc,
			Quantity:    qty,
			UnitPrice:   price,
			LineTotal:   roundMoney(float64(qty) * price),
			Sequence:    len(items) + 1,
		})
	}

	if a.ServiceID != nil {
		svc, err := s.catalog.GetService(ctx, *a.ServiceID)
		if err != nil {
			return nil, err
		}
		if svc.Price > 0 {
			add(ItemService, svc.ID, svc.Name, 1, svc.Price)
		}
	}

	var testIDs []uuid.UUID
	for _, o := range d.LabOrders {
		for _, it := range o.Items {
			testIDs = append(testIDs, it.LabTestID)
		}
	}
	tests, err := s.catalog.GetLabTests(ctx, testIDs)
	if err != nil {
		return nil, err
	}
	for _, o := range d.LabOrders {
		for _, it := range o.Items {
			if it.Status == encounter.LabStatusCancelled {
				continue
			}
			if t, ok := tests[it.LabTestID]; ok && t.Price > 0 {
				add(ItemLab, it.ID, it.TestName, 1, t.Price)
			}
		}
	}

	var medIDs []uuid.UUID
	for _, rx := range d.Prescriptions {
		for _, it := range rx.Items {
			if it.MedicineID != nil {
				medIDs = append(medIDs, *it.MedicineID)
			}
		}
	}
	meds, err := s.catalog.GetMedicines(ctx, medIDs)
	if err != nil {
		return nil, err
	}
	for _, rx := range d.Prescriptions {
		for _, it := range rx.Items {
			if it.MedicineID == nil {
				continue
			}
			med, ok := meds[*it.MedicineID]
			if !ok {
				continue
			}
			price := med.Price
			if it.UnitPrice != nil {
				price = *it.UnitPrice
			} else if price > 0 {
				if err := s.encounters.PriceItem(ctx, it.ID, price); err != nil {
					return nil, err
				}
			}
			if price <= 0 {
				continue
			}
			qty := 1
			if it.Quantity != nil && *it.Quantity > 0 {
				qty = *it.Quantity
			}
			add(ItemMedicine, it.ID, med.Name, qty, price)
		}
	}
	return items, nil
}

// RecordPayment appends a payment and recomputes the invoice status.
func (s *Service) RecordPayment(ctx context.Context, caller auth.Context, invoiceID uuid.UUID, in PaymentInput) (*Invoice, error) {
	if !caller.IsStaff() {
		return nil, apperr.Forbidden("only front desk staff can record payments")
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) {
		return nil, apperr.Validation("amount must be a number")
	}
	amount := roundMoney(in.Amount)
	if amount <= 0 {
		return nil, apperr.Validation("amount must be at least 0.01")
	}
	in.Method = strings.TrimSpace(in.Method)
	if !validMethods[in.Method] {
		return nil, apperr.Validation("invalid payment method: %s", in.Method)
	}

	var inv *Invoice
	var p *Payment
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return apperr.Validation("invoice %s is cancelled", inv.Code)
		}

		p = &Payment{InvoiceID: inv.ID, Amount: amount, Method: in.Method}
		if ref := strings.TrimSpace(in.RefNumber); ref != "" {
			p.RefNumber = &ref
		}
		if note := strings.TrimSpace(in.Note); note != "" {
			p.Note = &note
		}
		if err := s.invoices.AddPayment(ctx, p); err != nil {
			return err
		}

		paid := roundMoney(inv.PaidAmount + p.Amount)
		status := PaymentStatus(paid, inv.TotalAmount)
		if err := s.invoices.UpdatePaid(ctx, inv.ID, paid, status); err != nil {
			return err
		}
		inv.PaidAmount, inv.Status = paid, status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentRecorded(p.Method, inv.Status)
	l := s.log(ctx)
	ev := l.Info()
	if inv.PaidAmount > inv.TotalAmount {
		ev = l.Warn()
	}
	ev.Str("invoice", inv.Code).
		Str("method", p.Method).
		Float64("amount", p.Amount).
		Float64("paid", inv.PaidAmount).
		Float64("total", inv.TotalAmount).
		Str("status", inv.Status).
		Msg("payment recorded")
	return s.withLines(ctx, inv)
}

func canView(caller auth.Context, inv *Invoice) bool {
	switch {
	case caller.IsStaff():
		return true
	case caller.IsPatient():
		return caller.OwnsPatient(inv.PatientID)
	case caller.IsDoctor():
		return inv.DoctorID != nil && caller.OwnsDoctor(*inv.DoctorID)
	}
	return false
}

// GetInvoice returns the invoice with its items and payments.
func (s *Service) GetInvoice(ctx context.Context, caller auth.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, inv) {
		return nil, apperr.Forbidden("invoice belongs to another patient")
	}
	return s.withLines(ctx, inv)
}

// ListInvoices pages through invoice headers. Patients only see their own.
func (s *Service) ListInvoices(ctx context.Context, caller auth.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	switch {
	case caller.IsStaff():
	case caller.IsPatient():
		if caller.PatientID == nil {
			return nil, 0, apperr.Forbidden("caller has no patient profile")
		}
		id := *caller.PatientID
		f.PatientID = &id
	default:
		return nil, 0, apperr.Forbidden("only staff and patients can list invoices")
	}
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, apperr.Validation("invalid status filter: %s", f.Status)
	}
	return s.invoices.List(ctx, f, limit, offset)
}

func (s *Service) withLines(ctx context.Context, inv *Invoice) (*Invoice, error) {
	items, err := s.invoices.ListItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	payments, err := s.invoices.ListPayments(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []InvoiceItem{}
	}
	if payments == nil {
		payments = []Payment{}
	}
	inv.Items, inv.Payments = items, payments
	return inv, nil
}
