package encounter

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/domain/catalog"
	"github.com/clinicops/clinic/internal/domain/scheduling"
	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/db"
	"github.com/clinicops/clinic/internal/platform/middleware"
	"github.com/clinicops/clinic/pkg/seqcode"
)

type Service struct {
	encounters   Repository
	appointments scheduling.AppointmentRepository
	catalog      catalog.Store
	tx           db.Transactor
	logger       zerolog.Logger
}

func NewService(enc Repository, appts scheduling.AppointmentRepository, cat catalog.Store, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{encounters: enc, appointments: appts, catalog: cat, tx: tx, logger: logger}
}

// log returns the service logger tagged with the request id carried by ctx.
func (s *Service) log(ctx context.Context) *zerolog.Logger {
	l := middleware.ContextLogger(ctx, s.logger)
	return &l
}

// AuthorizeDoctor allows the appointment's own doctor, or an admin.
func AuthorizeDoctor(caller auth.Context, a *scheduling.Appointment) error {
	if caller.IsAdmin() || (caller.IsDoctor() && caller.OwnsDoctor(a.DoctorID)) {
		return nil
	}
	return apperr.Forbidden("only the appointment's doctor can record this visit")
}

// CheckConsistent verifies the encounter still belongs to the appointment's
// patient and doctor.
func CheckConsistent(e *Encounter, a *scheduling.Appointment) error {
	if e.PatientID != a.PatientID || e.DoctorID != a.DoctorID {
		return apperr.Invariant("encounter %s does not match appointment %s", e.Code, a.Code)
	}
	return nil
}

// openVisit locks the appointment and returns it with its encounter, if any.
// It must run inside a transaction.
func (s *Service) openVisit(ctx context.Context, caller auth.Context, appointmentID uuid.UUID) (*scheduling.Appointment, *Encounter, error) {
	a, err := s.appointments.GetForUpdate(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}
	if err := AuthorizeDoctor(caller, a); err != nil {
		return nil, nil, err
	}
	if !scheduling.IsOpen(a.Status) {
		return nil, nil, apperr.Validation("appointment is %s and no longer accepts clinical records", a.Status)
	}

	e, err := s.encounters.FindByAppointment(ctx, a.ID)
	if err != nil {
		return nil, nil, err
	}
	if e == nil {
		return a, nil, nil
	}
	if err := CheckConsistent(e, a); err != nil {
		return nil, nil, err
	}
	if e.Status != StatusDraft {
		return nil, nil, apperr.Validation("encounter %s is %s", e.Code, e.Status)
	}
	return a, e, nil
}

func (s *Service) nextCode(ctx context.Context, table, prefix string) (string, error) {
	last, err := s.encounters.LastCode(ctx, table)
	if err != nil {
		return "", err
	}
	return seqcode.Next(prefix, last, seqcode.DefaultWidth), nil
}

// Ensure returns the appointment's encounter, creating an empty draft when the
// doctor recorded nothing. It must run inside a transaction.
func (s *Service) Ensure(ctx context.Context, a *scheduling.Appointment) (*Encounter, error) {
	e, err := s.encounters.FindByAppointment(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if e != nil {
		if err := CheckConsistent(e, a); err != nil {
			return nil, err
		}
		return e, nil
	}
	return s.create(ctx, a, DiagnosisInput{})
}

func (s *Service) create(ctx context.Context, a *scheduling.Appointment, in DiagnosisInput) (*Encounter, error) {
	code, err := s.nextCode(ctx, TableEncounter, seqcode.Encounter)
	if err != nil {
		return nil, err
	}
	apptID := a.ID
	e := &Encounter{
		Code:          code,
		AppointmentID: &apptID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		ServiceID:     a.ServiceID,
		Symptoms:      in.Symptoms,
		Diagnosis:     in.Diagnosis,
		DoctorNote:    in.Note,
		Status:        StatusDraft,
	}
	if err := s.encounters.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// SaveDiagnosis creates the encounter on first call and updates it after.
func (s *Service) SaveDiagnosis(ctx context.Context, caller auth.Context, appointmentID uuid.UUID, in DiagnosisInput) (*Encounter, error) {
	in.Symptoms = strings.TrimSpace(in.Symptoms)
	in.Diagnosis = strings.TrimSpace(in.Diagnosis)
	in.Note = strings.TrimSpace(in.Note)
	if in.Symptoms == "" {
		return nil, apperr.Validation("symptoms are required")
	}
	if in.Diagnosis == "" {
		return nil, apperr.Validation("diagnosis is required")
	}

	var out *Encounter
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		a, e, err := s.openVisit(ctx, caller, appointmentID)
		if err != nil {
			return err
		}
		if e == nil {
			out, err = s.create(ctx, a, in)
			return err
		}
		e.Symptoms, e.Diagnosis, e.DoctorNote = in.Symptoms, in.Diagnosis, in.Note
		out = e
		return s.encounters.UpdateDiagnosis(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx).Info().Str("encounter", out.Code).Str("appointment_id", appointmentID.String()).Msg("diagnosis saved")
	return out, nil
}

// dedupe drops repeated ids, keeping the first position of each.
func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}

// CreateLabOrder appends a new lab order with one item per distinct test.
func (s *Service) CreateLabOrder(ctx context.Context, caller auth.Context, appointmentID uuid.UUID, in LabOrderInput) (*LabOrder, error) {
	in.Note = strings.TrimSpace(in.Note)
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if !validPriorities[in.Priority] {
		return nil, apperr.Validation("invalid priority: %s", in.Priority)
	}
	for _, id := range in.TestIDs {
		if id == uuid.Nil {
			return nil, apperr.Validation("unknown lab tests: %s", uuid.Nil)
		}
	}
	ids := dedupe(in.TestIDs)
	if len(ids) == 0 && in.Note == "" {
		return nil, apperr.Validation("select at least one lab test or explain why none were ordered")
	}

	tests, err := s.catalog.GetLabTests(ctx, ids)
	if err != nil {
		return nil, err
	}
	var unknown []uuid.UUID
	for _, id := range ids {
		if t, ok := tests[id]; !ok || !t.Active {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, apperr.Validation("unknown lab tests: %s", joinIDs(unknown))
	}

	var order *LabOrder
	err = s.tx.Run(ctx, func(ctx context.Context) error {
		_, e, err := s.openVisit(ctx, caller, appointmentID)
		if err != nil {
			return err
		}
		if e == nil {
			return apperr.Validation("record a diagnosis before ordering lab tests")
		}
		code, err := s.nextCode(ctx, TableLabOrder, seqcode.LabOrder)
		if err != nil {
			return err
		}

		order = &LabOrder{
			Code:        code,
			EncounterID: e.ID,
			PatientID:   e.PatientID,
			DoctorID:    e.DoctorID,
			Priority:    in.Priority,
			Note:        in.Note,
			Status:      LabStatusProcessing,
			Items:       make([]LabOrderItem, 0, len(ids)),
		}
		for i, id := range ids {
			order.Items = append(order.Items, LabOrderItem{
				LabTestID: id,
				TestName:  tests[id].Name,
				Sequence:  i + 1,
				Status:    LabStatusProcessing,
			})
		}
		return s.encounters.CreateLabOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx).Info().Str("lab_order", order.Code).Int("tests", len(order.Items)).Msg("lab order created")
	return order, nil
}

// CreatePrescription appends a new prescription. Prices are resolved when the
// encounter is invoiced.
func (s *Service) CreatePrescription(ctx context.Context, caller auth.Context, appointmentID uuid.UUID, in PrescriptionInput) (*Prescription, error) {
	if len(in.Lines) == 0 {
		return nil, apperr.Validation("a prescription needs at least one line")
	}

	items := make([]PrescriptionItem, 0, len(in.Lines))
	var medIDs []uuid.UUID
	for i, ln := range in.Lines {
		name := strings.TrimSpace(ln.CustomName)
		if (ln.MedicineID == nil || *ln.MedicineID == uuid.Nil) && name == "" {
			return nil, apperr.Validation("line %d: medicine_id or custom_name is required", i+1)
		}
		if strings.TrimSpace(ln.Dose) == "" {
			return nil, apperr.Validation("line %d: dose is required", i+1)
		}
		if ln.Quantity != nil && *ln.Quantity <= 0 {
			return nil, apperr.Validation("line %d: quantity must be positive", i+1)
		}

		it := PrescriptionItem{
			Dose:      ln.Dose,
			Frequency: ln.Frequency,
			Duration:  ln.Duration,
			Quantity:  ln.Quantity,
			Sequence:  i + 1,
		}
		if ln.MedicineID != nil && *ln.MedicineID != uuid.Nil {
			id := *ln.MedicineID
			it.MedicineID = &id
			medIDs = append(medIDs, id)
		}
		if name != "" {
			it.CustomName = &name
		}
		if note := strings.TrimSpace(ln.Note); note != "" {
			it.Note = &note
		}
		items = append(items, it)
	}

	medIDs = dedupe(medIDs)
	meds, err := s.catalog.GetMedicines(ctx, medIDs)
	if err != nil {
		return nil, err
	}
	var unknown []uuid.UUID
	for _, id := range medIDs {
		if _, ok := meds[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, apperr.Validation("unknown medicines: %s", joinIDs(unknown))
	}

	var rx *Prescription
	err = s.tx.Run(ctx, func(ctx context.Context) error {
		_, e, err := s.openVisit(ctx, caller, appointmentID)
		if err != nil {
			return err
		}
		if e == nil {
			return apperr.Validation("record a diagnosis before prescribing")
		}
		code, err := s.nextCode(ctx, TablePrescription, seqcode.Prescription)
		if err != nil {
			return err
		}
		rx = &Prescription{
			Code:        code,
			EncounterID: e.ID,
			Advice:      strings.TrimSpace(in.Advice),
			Items:       items,
		}
		return s.encounters.CreatePrescription(ctx, rx)
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx).Info().Str("prescription", rx.Code).Int("lines", len(rx.Items)).Msg("prescription created")
	return rx, nil
}

// Load returns the encounter of an appointment with its orders. The caller is
// responsible for access checks.
func (s *Service) Load(ctx context.Context, e *Encounter) (*Detail, error) {
	labs, err := s.encounters.ListLabOrders(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	rxs, err := s.encounters.ListPrescriptions(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if labs == nil {
		labs = []*LabOrder{}
	}
	if rxs == nil {
		rxs = []*Prescription{}
	}
	return &Detail{Encounter: e, LabOrders: labs, Prescriptions: rxs}, nil
}

// GetByAppointment returns the encounter detail visible to the caller.
func (s *Service) GetByAppointment(ctx context.Context, caller auth.Context, appointmentID uuid.UUID) (*Detail, error) {
	a, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	switch {
	case caller.IsStaff(), caller.IsDoctor() && caller.OwnsDoctor(a.DoctorID), caller.IsPatient() && caller.OwnsPatient(a.PatientID):
	default:
		return nil, apperr.Forbidden("appointment belongs to another user")
	}

	e, err := s.encounters.FindByAppointment(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.NotFound("no encounter recorded for this appointment")
	}
	return s.Load(ctx, e)
}

// Finalize freezes the encounter.
func (s *Service) Finalize(ctx context.Context, e *Encounter, at time.Time) error {
	if err := s.encounters.Finalize(ctx, e.ID, at); err != nil {
		return err
	}
	e.Status = StatusFinalized
	e.FinalizedAt = &at
	return nil
}

// PriceItem records the unit price resolved for a prescription item.
func (s *Service) PriceItem(ctx context.Context, itemID uuid.UUID, price float64) error {
	return s.encounters.SetItemUnitPrice(ctx, itemID, price)
}
