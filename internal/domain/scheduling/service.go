package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/domain/catalog"
	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/db"
	"github.com/clinicops/clinic/internal/platform/middleware"
	"github.com/clinicops/clinic/internal/platform/metrics"
	"github.com/clinicops/clinic/pkg/seqcode"
)

type Service struct {
	appointments AppointmentRepository
	catalog      catalog.Store
	tx           db.Transactor
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	loc          *time.Location
	now          func() time.Time
}

type Option func(*Service)

// WithLocation sets the clinic time zone used for the past-time check.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(appts AppointmentRepository, cat catalog.Store, tx db.Transactor, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		appointments: appts,
		catalog:      cat,
		tx:           tx,
		logger:       logger,
		loc:          time.UTC,
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

const dateLayout = "2006-01-02"

// parseVisitTime accepts HH:MM or HH:MM:SS and normalises to HH:MM.
func parseVisitTime(v string) (time.Time, string, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, t.Format("15:04"), nil
		}
	}
	return time.Time{}, "", apperr.Validation("visit_time must be HH:MM or HH:MM:SS")
}

// CreateAppointment books a slot. The slot check, queue allocation and insert
// run in one serializable transaction; a taken slot is reported, never moved.
func (s *Service) CreateAppointment(ctx context.Context, caller auth.Context, in CreateAppointmentInput) (*Appointment, error) {
	if !caller.IsPatient() && !caller.IsStaff() {
		return nil, apperr.Forbidden("only patients and front desk staff can book appointments")
	}

	patientID, err := resolvePatient(caller, in.PatientID)
	if err != nil {
		return nil, err
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	day, err := time.Parse(dateLayout, strings.TrimSpace(in.VisitDate))
	if err != nil {
		return nil, apperr.Validation("visit_date must be YYYY-MM-DD")
	}
	clock, visitTime, err := parseVisitTime(in.VisitTime)
	if err != nil {
		return nil, err
	}

	visitAt := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, s.loc)
	if visitAt.Before(s.now().In(s.loc)) {
		return nil, apperr.Validation("visit time is in the past")
	}

	if err := s.checkParticipants(ctx, patientID, in.DoctorID, in.ServiceID); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID: patientID,
		DoctorID:  in.DoctorID,
		ServiceID: in.ServiceID,
		VisitDate: day.Format(dateLayout),
		VisitTime: visitTime,
		Reason:    strings.TrimSpace(in.Reason),
		Status:    StatusWaiting,
	}
	if caller.IsPatient() {
		a.Status = StatusBooked
	}

	err = s.tx.Run(ctx, func(ctx context.Context) error {
		last, err := s.appointments.LastCode(ctx)
		if err != nil {
			return err
		}
		a.Code = seqcode.Next(seqcode.Appointment, last, seqcode.DefaultWidth)

		taken, err := s.appointments.SlotTaken(ctx, a.DoctorID, a.VisitDate, a.VisitTime)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("time slot is already booked")
		}

		maxQ, err := s.appointments.MaxQueueNo(ctx, a.DoctorID, a.VisitDate)
		if err != nil {
			return err
		}
		q := maxQ + 1
		a.QueueNo = &q

		return s.appointments.Create(ctx, a)
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.metrics.BookingConflict("slot_taken")
			s.log(ctx).Info().
				Str("doctor_id", a.DoctorID.String()).
				Str("visit_date", a.VisitDate).
				Str("visit_time", a.VisitTime).
				Msg("booking rejected, slot taken")
		}
		return nil, err
	}

	s.metrics.AppointmentCreated(a.Status)
	s.log(ctx).Info().
		Str("appointment_id", a.ID.String()).
		Str("code", a.Code).
		Int("queue_no", *a.QueueNo).
		Str("status", a.Status).
		Msg("appointment created")
	return a, nil
}

func resolvePatient(caller auth.Context, requested *uuid.UUID) (uuid.UUID, error) {
	if caller.IsPatient() {
		if caller.PatientID == nil {
			return uuid.Nil, apperr.Forbidden("caller has no patient profile")
		}
		if requested != nil && !caller.OwnsPatient(*requested) {
			return uuid.Nil, apperr.Forbidden("patients can only book for themselves")
		}
		return *caller.PatientID, nil
	}
	if requested == nil || *requested == uuid.Nil {
		return uuid.Nil, apperr.Validation("patient_id is required")
	}
	return *requested, nil
}

func (s *Service) checkParticipants(ctx context.Context, patientID, doctorID uuid.UUID, serviceID *uuid.UUID) error {
	patient, err := s.catalog.GetPatient(ctx, patientID)
	if err != nil {
		return err
	}
	if !patient.Active {
		return apperr.Validation("patient is inactive")
	}

	doctor, err := s.catalog.GetDoctor(ctx, doctorID)
	if err != nil {
		return err
	}
	if !doctor.Active {
		return apperr.Validation("doctor is inactive")
	}

	if serviceID == nil {
		return nil
	}
	svc, err := s.catalog.GetService(ctx, *serviceID)
	if err != nil {
		return err
	}
	if !svc.Active {
		return apperr.Validation("service is inactive")
	}
	if svc.Category != catalog.CategoryVisit {
		return apperr.Validation("service %q cannot be booked as a visit", svc.Name)
	}
	return nil
}

// UpdateStatus moves an appointment through its lifecycle. Setting the current
// status again succeeds without a write.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Context, id uuid.UUID, status string) (*Appointment, error) {
	status = strings.TrimSpace(status)
	if !IsValidStatus(status) {
		return nil, apperr.Validation("invalid appointment status: %s", status)
	}

	var a *Appointment
	var from string
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(caller, a); err != nil {
			return err
		}
		from = a.Status
		if a.Status == status {
			return nil
		}
		if !roleMaySet(caller.Role, status) {
			return apperr.Forbidden("role %s cannot set status %s", caller.Role, status)
		}
		if IsTerminal(a.Status) {
			return apperr.Validation("appointment is %s and can no longer change status", a.Status)
		}
		if !CanTransition(a.Status, status) {
			return apperr.Validation("invalid transition from %s to %s", a.Status, status)
		}
		if err := s.appointments.UpdateStatus(ctx, a.ID, status); err != nil {
			return err
		}
		a.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != status {
		s.metrics.StatusTransition(from, status)
		s.log(ctx).Info().
			Str("appointment_id", a.ID.String()).
			Str("from", from).
			Str("to", status).
			Str("role", caller.Role).
			Msg("appointment status changed")
	}
	return a, nil
}

// authorize restricts patients and doctors to their own appointments.
func authorize(caller auth.Context, a *Appointment) error {
	switch caller.Role {
	case auth.RoleAdmin, auth.RoleReceptionist:
		return nil
	case auth.RoleDoctor:
		if caller.OwnsDoctor(a.DoctorID) {
			return nil
		}
	case auth.RolePatient:
		if caller.OwnsPatient(a.PatientID) {
			return nil
		}
	}
	return apperr.Forbidden("appointment belongs to another user")
}

func (s *Service) GetAppointment(ctx context.Context, caller auth.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAppointments applies f, scoped to the caller's own rows for patients and
// doctors.
func (s *Service) ListAppointments(ctx context.Context, caller auth.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	switch caller.Role {
	case auth.RolePatient:
		if caller.PatientID == nil {
			return nil, 0, apperr.Forbidden("caller has no patient profile")
		}
		f.PatientID = caller.PatientID
	case auth.RoleDoctor:
		if caller.DoctorID == nil {
			return nil, 0, apperr.Forbidden("caller has no doctor profile")
		}
		f.DoctorID = caller.DoctorID
	}
	if f.Status != "" && !IsValidStatus(f.Status) {
		return nil, 0, apperr.Validation("invalid appointment status: %s", f.Status)
	}
	if f.VisitDate != "" {
		if _, err := time.Parse(dateLayout, f.VisitDate); err != nil {
			return nil, 0, apperr.Validation("date must be YYYY-MM-DD")
		}
	}
	return s.appointments.List(ctx, f, limit, offset)
}
