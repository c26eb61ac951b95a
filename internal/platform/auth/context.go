package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles recognised by the booking and billing services.
const (
	RoleAdmin        = "admin"
	RoleReceptionist = "receptionist"
	RoleDoctor       = "doctor"
	RolePatient      = "patient"
)

var validRoles = map[string]bool{
	RoleAdmin:        true,
	RoleReceptionist: true,
	RoleDoctor:       true,
	RolePatient:      true,
}

// Context is the caller identity passed explicitly to every service call.
// PatientID is set for patient callers and DoctorID for doctor callers.
type Context struct {
	Role      string
	UserID    string
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
}

func (a Context) IsAdmin() bool   { return a.Role == RoleAdmin }
func (a Context) IsDoctor() bool  { return a.Role == RoleDoctor }
func (a Context) IsPatient() bool { return a.Role == RolePatient }

// IsStaff reports whether the caller works at the front desk or manages the clinic.
func (a Context) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleReceptionist
}

// OwnsPatient reports whether a patient caller is acting for patientID.
func (a Context) OwnsPatient(patientID uuid.UUID) bool {
	return a.PatientID != nil && *a.PatientID == patientID
}

// OwnsDoctor reports whether a doctor caller is acting for doctorID.
func (a Context) OwnsDoctor(doctorID uuid.UUID) bool {
	return a.DoctorID != nil && *a.DoctorID == doctorID
}

type contextKey struct{}

// WithContext stores the caller identity on ctx.
func WithContext(ctx context.Context, a Context) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext returns the caller identity stored by the auth middleware.
func FromContext(ctx context.Context) (Context, bool) {
	a, ok := ctx.Value(contextKey{}).(Context)
	return a, ok
}
