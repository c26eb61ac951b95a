package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Appointment maps to the appointment table. VisitDate is YYYY-MM-DD and
// VisitTime is HH:MM, both in clinic-local time.
type Appointment struct {
	ID        uuid.UUID  `json:"id"`
	Code      string     `json:"code"`
	PatientID uuid.UUID  `json:"patient_id"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	ServiceID *uuid.UUID `json:"service_id,omitempty"`
	VisitDate string     `json:"visit_date"`
	VisitTime string     `json:"visit_time"`
	Reason    string     `json:"reason"`
	Status    string     `json:"status"`
	QueueNo   *int       `json:"queue_no,omitempty"`
	FinalCost *float64   `json:"final_cost,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	PatientName *string `json:"patient_name,omitempty"`
	DoctorName  *string `json:"doctor_name,omitempty"`
	ServiceName *string `json:"service_name,omitempty"`
}

type CreateAppointmentInput struct {
	PatientID *uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	ServiceID *uuid.UUID `json:"service_id"`
	VisitDate string     `json:"visit_date"`
	VisitTime string     `json:"visit_time"`
	Reason    string     `json:"reason"`
}

type UpdateStatusInput struct {
	Status string `json:"status"`
}

// Filter narrows ListAppointments. Zero values match everything.
type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	VisitDate string
	Status    string
}
