// Package catalog reads the clinic's reference data: patients, doctors,
// billable services, medicines and lab tests. The booking and billing
// pipeline never writes to these tables.
package catalog

import (
	"github.com/google/uuid"
)

// Service categories. Only visit services can be booked.
const (
	CategoryVisit = "visit"
	CategoryLab   = "lab"
	CategoryOther = "other"
)

type Patient struct {
	ID       uuid.UUID  `json:"id"`
	FullName string     `json:"full_name"`
	Phone    *string    `json:"phone,omitempty"`
	UserID   *uuid.UUID `json:"user_id,omitempty"`
	Active   bool       `json:"active"`
}

type Doctor struct {
	ID          uuid.UUID  `json:"id"`
	FullName    string     `json:"full_name"`
	SpecialtyID *uuid.UUID `json:"specialty_id,omitempty"`
	Specialty   *string    `json:"specialty,omitempty"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	Active      bool       `json:"active"`
}

// ClinicService is a billable service such as a consultation.
type ClinicService struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
	Price    float64   `json:"price"`
	Active   bool      `json:"active"`
}

type Medicine struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Unit   *string   `json:"unit,omitempty"`
	Price  float64   `json:"price"`
	Active bool      `json:"active"`
}

type LabTest struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Price  float64   `json:"price"`
	Active bool      `json:"active"`
}
