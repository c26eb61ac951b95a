package encounter

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusDraft     = "draft"
	StatusFinalized = "finalized"
	StatusCancelled = "cancelled"
)

const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

var validPriorities = map[string]bool{PriorityNormal: true, PriorityUrgent: true}

// Lab order and lab item statuses.
const (
	LabStatusProcessing = "processing"
	LabStatusCompleted  = "completed"
	LabStatusCancelled  = "cancelled"
)

// Encounter is the clinical record of one visit. PatientID and DoctorID are
// copied from the linked appointment.
type Encounter struct {
	ID            uuid.UUID  `json:"id"`
	Code          string     `json:"code"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	ServiceID     *uuid.UUID `json:"service_id,omitempty"`
	Symptoms      string     `json:"symptoms"`
	Diagnosis     string     `json:"diagnosis"`
	DoctorNote    string     `json:"doctor_note"`
	Status        string     `json:"status"`
	FinalizedAt   *time.Time `json:"finalized_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type LabOrder struct {
	ID          uuid.UUID      `json:"id"`
	Code        string         `json:"code"`
	EncounterID uuid.UUID      `json:"encounter_id"`
	PatientID   uuid.UUID      `json:"patient_id"`
	DoctorID    uuid.UUID      `json:"doctor_id"`
	Priority    string         `json:"priority"`
	Note        string         `json:"note"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	Items       []LabOrderItem `json:"items"`
}

// LabOrderItem keeps a snapshot of the test name at ordering time.
type LabOrderItem struct {
	ID         uuid.UUID `json:"id"`
	LabOrderID uuid.UUID `json:"lab_order_id"`
	LabTestID  uuid.UUID `json:"lab_test_id"`
	TestName   string    `json:"test_name"`
	Sequence   int       `json:"sequence"`
	Result     *string   `json:"result,omitempty"`
	Status     string    `json:"status"`
	Note       *string   `json:"note,omitempty"`
	Warning    *string   `json:"warning,omitempty"`
}

type Prescription struct {
	ID          uuid.UUID          `json:"id"`
	Code        string             `json:"code"`
	EncounterID uuid.UUID          `json:"encounter_id"`
	Advice      string             `json:"advice"`
	CreatedAt   time.Time          `json:"created_at"`
	Items       []PrescriptionItem `json:"items"`
}

// PrescriptionItem references a catalog medicine or carries a free-text name.
// UnitPrice stays nil until the item is priced at invoicing.
type PrescriptionItem struct {
	ID             uuid.UUID  `json:"id"`
	PrescriptionID uuid.UUID  `json:"prescription_id"`
	MedicineID     *uuid.UUID `json:"medicine_id,omitempty"`
	CustomName     *string    `json:"custom_name,omitempty"`
	Dose           string     `json:"dose"`
	Frequency      string     `json:"frequency"`
	Duration       string     `json:"duration"`
	Quantity       *int       `json:"quantity,omitempty"`
	UnitPrice      *float64   `json:"unit_price,omitempty"`
	Note           *string    `json:"note,omitempty"`
	Sequence       int        `json:"sequence"`
}

// Detail is an encounter with everything recorded against it.
type Detail struct {
	Encounter     *Encounter      `json:"encounter"`
	LabOrders     []*LabOrder     `json:"lab_orders"`
	Prescriptions []*Prescription `json:"prescriptions"`
}

type DiagnosisInput struct {
	Symptoms  string `json:"symptoms"`
	Diagnosis string `json:"diagnosis"`
	Note      string `json:"note"`
}

type LabOrderInput struct {
	TestIDs  []uuid.UUID `json:"test_ids"`
	Note     string      `json:"note"`
	Priority string      `json:"priority"`
}

type PrescriptionLine struct {
	MedicineID *uuid.UUID `json:"medicine_id"`
	CustomName string     `json:"custom_name"`
	Dose       string     `json:"dose"`
	Frequency  string     `json:"frequency"`
	Duration   string     `json:"duration"`
	Quantity   *int       `json:"quantity"`
	Note       string     `json:"note"`
}

type PrescriptionInput struct {
	Lines  []PrescriptionLine `json:"lines"`
	Advice string             `json:"advice"`
}
