// Package billing turns a completed encounter into an invoice and records
// payments against it.
package billing

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	StatusUnpaid    = "unpaid"
	StatusPartial   = "partial"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusUnpaid: true, StatusPartial: true, StatusPaid: true, StatusCancelled: true,
}

// Invoice item types.
const (
	ItemService  = "service"
	ItemLab      = "lab"
	ItemMedicine = "medicine"
	ItemOther    = "other"
)

// Payment methods.
const (
	MethodCash         = "cash"
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodEWallet      = "e_wallet"
)

var validMethods = map[string]bool{
	MethodCash: true, MethodCard: true, MethodBankTransfer: true, MethodEWallet: true,
}

// Invoice snapshots the patient and doctor names at generation time.
type Invoice struct {
	ID            uuid.UUID     `json:"id"`
	Code          string        `json:"code"`
	AppointmentID *uuid.UUID    `json:"appointment_id,omitempty"`
	EncounterID   *uuid.UUID    `json:"encounter_id,omitempty"`
	PatientID     uuid.UUID     `json:"patient_id"`
	DoctorID      *uuid.UUID    `json:"doctor_id,omitempty"`
	PatientName   string        `json:"patient_name"`
	PatientPhone  string        `json:"patient_phone"`
	DoctorName    string        `json:"doctor_name"`
	Subtotal      float64       `json:"subtotal"`
	Discount      float64       `json:"discount"`
	Tax           float64       `json:"tax"`
	TotalAmount   float64       `json:"total_amount"`
	PaidAmount    float64       `json:"paid_amount"`
	Status        string        `json:"status"`
	Note          string        `json:"note"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Items         []InvoiceItem `json:"items,omitempty"`
	Payments      []Payment     `json:"payments,omitempty"`
}

type InvoiceItem struct {
	ID          uuid.UUID  `json:"id"`
	InvoiceID   uuid.UUID  `json:"invoice_id"`
	ItemType    string     `json:"item_type"`
	RefID       *uuid.UUID `json:"ref_id,omitempty"`
	Description string     `json:"description"`
	Quantity    int        `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
	LineTotal   float64    `json:"line_total"`
	Sequence    int        `json:"sequence"`
}

type Payment struct {
	ID        uuid.UUID `json:"id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	RefNumber *string   `json:"ref_number,omitempty"`
	Note      *string   `json:"note,omitempty"`
	PaidAt    time.Time `json:"paid_at"`
}

type PaymentInput struct {
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	RefNumber string  `json:"ref_number"`
	Note      string  `json:"note"`
}

type Filter struct {
	Status    string
	PatientID *uuid.UUID
}

// PaymentStatus derives the invoice status from the amounts. Nothing paid is
// unpaid, even on a zero total. Overpayment counts as paid.
func PaymentStatus(paid, total float64) string {
	switch {
	case paid <= 0:
		return StatusUnpaid
	case paid >= total:
		return StatusPaid
	default:
		return StatusPartial
	}
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
