// Package domaintest provides in-memory repositories for service tests.
package domaintest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic/internal/domain/catalog"
	"github.com/clinicops/clinic/internal/domain/encounter"
	"github.com/clinicops/clinic/internal/domain/scheduling"
	"github.com/clinicops/clinic/internal/platform/apperr"
)

// SerialTx runs each unit of work under one lock, standing in for
// serializable isolation.
type SerialTx struct{ mu sync.Mutex }

func (t *SerialTx) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

// Catalog is a map-backed catalog.Store.
type Catalog struct {
	Patients  map[uuid.UUID]*catalog.Patient
	Doctors   map[uuid.UUID]*catalog.Doctor
	Services  map[uuid.UUID]*catalog.ClinicService
	Medicines map[uuid.UUID]*catalog.Medicine
	LabTests  map[uuid.UUID]*catalog.LabTest
}

func NewCatalog() *Catalog {
	return &Catalog{
		Patients:  make(map[uuid.UUID]*catalog.Patient),
		Doctors:   make(map[uuid.UUID]*catalog.Doctor),
		Services:  make(map[uuid.UUID]*catalog.ClinicService),
		Medicines: make(map[uuid.UUID]*catalog.Medicine),
		LabTests:  make(map[uuid.UUID]*catalog.LabTest),
	}
}

func (c *Catalog) GetPatient(_ context.Context, id uuid.UUID) (*catalog.Patient, error) {
	if p, ok := c.Patients[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("patient not found")
}

func (c *Catalog) GetDoctor(_ context.Context, id uuid.UUID) (*catalog.Doctor, error) {
	if d, ok := c.Doctors[id]; ok {
		return d, nil
	}
	return nil, apperr.NotFound("doctor not found")
}

func (c *Catalog) GetService(_ context.Context, id uuid.UUID) (*catalog.ClinicService, error) {
	if s, ok := c.Services[id]; ok {
		return s, nil
	}
	return nil, apperr.NotFound("service not found")
}

func (c *Catalog) GetMedicines(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.Medicine, error) {
	out := make(map[uuid.UUID]*catalog.Medicine)
	for _, id := range ids {
		if m, ok := c.Medicines[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (c *Catalog) GetLabTests(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.LabTest, error) {
	out := make(map[uuid.UUID]*catalog.LabTest)
	for _, id := range ids {
		if t, ok := c.LabTests[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

// Appointments is an in-memory scheduling.AppointmentRepository.
type Appointments struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*scheduling.Appointment
	codes []string
}

func NewAppointments() *Appointments {
	return &Appointments{rows: make(map[uuid.UUID]*scheduling.Appointment)}
}

// Add stores a copy of a, assigning an id when it has none.
func (m *Appointments) Add(a *scheduling.Appointment) *scheduling.Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.rows[a.ID] = &cp
	m.codes = append(m.codes, a.Code)
	return a
}

func (m *Appointments) LastCode(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return "", nil
	}
	return m.codes[len(m.codes)-1], nil
}

func (m *Appointments) SlotTaken(_ context.Context, doctorID uuid.UUID, date, tm string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.DoctorID == doctorID && a.VisitDate == date && a.VisitTime == tm {
			return true, nil
		}
	}
	return false, nil
}

func (m *Appointments) MaxQueueNo(_ context.Context, doctorID uuid.UUID, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, a := range m.rows {
		if a.DoctorID == doctorID && a.VisitDate == date && a.QueueNo != nil && *a.QueueNo > max {
			max = *a.QueueNo
		}
	}
	return max, nil
}

func (m *Appointments) Create(_ context.Context, a *scheduling.Appointment) error {
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.Add(a)
	return nil
}

func (m *Appointments) GetByID(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	cp := *a
	return &cp, nil
}

func (m *Appointments) GetForUpdate(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *Appointments) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return apperr.NotFound("appointment not found")
	}
	a.Status = status
	return nil
}

func (m *Appointments) SetFinalCost(_ context.Context, id uuid.UUID, cost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return apperr.NotFound("appointment not found")
	}
	a.FinalCost = &cost
	return nil
}

func (m *Appointments) List(_ context.Context, f scheduling.Filter, limit, offset int) ([]*scheduling.Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*scheduling.Appointment
	for _, a := range m.rows {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

// Encounters is an in-memory encounter.Repository.
type Encounters struct {
	mu            sync.Mutex
	rows          map[uuid.UUID]*encounter.Encounter
	labOrders     []*encounter.LabOrder
	prescriptions []*encounter.Prescription
	codes         map[string][]string
}

func NewEncounters() *Encounters {
	return &Encounters{
		rows:  make(map[uuid.UUID]*encounter.Encounter),
		codes: make(map[string][]string),
	}
}

// Add stores a copy of e, assigning an id when it has none.
func (m *Encounters) Add(e *encounter.Encounter) *encounter.Encounter {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.rows[e.ID] = &cp
	m.codes[encounter.TableEncounter] = append(m.codes[encounter.TableEncounter], e.Code)
	return e
}

// Count returns the number of stored encounters.
func (m *Encounters) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *Encounters) LastCode(_ context.Context, table string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.codes[table]
	if len(c) == 0 {
		return "", nil
	}
	return c[len(c)-1], nil
}

func (m *Encounters) FindByAppointment(_ context.Context, appointmentID uuid.UUID) (*encounter.Encounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.rows {
		if e.AppointmentID != nil && *e.AppointmentID == appointmentID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Encounters) Create(_ context.Context, e *encounter.Encounter) error {
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	m.Add(e)
	return nil
}

func (m *Encounters) UpdateDiagnosis(_ context.Context, e *encounter.Encounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[e.ID]
	if !ok || row.Status != encounter.StatusDraft {
		return apperr.Validation("encounter is no longer editable")
	}
	row.Symptoms, row.Diagnosis, row.DoctorNote = e.Symptoms, e.Diagnosis, e.DoctorNote
	return nil
}

func (m *Encounters) Finalize(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return apperr.Invariant("encounter %s disappeared during completion", id)
	}
	row.Status = encounter.StatusFinalized
	row.FinalizedAt = &at
	return nil
}

func (m *Encounters) CreateLabOrder(_ context.Context, o *encounter.LabOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	for i := range o.Items {
		o.Items[i].ID = uuid.New()
		o.Items[i].LabOrderID = o.ID
	}
	cp := *o
	cp.Items = append([]encounter.LabOrderItem(nil), o.Items...)
	m.labOrders = append(m.labOrders, &cp)
	m.codes[encounter.TableLabOrder] = append(m.codes[encounter.TableLabOrder], o.Code)
	return nil
}

func (m *Encounters) ListLabOrders(_ context.Context, encounterID uuid.UUID) ([]*encounter.LabOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*encounter.LabOrder
	for _, o := range m.labOrders {
		if o.EncounterID == encounterID {
			cp := *o
			cp.Items = append([]encounter.LabOrderItem(nil), o.Items...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Encounters) CreatePrescription(_ context.Context, p *encounter.Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	for i := range p.Items {
		p.Items[i].ID = uuid.New()
		p.Items[i].PrescriptionID = p.ID
	}
	cp := *p
	cp.Items = append([]encounter.PrescriptionItem(nil), p.Items...)
	m.prescriptions = append(m.prescriptions, &cp)
	m.codes[encounter.TablePrescription] = append(m.codes[encounter.TablePrescription], p.Code)
	return nil
}

func (m *Encounters) ListPrescriptions(_ context.Context, encounterID uuid.UUID) ([]*encounter.Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*encounter.Prescription
	for _, p := range m.prescriptions {
		if p.EncounterID == encounterID {
			cp := *p
			cp.Items = append([]encounter.PrescriptionItem(nil), p.Items...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Encounters) SetItemUnitPrice(_ context.Context, itemID uuid.UUID, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prescriptions {
		for i := range p.Items {
			if p.Items[i].ID == itemID {
				v := price
				p.Items[i].UnitPrice = &v
				return nil
			}
		}
	}
	return apperr.NotFound("prescription item not found")
}
