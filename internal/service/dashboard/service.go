package dashboard

import (
	"context"
	"strconv"
	"sync"

	"github.com/healtheasy/booking-engine/internal/model"
	"github.com/healtheasy/booking-engine/internal/store"
)

// Metrics is the read-only dashboard view derived from the collections.
type Metrics struct {
	TotalPatients         int
	ActiveDoctors         int
	ScheduledAppointments int
	PaidRevenue           float64
}

// Aggregator keeps subscription-fed views of every collection and derives
// metrics on demand. It holds no authority over any record.
type Aggregator struct {
	mu           sync.RWMutex
	patients     []model.Patient
	doctors      []model.Doctor
	appointments []model.Appointment
	invoices     []model.Invoice

	unsubs []store.Unsubscribe
}

func NewAggregator(ctx context.Context, st store.Store) (*Aggregator, error) {
	a := &Aggregator{}

	subs := []struct {
		collection string
		apply      func([]store.Document)
	}{
		{store.Patients, a.applyPatients},
		{store.Doctors, a.applyDoctors},
		{store.Appointments, a.applyAppointments},
		{store.Invoices, a.applyInvoices},
	}
	for _, sub := range subs {
		unsub, err := st.Subscribe(ctx, sub.collection, sub.apply)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.unsubs = append(a.unsubs, unsub)
	}
	return a, nil
}

// Snapshot derives the current metrics from the latest delivered views.
func (a *Aggregator) Snapshot() Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m := Metrics{TotalPatients: len(a.patients)}
	for _, d := range a.doctors {
		if d.Status == model.StatusActive {
			m.ActiveDoctors++
		}
	}
	for _, apt := range a.appointments {
		if apt.Status == model.AppointmentScheduled {
			m.ScheduledAppointments++
		}
	}
	for _, inv := range a.invoices {
		if inv.Status != model.InvoicePaid {
			continue
		}
		amount, err := strconv.ParseFloat(inv.Amount, 64)
		if err != nil {
			continue
		}
		m.PaidRevenue += amount
	}
	return m
}

func (a *Aggregator) Close() {
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
}

func (a *Aggregator) applyPatients(docs []store.Document) {
	patients := make([]model.Patient, 0, len(docs))
	for _, doc := range docs {
		var p model.Patient
		if err := model.Decode(doc, &p); err != nil {
			continue
		}
		patients = append(patients, p)
	}
	a.mu.Lock()
	a.patients = patients
	a.mu.Unlock()
}

func (a *Aggregator) applyDoctors(docs []store.Document) {
	doctors := make([]model.Doctor, 0, len(docs))
	for _, doc := range docs {
		var d model.Doctor
		if err := model.Decode(doc, &d); err != nil {
			continue
		}
		doctors = append(doctors, d)
	}
	a.mu.Lock()
	a.doctors = doctors
	a.mu.Unlock()
}

func (a *Aggregator) applyAppointments(docs []store.Document) {
	appointments := make([]model.Appointment, 0, len(docs))
	for _, doc := range docs {
		var apt model.Appointment
		if err := model.Decode(doc, &apt); err != nil {
			continue
		}
		appointments = append(appointments, apt)
	}
	a.mu.Lock()
	a.appointments = appointments
	a.mu.Unlock()
}

func (a *Aggregator) applyInvoices(docs []store.Document) {
	invoices := make([]model.Invoice, 0, len(docs))
	for _, doc := range docs {
		var inv model.Invoice
		if err := model.Decode(doc, &inv); err != nil {
			continue
		}
		invoices = append(invoices, inv)
	}
	a.mu.Lock()
	a.invoices = invoices
	a.mu.Unlock()
}
