// Package engine assembles the booking and billing core around one injected
// store implementation. The store choice is made by the embedding
// application at construction time; the engine itself never switches stores.
package engine

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/healtheasy/booking-engine/internal/email"
	"github.com/healtheasy/booking-engine/internal/service/billing"
	"github.com/healtheasy/booking-engine/internal/service/booking"
	"github.com/healtheasy/booking-engine/internal/service/dashboard"
	"github.com/healtheasy/booking-engine/internal/service/doctor"
	"github.com/healtheasy/booking-engine/internal/service/patient"
	"github.com/healtheasy/booking-engine/internal/store"
	"github.com/healtheasy/booking-engine/pkg/logger"
	"github.com/healtheasy/booking-engine/pkg/metrics"
)

type Options struct {
	// Booking configuration; zero values fall back to defaults.
	Booking booking.Config
	// Mailer for payment receipts. Optional.
	Mailer email.Sender
	// Logger; a nil logger discards output.
	Logger *logger.Logger
	// Registerer for metrics; nil uses the default prometheus registry.
	Registerer prometheus.Registerer
}

// Engine exposes the core services over one shared store.
type Engine struct {
	Patients *patient.Service
	Doctors  *doctor.Service
	Booking  *booking.Service
	Billing  *billing.Service

	store store.Store
}

func New(st store.Store, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	m := metrics.New("healtheasy", opts.Registerer)

	return &Engine{
		Patients: patient.NewService(st),
		Doctors:  doctor.NewService(st),
		Booking:  booking.NewService(st, opts.Booking, log, m),
		Billing:  billing.NewService(st, opts.Mailer, log, m),
		store:    st,
	}
}

// NewDashboard builds a subscription-fed dashboard aggregator over the
// engine's store.
func (e *Engine) NewDashboard(ctx context.Context) (*dashboard.Aggregator, error) {
	return dashboard.NewAggregator(ctx, e.store)
}

// Store exposes the underlying store for raw collection access.
func (e *Engine) Store() store.Store {
	return e.store
}
