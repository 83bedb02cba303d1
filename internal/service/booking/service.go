package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	cache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/healtheasy/booking-engine/internal/model"
	"github.com/healtheasy/booking-engine/internal/store"
	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
	"github.com/healtheasy/booking-engine/pkg/logger"
	"github.com/healtheasy/booking-engine/pkg/metrics"
)

// Request describes a booking submission. doctorId, date, time and
// patientId are the required fields; everything else is advisory.
type Request struct {
	PatientID       string `json:"patientId" validate:"required"`
	DoctorID        string `json:"doctorId" validate:"required"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required,datetime=15:04"`
	Reason          string `json:"reason"`
	ConsultationFee string `json:"consultationFee" validate:"omitempty,numeric"`
}

type Config struct {
	MinGapMinutes int
	InflightTTL   time.Duration
}

// Service is the booking transaction manager. It owns the one write path
// that must be atomic: appointment plus companion invoice, never one
// without the other.
type Service struct {
	store    store.Store
	validate *validator.Validate
	inflight *cache.Cache
	cfg      Config
	log      *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(st store.Store, cfg Config, log *logger.Logger, m *metrics.Metrics) *Service {
	if cfg.MinGapMinutes <= 0 {
		cfg.MinGapMinutes = DefaultMinGapMinutes
	}
	if cfg.InflightTTL <= 0 {
		cfg.InflightTTL = 30 * time.Second
	}
	return &Service{
		store:    st,
		validate: validator.New(),
		inflight: cache.New(cfg.InflightTTL, time.Minute),
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// BookingKey derives the deterministic appointment identifier from the slot
// coordinates, so two submissions for the same slot-for-the-same-patient
// collide on the same identifier instead of creating duplicates.
func BookingKey(doctorID, date, timeOfDay, patientID string) string {
	safeTime := strings.ReplaceAll(timeOfDay, ":", "-")
	return doctorID + "_" + date + "_" + safeTime + "_" + patientID
}

// Book runs the booking protocol: validation, in-flight duplicate
// suppression, advisory availability check, then the atomic dual-write of
// appointment and companion invoice. Returns the appointment identifier.
func (s *Service) Book(ctx context.Context, req *Request) (string, error) {
	timer := prometheus.NewTimer(s.metrics.BookingLatency)
	defer timer.ObserveDuration()

	if err := s.validate.Struct(req); err != nil {
		s.metrics.BookingAttempts.WithLabelValues("invalid").Inc()
		return "", apperrors.InvalidRequest("missing or malformed booking fields", err)
	}

	key := BookingKey(req.DoctorID, req.Date, req.Time, req.PatientID)

	// Best-effort single-session guard against rapid repeated submissions.
	// The atomic collision check below remains the authority.
	if err := s.inflight.Add(key, struct{}{}, s.cfg.InflightTTL); err != nil {
		s.metrics.BookingAttempts.WithLabelValues("duplicate").Inc()
		return "", apperrors.DuplicateBooking("this booking was already submitted")
	}

	id, err := s.book(ctx, req, key)
	if err != nil {
		// Free the guard so the caller can resubmit after fixing the
		// request; a detected duplicate keeps its token.
		if !apperrors.IsCode(err, apperrors.ErrDuplicateBooking) {
			s.inflight.Delete(key)
		}
		return "", err
	}
	return id, nil
}

func (s *Service) book(ctx context.Context, req *Request, key string) (string, error) {
	patientName := "Unknown"
	if p, err := s.loadPatient(ctx, req.PatientID); err == nil {
		patientName = p.Name
	}
	doctorName, doctorSpecialty := "Unknown", "General"
	if d, err := s.loadDoctor(ctx, req.DoctorID); err == nil {
		doctorName, doctorSpecialty = d.Name, d.Specialty
	}

	// Advisory availability check: a fast read-based rejection. It can
	// race with concurrent bookings; the write-time collision guard is
	// the final authority.
	existing, err := s.appointmentsFor(ctx)
	if err != nil {
		s.metrics.BookingAttempts.WithLabelValues("error").Inc()
		return "", err
	}
	if !IsAvailable(existing, req.DoctorID, req.Date, req.Time, s.cfg.MinGapMinutes) {
		s.metrics.BookingAttempts.WithLabelValues("conflict").Inc()
		s.metrics.SlotConflicts.Inc()
		return "", apperrors.SlotConflict("doctor is busy around that time, choose a different time")
	}

	fee := req.ConsultationFee
	if fee == "" {
		fee = "0"
	}

	appointment := model.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		PatientName:     patientName,
		DoctorName:      doctorName,
		DoctorSpecialty: doctorSpecialty,
		Date:            req.Date,
		Time:            req.Time,
		Reason:          req.Reason,
		ConsultationFee: req.ConsultationFee,
		Status:          model.AppointmentPendingPayment,
	}
	invoice := model.Invoice{
		AppointmentID:   key,
		PatientID:       req.PatientID,
		PatientName:     patientName,
		DoctorID:        req.DoctorID,
		DoctorName:      doctorName,
		DoctorSpecialty: doctorSpecialty,
		Amount:          fee,
		Description:     "Consultation: " + doctorName,
		Date:            req.Date,
		Status:          model.InvoicePending,
	}

	aptDoc, err := model.Encode(appointment)
	if err != nil {
		return "", err
	}
	invDoc, err := model.Encode(invoice)
	if err != nil {
		return "", err
	}

	var invoiceID string
	err = s.store.RunAtomic(ctx, func(tx store.Txn) error {
		// Final collision guard: exact-match on the deterministic key,
		// safe under concurrency because it is inside the atomic unit.
		if _, exists, err := tx.Get(store.Appointments, key); err != nil {
			return err
		} else if exists {
			return apperrors.DuplicateBooking("duplicate appointment detected")
		}

		if err := tx.Set(store.Appointments, key, aptDoc); err != nil {
			return err
		}
		invoiceID, err = tx.Create(store.Invoices, invDoc)
		if err != nil {
			return err
		}

		eventDoc, err := model.Encode(model.OutboxEvent{
			EventType: model.EventAppointmentBooked,
			Payload: map[string]interface{}{
				"appointmentId": key,
				"invoiceId":     invoiceID,
				"doctorId":      req.DoctorID,
				"patientId":     req.PatientID,
				"date":          req.Date,
				"time":          req.Time,
			},
			Status: model.OutboxStatusPending,
		})
		if err != nil {
			return err
		}
		_, err = tx.Create(store.Outbox, eventDoc)
		return err
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrDuplicateBooking) {
			s.metrics.BookingAttempts.WithLabelValues("duplicate").Inc()
		} else {
			s.metrics.BookingAttempts.WithLabelValues("error").Inc()
		}
		return "", err
	}

	s.metrics.BookingAttempts.WithLabelValues("booked").Inc()
	s.log.Info("appointment booked",
		"appointment_id", key, "invoice_id", invoiceID, "doctor_id", req.DoctorID)
	return key, nil
}

// SetStatus applies a staff transition (Completed, Cancelled) to an
// appointment, validated against the transition table. Scheduled is only
// reachable through payment verification, never through this path.
func (s *Service) SetStatus(ctx context.Context, appointmentID string, next model.AppointmentStatus) error {
	if !next.Valid() {
		return apperrors.InvalidRequest("invalid appointment status: "+string(next), nil)
	}
	if next == model.AppointmentScheduled {
		return apperrors.InvalidRequest("appointments are scheduled through payment verification", nil)
	}

	doc, err := s.store.Get(ctx, store.Appointments, appointmentID)
	if err != nil {
		return err
	}
	var apt model.Appointment
	if err := model.Decode(doc, &apt); err != nil {
		return err
	}
	if !apt.Status.CanTransitionTo(next) {
		return apperrors.InvalidRequest(
			fmt.Sprintf("appointment cannot move from %s to %s", apt.Status, next), nil)
	}

	return s.store.Update(ctx, store.Appointments, appointmentID, store.Document{"status": string(next)})
}

func (s *Service) Get(ctx context.Context, id string) (*model.Appointment, error) {
	doc, err := s.store.Get(ctx, store.Appointments, id)
	if err != nil {
		return nil, err
	}
	var apt model.Appointment
	if err := model.Decode(doc, &apt); err != nil {
		return nil, err
	}
	return &apt, nil
}

func (s *Service) Subscribe(ctx context.Context, fn func([]model.Appointment)) (store.Unsubscribe, error) {
	return s.store.Subscribe(ctx, store.Appointments, func(docs []store.Document) {
		fn(decodeAppointments(docs))
	})
}

func (s *Service) appointmentsFor(ctx context.Context) ([]model.Appointment, error) {
	docs, err := s.store.List(ctx, store.Appointments)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return decodeAppointments(docs), nil
}

func (s *Service) loadPatient(ctx context.Context, id string) (*model.Patient, error) {
	doc, err := s.store.Get(ctx, store.Patients, id)
	if err != nil {
		return nil, err
	}
	var p model.Patient
	if err := model.Decode(doc, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) loadDoctor(ctx context.Context, id string) (*model.Doctor, error) {
	doc, err := s.store.Get(ctx, store.Doctors, id)
	if err != nil {
		return nil, err
	}
	var d model.Doctor
	if err := model.Decode(doc, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func decodeAppointments(docs []store.Document) []model.Appointment {
	out := make([]model.Appointment, 0, len(docs))
	for _, doc := range docs {
		var apt model.Appointment
		if err := model.Decode(doc, &apt); err != nil {
			continue
		}
		out = append(out, apt)
	}
	return out
}
