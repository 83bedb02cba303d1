package billing

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/healtheasy/booking-engine/internal/auth"
	"github.com/healtheasy/booking-engine/internal/email"
	"github.com/healtheasy/booking-engine/internal/model"
	"github.com/healtheasy/booking-engine/internal/store"
	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
	"github.com/healtheasy/booking-engine/pkg/logger"
	"github.com/healtheasy/booking-engine/pkg/metrics"
)

// Service is the billing ledger: it owns invoice status and the one
// automated appointment transition, Pending Payment to Scheduled on a
// verified payment.
type Service struct {
	store    store.Store
	validate *validator.Validate
	mailer   email.Sender
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewService builds the ledger. mailer may be nil; receipts are then skipped.
func NewService(st store.Store, mailer email.Sender, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:    st,
		validate: validator.New(),
		mailer:   mailer,
		log:      log,
		metrics:  m,
	}
}

// CreateInvoice issues an ad-hoc invoice outside the booking path. It has
// no companion appointment and carries no appointmentId. Staff-only.
func (s *Service) CreateInvoice(ctx context.Context, req *model.CreateInvoiceRequest) (string, error) {
	if err := auth.Require(ctx, auth.RoleAdmin); err != nil {
		return "", err
	}
	if err := s.validate.Struct(req); err != nil {
		return "", apperrors.InvalidRequest("invalid invoice", err)
	}

	patientName := "Unknown"
	if doc, err := s.store.Get(ctx, store.Patients, req.PatientID); err == nil {
		var p model.Patient
		if err := model.Decode(doc, &p); err == nil {
			patientName = p.Name
		}
	}

	invDoc, err := model.Encode(model.Invoice{
		PatientID:   req.PatientID,
		PatientName: patientName,
		Amount:      req.Amount,
		Description: req.Description,
		Date:        req.Date,
		Status:      model.InvoicePending,
	})
	if err != nil {
		return "", err
	}

	var invoiceID string
	err = s.store.RunAtomic(ctx, func(tx store.Txn) error {
		invoiceID, err = tx.Create(store.Invoices, invDoc)
		if err != nil {
			return err
		}
		eventDoc, err := model.Encode(model.OutboxEvent{
			EventType: model.EventInvoiceCreated,
			Payload: map[string]interface{}{
				"invoiceId": invoiceID,
				"patientId": req.PatientID,
				"amount":    req.Amount,
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
		return "", fmt.Errorf("failed to create invoice: %w", err)
	}

	s.metrics.InvoicesCreated.Inc()
	return invoiceID, nil
}

// SetInvoiceStatus overwrites an invoice's status. The overwrite is
// unconditional among the valid invoice states.
func (s *Service) SetInvoiceStatus(ctx context.Context, invoiceID string, status model.InvoiceStatus) error {
	if !status.Valid() {
		return apperrors.InvalidRequest("invalid invoice status: "+string(status), nil)
	}
	return s.store.Update(ctx, store.Invoices, invoiceID, store.Document{"status": string(status)})
}

// VerifyPayment records the outcome of payment verification. On success the
// invoice becomes Paid and the companion appointment, when present, moves
// from Pending Payment to Scheduled in the same atomic unit. On failure the
// invoice becomes Failed and the appointment is left untouched.
func (s *Service) VerifyPayment(ctx context.Context, invoiceID string, accepted bool) error {
	if err := auth.Require(ctx, auth.RoleAdmin); err != nil {
		return err
	}

	doc, err := s.store.Get(ctx, store.Invoices, invoiceID)
	if err != nil {
		return err
	}
	var inv model.Invoice
	if err := model.Decode(doc, &inv); err != nil {
		return err
	}

	if !accepted {
		return s.recordFailure(ctx, &inv)
	}
	return s.recordSuccess(ctx, &inv)
}

func (s *Service) recordSuccess(ctx context.Context, inv *model.Invoice) error {
	err := s.store.RunAtomic(ctx, func(tx store.Txn) error {
		invDoc, exists, err := tx.Get(store.Invoices, inv.ID)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NotFound("invoice "+inv.ID, nil)
		}
		invDoc["status"] = string(model.InvoicePaid)
		if err := tx.Set(store.Invoices, inv.ID, invDoc); err != nil {
			return err
		}

		if inv.AppointmentID != "" {
			aptDoc, exists, err := tx.Get(store.Appointments, inv.AppointmentID)
			if err != nil {
				return err
			}
			if !exists {
				return apperrors.NotFound("appointment "+inv.AppointmentID, nil)
			}
			var apt model.Appointment
			if err := model.Decode(aptDoc, &apt); err != nil {
				return err
			}
			if !apt.Status.CanTransitionTo(model.AppointmentScheduled) {
				return apperrors.InvalidRequest(
					fmt.Sprintf("appointment cannot move from %s to %s", apt.Status, model.AppointmentScheduled), nil)
			}
			aptDoc["status"] = string(model.AppointmentScheduled)
			if err := tx.Set(store.Appointments, inv.AppointmentID, aptDoc); err != nil {
				return err
			}
		}

		eventDoc, err := model.Encode(model.OutboxEvent{
			EventType: model.EventPaymentVerified,
			Payload: map[string]interface{}{
				"invoiceId":     inv.ID,
				"appointmentId": inv.AppointmentID,
				"amount":        inv.Amount,
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
		return err
	}

	s.metrics.PaymentsVerified.WithLabelValues("paid").Inc()
	s.log.Info("payment verified", "invoice_id", inv.ID, "appointment_id", inv.AppointmentID)
	s.sendReceipt(ctx, inv)
	return nil
}

func (s *Service) recordFailure(ctx context.Context, inv *model.Invoice) error {
	err := s.store.RunAtomic(ctx, func(tx store.Txn) error {
		invDoc, exists, err := tx.Get(store.Invoices, inv.ID)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NotFound("invoice "+inv.ID, nil)
		}
		invDoc["status"] = string(model.InvoiceFailed)
		if err := tx.Set(store.Invoices, inv.ID, invDoc); err != nil {
			return err
		}

		eventDoc, err := model.Encode(model.OutboxEvent{
			EventType: model.EventPaymentFailed,
			Payload: map[string]interface{}{
				"invoiceId":     inv.ID,
				"appointmentId": inv.AppointmentID,
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
		return err
	}

	s.metrics.PaymentsVerified.WithLabelValues("failed").Inc()
	s.log.Info("payment verification failed", "invoice_id", inv.ID)
	return nil
}

// sendReceipt is best-effort; a mail failure never unwinds a verified
// payment.
func (s *Service) sendReceipt(ctx context.Context, inv *model.Invoice) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendReceipt(ctx, inv.PatientName, inv.Amount, inv.Description); err != nil {
		s.log.Error(err, "failed to send payment receipt", "invoice_id", inv.ID)
	}
}

func (s *Service) Get(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	doc, err := s.store.Get(ctx, store.Invoices, invoiceID)
	if err != nil {
		return nil, err
	}
	var inv model.Invoice
	if err := model.Decode(doc, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Service) List(ctx context.Context) ([]model.Invoice, error) {
	docs, err := s.store.List(ctx, store.Invoices)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	invoices := make([]model.Invoice, 0, len(docs))
	for _, doc := range docs {
		var inv model.Invoice
		if err := model.Decode(doc, &inv); err != nil {
			continue
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

func (s *Service) Subscribe(ctx context.Context, fn func([]model.Invoice)) (store.Unsubscribe, error) {
	return s.store.Subscribe(ctx, store.Invoices, func(docs []store.Document) {
		invoices := make([]model.Invoice, 0, len(docs))
		for _, doc := range docs {
			var inv model.Invoice
			if err := model.Decode(doc, &inv); err != nil {
				continue
			}
			invoices = append(invoices, inv)
		}
		fn(invoices)
	})
}
