package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healtheasy/booking-engine/internal/auth"
	"github.com/healtheasy/booking-engine/internal/email"
	"github.com/healtheasy/booking-engine/internal/model"
	"github.com/healtheasy/booking-engine/internal/service/billing"
	"github.com/healtheasy/booking-engine/internal/service/booking"
	"github.com/healtheasy/booking-engine/internal/store"
	"github.com/healtheasy/booking-engine/internal/store/memory"
	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
	"github.com/healtheasy/booking-engine/pkg/logger"
	"github.com/healtheasy/booking-engine/pkg/metrics"
)

type recordingMailer struct {
	receipts []string
	fail     bool
}

func (m *recordingMailer) SendReceipt(_ context.Context, patientName, amount, description string) error {
	if m.fail {
		return errors.New("smtp unreachable")
	}
	m.receipts = append(m.receipts, patientName+"/"+amount+"/"+description)
	return nil
}

// bookFixture books one appointment and returns the store, the billing
// service, the appointment id and the companion invoice.
func bookFixture(t *testing.T, mailer *recordingMailer) (*memory.Memory, *billing.Service, string, model.Invoice) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	m := metrics.New("test", prometheus.NewRegistry())

	patientID, err := st.Create(ctx, store.Patients, store.Document{
		"name": "Jane Roe", "status": "Active",
	})
	require.NoError(t, err)
	doctorID, err := st.Create(ctx, store.Doctors, store.Document{
		"name": "Dr. Smith", "specialty": "Cardiology", "status": "Active",
	})
	require.NoError(t, err)

	booker := booking.NewService(st, booking.Config{}, logger.Nop(), m)
	aptID, err := booker.Book(ctx, &booking.Request{
		PatientID:       patientID,
		DoctorID:        doctorID,
		Date:            "2024-06-01",
		Time:            "09:00",
		ConsultationFee: "50",
	})
	require.NoError(t, err)

	var sender email.Sender
	if mailer != nil {
		sender = mailer
	}
	svc := billing.NewService(st, sender, logger.Nop(), m)
	invoices, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	return st, svc, aptID, invoices[0]
}

func appointmentStatus(t *testing.T, st *memory.Memory, id string) model.AppointmentStatus {
	t.Helper()
	doc, err := st.Get(context.Background(), store.Appointments, id)
	require.NoError(t, err)
	var apt model.Appointment
	require.NoError(t, model.Decode(doc, &apt))
	return apt.Status
}

func TestVerifyPaymentAcceptedSchedulesAppointment(t *testing.T) {
	ctx := context.Background()
	mailer := &recordingMailer{}
	st, svc, aptID, inv := bookFixture(t, mailer)

	require.NoError(t, svc.VerifyPayment(ctx, inv.ID, true))

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, got.Status)
	assert.Equal(t, model.AppointmentScheduled, appointmentStatus(t, st, aptID))
	assert.Len(t, mailer.receipts, 1)
}

func TestVerifyPaymentRejectedLeavesAppointmentUntouched(t *testing.T) {
	ctx := context.Background()
	st, svc, aptID, inv := bookFixture(t, nil)

	require.NoError(t, svc.VerifyPayment(ctx, inv.ID, false))

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceFailed, got.Status)
	assert.Equal(t, model.AppointmentPendingPayment, appointmentStatus(t, st, aptID))
}

func TestVerifyPaymentMailFailureDoesNotUnwind(t *testing.T) {
	ctx := context.Background()
	mailer := &recordingMailer{fail: true}
	st, svc, aptID, inv := bookFixture(t, mailer)

	require.NoError(t, svc.VerifyPayment(ctx, inv.ID, true))
	assert.Equal(t, model.AppointmentScheduled, appointmentStatus(t, st, aptID))
}

func TestVerifyPaymentRejectsAlreadyScheduled(t *testing.T) {
	ctx := context.Background()
	_, svc, _, inv := bookFixture(t, nil)

	require.NoError(t, svc.VerifyPayment(ctx, inv.ID, true))

	// Verifying again finds the appointment already Scheduled; the atomic
	// unit rejects and the invoice stays Paid rather than double-moving.
	err := svc.VerifyPayment(ctx, inv.ID, true)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidRequest))

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, got.Status)
}

func TestVerifyPaymentUnknownInvoice(t *testing.T) {
	ctx := context.Background()
	_, svc, _, _ := bookFixture(t, nil)

	err := svc.VerifyPayment(ctx, "missing", true)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestVerifyPaymentForbiddenForDoctors(t *testing.T) {
	_, svc, _, inv := bookFixture(t, nil)

	ctx := auth.WithRole(context.Background(), auth.RoleDoctor)
	err := svc.VerifyPayment(ctx, inv.ID, true)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestVerifyPaymentEmitsOutboxEvent(t *testing.T) {
	ctx := context.Background()
	st, svc, _, inv := bookFixture(t, nil)

	require.NoError(t, svc.VerifyPayment(ctx, inv.ID, true))

	events, err := st.List(ctx, store.Outbox)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, doc := range events {
		var event model.OutboxEvent
		require.NoError(t, model.Decode(doc, &event))
		types = append(types, event.EventType)
	}
	assert.Contains(t, types, model.EventPaymentVerified)
}

func TestCreateInvoiceAdHocHasNoAppointment(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := billing.NewService(st, nil, logger.Nop(), metrics.New("test", prometheus.NewRegistry()))

	patientID, err := st.Create(ctx, store.Patients, store.Document{
		"name": "Jane Roe", "status": "Active",
	})
	require.NoError(t, err)

	id, err := svc.CreateInvoice(ctx, &model.CreateInvoiceRequest{
		PatientID:   patientID,
		Amount:      "120",
		Description: "Lab work",
		Date:        "2024-06-02",
	})
	require.NoError(t, err)

	inv, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, inv.AppointmentID)
	assert.Equal(t, "Jane Roe", inv.PatientName)
	assert.Equal(t, model.InvoicePending, inv.Status)
}

func TestCreateInvoiceValidation(t *testing.T) {
	ctx := context.Background()
	svc := billing.NewService(memory.New(), nil, logger.Nop(), metrics.New("test", prometheus.NewRegistry()))

	_, err := svc.CreateInvoice(ctx, &model.CreateInvoiceRequest{
		PatientID: "p1", Amount: "not-a-number", Description: "x", Date: "2024-06-02",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidRequest))

	_, err = svc.CreateInvoice(ctx, &model.CreateInvoiceRequest{
		Amount: "10", Description: "x", Date: "2024-06-02",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidRequest))
}

func TestSetInvoiceStatus(t *testing.T) {
	ctx := context.Background()
	_, svc, _, inv := bookFixture(t, nil)

	require.NoError(t, svc.SetInvoiceStatus(ctx, inv.ID, model.InvoicePaid))
	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, got.Status)

	// Any valid status may overwrite any other.
	require.NoError(t, svc.SetInvoiceStatus(ctx, inv.ID, model.InvoiceFailed))

	err = svc.SetInvoiceStatus(ctx, inv.ID, model.InvoiceStatus("Refunded"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidRequest))

	err = svc.SetInvoiceStatus(ctx, "missing", model.InvoicePaid)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}
