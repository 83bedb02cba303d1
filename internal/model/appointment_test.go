package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/healtheasy/booking-engine/internal/model"
)

func TestAppointmentTransitions(t *testing.T) {
	tests := []struct {
		from    model.AppointmentStatus
		to      model.AppointmentStatus
		allowed bool
	}{
		{model.AppointmentPendingPayment, model.AppointmentScheduled, true},
		{model.AppointmentPendingPayment, model.AppointmentCancelled, true},
		{model.AppointmentPendingPayment, model.AppointmentFailed, true},
		{model.AppointmentPendingPayment, model.AppointmentCompleted, false},
		{model.AppointmentScheduled, model.AppointmentCompleted, true},
		{model.AppointmentScheduled, model.AppointmentCancelled, true},
		{model.AppointmentScheduled, model.AppointmentPendingPayment, false},
		{model.AppointmentCompleted, model.AppointmentCancelled, false},
		{model.AppointmentCancelled, model.AppointmentScheduled, false},
		{model.AppointmentFailed, model.AppointmentScheduled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestBlocksSlot(t *testing.T) {
	assert.True(t, model.AppointmentPendingPayment.BlocksSlot())
	assert.True(t, model.AppointmentScheduled.BlocksSlot())
	assert.True(t, model.AppointmentCompleted.BlocksSlot())
	assert.False(t, model.AppointmentCancelled.BlocksSlot())
	assert.False(t, model.AppointmentFailed.BlocksSlot())
}

func TestStatusValid(t *testing.T) {
	assert.True(t, model.AppointmentPendingPayment.Valid())
	assert.False(t, model.AppointmentStatus("Rescheduled").Valid())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	apt := model.Appointment{
		PatientID: "p1",
		DoctorID:  "d1",
		Date:      "2024-06-01",
		Time:      "09:00",
		Status:    model.AppointmentPendingPayment,
	}
	doc, err := model.Encode(apt)
	assert.NoError(t, err)
	assert.Equal(t, "p1", doc["patientId"])
	assert.Equal(t, "Pending Payment", doc["status"])
	_, hasReason := doc["reason"]
	assert.False(t, hasReason, "empty optional fields are omitted")

	var decoded model.Appointment
	assert.NoError(t, model.Decode(doc, &decoded))
	assert.Equal(t, apt, decoded)
}
