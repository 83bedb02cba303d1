package model

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Domain event types published through the outbox.
const (
	EventAppointmentBooked = "appointment.booked"
	EventInvoiceCreated    = "invoice.created"
	EventPaymentVerified   = "payment.verified"
	EventPaymentFailed     = "payment.failed"
)

// OutboxEvent is written in the same atomic unit as the mutation it
// describes; the relay drains pending events to the broker afterwards.
type OutboxEvent struct {
	ID        string                 `json:"id,omitempty"`
	EventType string                 `json:"eventType"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Status    OutboxStatus           `json:"status"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt string                 `json:"createdAt,omitempty"`
}
