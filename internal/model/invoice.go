package model

type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "Pending"
	InvoicePaid    InvoiceStatus = "Paid"
	InvoiceFailed  InvoiceStatus = "Failed"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoicePending, InvoicePaid, InvoiceFailed:
		return true
	}
	return false
}

// Invoice amounts are numeric strings by contract. AppointmentID is empty
// for ad-hoc invoices issued outside the booking path; the doctor fields are
// booking-time snapshots like the appointment's.
type Invoice struct {
	ID              string        `json:"id,omitempty"`
	AppointmentID   string        `json:"appointmentId,omitempty"`
	PatientID       string        `json:"patientId"`
	PatientName     string        `json:"patientName,omitempty"`
	DoctorID        string        `json:"doctorId,omitempty"`
	DoctorName      string        `json:"doctorName,omitempty"`
	DoctorSpecialty string        `json:"doctorSpecialty,omitempty"`
	Amount          string        `json:"amount"`
	Description     string        `json:"description,omitempty"`
	Date            string        `json:"date,omitempty"`
	Status          InvoiceStatus `json:"status"`
	CreatedAt       string        `json:"createdAt,omitempty"`
}

type CreateInvoiceRequest struct {
	PatientID   string `json:"patientId" validate:"required"`
	Amount      string `json:"amount" validate:"required,numeric"`
	Description string `json:"description" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
}
