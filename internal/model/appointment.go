package model

type AppointmentStatus string

// Appointment status literals are part of the stored contract and must be
// reproduced verbatim.
const (
	AppointmentPendingPayment AppointmentStatus = "Pending Payment"
	AppointmentScheduled      AppointmentStatus = "Scheduled"
	AppointmentCompleted      AppointmentStatus = "Completed"
	AppointmentCancelled      AppointmentStatus = "Cancelled"
	AppointmentFailed         AppointmentStatus = "Failed"
)

// appointmentTransitions is the closed transition table. Scheduled is only
// reachable through payment verification; Completed and Cancelled are direct
// staff actions. Pending Payment may also be cancelled manually so bookings
// whose payment failed have a staff exit.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentPendingPayment: {AppointmentScheduled, AppointmentCancelled, AppointmentFailed},
	AppointmentScheduled:      {AppointmentCompleted, AppointmentCancelled},
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentPendingPayment, AppointmentScheduled, AppointmentCompleted,
		AppointmentCancelled, AppointmentFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition table permits s -> next.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BlocksSlot reports whether an appointment in this status occupies its time
// slot for conflict checking. Cancelled and Failed free the slot.
func (s AppointmentStatus) BlocksSlot() bool {
	return s != AppointmentCancelled && s != AppointmentFailed
}

// Appointment display fields (patientName, doctorName, doctorSpecialty) are
// snapshots captured at booking time. They deliberately do not track later
// patient or doctor edits.
type Appointment struct {
	ID              string            `json:"id,omitempty"`
	PatientID       string            `json:"patientId"`
	DoctorID        string            `json:"doctorId"`
	PatientName     string            `json:"patientName,omitempty"`
	DoctorName      string            `json:"doctorName,omitempty"`
	DoctorSpecialty string            `json:"doctorSpecialty,omitempty"`
	Date            string            `json:"date"`
	Time            string            `json:"time"`
	Reason          string            `json:"reason,omitempty"`
	ConsultationFee string            `json:"consultationFee,omitempty"`
	Status          AppointmentStatus `json:"status"`
	CreatedAt       string            `json:"createdAt,omitempty"`
}
