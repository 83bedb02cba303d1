package model

// Status values shared by patients and doctors. Literals are part of the
// stored contract.
const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

type Patient struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Age       string `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Condition string `json:"condition,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type CreatePatientRequest struct {
	Name      string `json:"name" validate:"required"`
	Age       string `json:"age"`
	Gender    string `json:"gender"`
	Phone     string `json:"phone"`
	Condition string `json:"condition"`
}
