package model

import "time"

// CAPAType distinguishes corrective from preventive actions.
type CAPAType string

const (
	CAPATypeCorrective CAPAType = "corrective"
	CAPATypePreventive CAPAType = "preventive"
)

// CAPAStatus represents the action's progress. Transitions run strictly
// forward: open -> in_progress -> awaiting_verification -> closed.
type CAPAStatus string

const (
	CAPAStatusOpen                 CAPAStatus = "open"
	CAPAStatusInProgress           CAPAStatus = "in_progress"
	CAPAStatusAwaitingVerification CAPAStatus = "awaiting_verification"
	CAPAStatusClosed               CAPAStatus = "closed"
)

// CAPA is a corrective or preventive action attached to exactly one case,
// created only once the case has reached RCA Approved. CompletedDate is set
// exactly when the status transitions to closed.
type CAPA struct {
	ID          string     `json:"id" db:"id"`
	CaseID      string     `json:"case_id" db:"case_id"`
	Type        CAPAType   `json:"type" db:"type"`
	Status      CAPAStatus `json:"status" db:"status"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	Owner       string     `json:"owner,omitempty" db:"owner"`
	DueDate     time.Time  `json:"due_date" db:"due_date"`

	// Opaque references into the collaborator upload system.
	Evidence []string `json:"evidence,omitempty"`
	Notes    string   `json:"notes,omitempty" db:"notes"`

	CompletedDate *time.Time `json:"completed_date,omitempty" db:"completed_date"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy of the CAPA.
func (a *CAPA) Clone() *CAPA {
	cp := *a

	if a.CompletedDate != nil {
		d := *a.CompletedDate
		cp.CompletedDate = &d
	}

	cp.Evidence = make([]string, len(a.Evidence))
	copy(cp.Evidence, a.Evidence)

	return &cp
}

// OpenCAPARequest represents a request to open a new CAPA on a case.
type OpenCAPARequest struct {
	Type        CAPAType  `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	DueDate     time.Time `json:"due_date"`
}

// CloseCAPARequest carries the optional closing evidence and notes.
type CloseCAPARequest struct {
	Evidence []string `json:"evidence,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// CAPAView is a CAPA with its overdue flag computed at read time.
type CAPAView struct {
	*CAPA
	Overdue bool `json:"overdue"`
}
