// Package model provides data models for non-compliance case management.
package model

import (
	"time"
)

// Severity represents case severity levels.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityMajor, SeverityMinor:
		return true
	}
	return false
}

// CaseStatus represents case lifecycle status values.
type CaseStatus string

const (
	StatusDraft               CaseStatus = "draft"
	StatusSubmitted           CaseStatus = "submitted"
	StatusValidated           CaseStatus = "validated"
	StatusUnderInvestigation  CaseStatus = "under_investigation"
	StatusRCASubmitted        CaseStatus = "rca_submitted"
	StatusRCAApproved         CaseStatus = "rca_approved"
	StatusCAPAInProgress      CaseStatus = "capa_in_progress"
	StatusCAPACompleted       CaseStatus = "capa_completed"
	StatusVerificationPending CaseStatus = "verification_pending"
	StatusClosed              CaseStatus = "closed"
)

// Terminal reports whether the status allows no further transitions other
// than an explicit reopen.
func (s CaseStatus) Terminal() bool {
	return s == StatusClosed
}

// TimelineEntry is a single audit record on a case. Entries are append-only:
// Seq is 1-based and strictly increasing per case, and together with the
// wall-clock timestamp gives a total order even under clock skew.
type TimelineEntry struct {
	Seq       int       `json:"seq" db:"seq"`
	Action    string    `json:"action" db:"action"`
	Actor     string    `json:"actor" db:"actor"`
	Detail    string    `json:"detail,omitempty" db:"detail"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Case is the non-compliance case aggregate. RCAs, CAPAs, verifications and
// the timeline are committed atomically with the case under its version
// guard; Version advances by exactly one per committed mutation.
type Case struct {
	ID          string     `json:"id" db:"id"`
	Number      string     `json:"number" db:"number"` // Human-readable case number (e.g., NC-20260831-a1b2c3d4)
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	Category    string     `json:"category" db:"category"`
	Severity    Severity   `json:"severity" db:"severity"`
	Status      CaseStatus `json:"status" db:"status"`

	Location       string `json:"location" db:"location"`
	Site           string `json:"site" db:"site"`
	IsConfidential bool   `json:"is_confidential" db:"is_confidential"`

	AssignedInvestigator string     `json:"assigned_investigator,omitempty" db:"assigned_investigator"`
	ReportedBy           string     `json:"reported_by" db:"reported_by"`
	DueDate              *time.Time `json:"due_date,omitempty" db:"due_date"`

	// Required before validation completes when severity is critical.
	ContainmentActions string `json:"containment_actions,omitempty" db:"containment_actions"`

	RCAs          []*RCA          `json:"rcas,omitempty"`
	CAPAs         []*CAPA         `json:"capas,omitempty"`
	Verifications []*Verification `json:"verifications,omitempty"`
	Timeline      []TimelineEntry `json:"timeline"`

	Version   int64     `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RCAByID returns the RCA with the given id, or nil.
func (c *Case) RCAByID(id string) *RCA {
	for _, r := range c.RCAs {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// CAPAByID returns the CAPA with the given id, or nil.
func (c *Case) CAPAByID(id string) *CAPA {
	for _, a := range c.CAPAs {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Clone returns a deep copy of the case. Stores hand out and accept clones
// so callers can never mutate persisted state in place.
func (c *Case) Clone() *Case {
	cp := *c

	if c.DueDate != nil {
		d := *c.DueDate
		cp.DueDate = &d
	}

	cp.Timeline = make([]TimelineEntry, len(c.Timeline))
	copy(cp.Timeline, c.Timeline)

	cp.RCAs = make([]*RCA, len(c.RCAs))
	for i, r := range c.RCAs {
		cp.RCAs[i] = r.Clone()
	}

	cp.CAPAs = make([]*CAPA, len(c.CAPAs))
	for i, a := range c.CAPAs {
		cp.CAPAs[i] = a.Clone()
	}

	cp.Verifications = make([]*Verification, len(c.Verifications))
	for i, v := range c.Verifications {
		cp.Verifications[i] = v.Clone()
	}

	return &cp
}

// CreateCaseRequest represents a request to create a new case draft.
type CreateCaseRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Severity       Severity `json:"severity"`
	Location       string   `json:"location"`
	Site           string   `json:"site"`
	IsConfidential bool     `json:"is_confidential"`
}

// ValidateCaseRequest represents the adjustable fields of the validate
// operation. Nil pointers leave the current value untouched.
type ValidateCaseRequest struct {
	Category           *string    `json:"category,omitempty"`
	Severity           *Severity  `json:"severity,omitempty"`
	Investigator       *string    `json:"investigator,omitempty"`
	DueDate            *time.Time `json:"due_date,omitempty"`
	ContainmentActions *string    `json:"containment_actions,omitempty"`
}

// CaseFilter defines filters for listing cases.
type CaseFilter struct {
	Status       []CaseStatus `json:"status,omitempty"`
	Severity     []Severity   `json:"severity,omitempty"`
	Category     string       `json:"category,omitempty"`
	Investigator string       `json:"investigator,omitempty"`
	Search       string       `json:"search,omitempty"`
	Limit        int          `json:"limit,omitempty"`
	Offset       int          `json:"offset,omitempty"`
}

// CaseListResult contains paginated case results.
type CaseListResult struct {
	Cases   []*Case `json:"cases"`
	Total   int64   `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
	HasMore bool    `json:"has_more"`
}
