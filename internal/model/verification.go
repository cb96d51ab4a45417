package model

import "time"

// EffectivenessRating represents the outcome of a verification attempt.
type EffectivenessRating string

const (
	RatingEffective          EffectivenessRating = "effective"
	RatingPartiallyEffective EffectivenessRating = "partially_effective"
	RatingNotEffective       EffectivenessRating = "not_effective"
)

// Valid reports whether the rating is one of the known outcomes.
func (r EffectivenessRating) Valid() bool {
	switch r {
	case RatingEffective, RatingPartiallyEffective, RatingNotEffective:
		return true
	}
	return false
}

// Verification records one verification attempt against a case. Its rating
// drives the case's next transition: effective closes the case, anything
// else leaves it pending further action.
type Verification struct {
	ID                  string              `json:"id" db:"id"`
	CaseID              string              `json:"case_id" db:"case_id"`
	EffectivenessRating EffectivenessRating `json:"effectiveness_rating" db:"effectiveness_rating"`

	// Opaque references into the collaborator upload system.
	BeforeEvidence []string `json:"before_evidence,omitempty"`
	AfterEvidence  []string `json:"after_evidence,omitempty"`

	Notes      string    `json:"notes,omitempty" db:"notes"`
	VerifiedBy string    `json:"verified_by" db:"verified_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Clone returns a deep copy of the verification.
func (v *Verification) Clone() *Verification {
	cp := *v

	cp.BeforeEvidence = make([]string, len(v.BeforeEvidence))
	copy(cp.BeforeEvidence, v.BeforeEvidence)

	cp.AfterEvidence = make([]string, len(v.AfterEvidence))
	copy(cp.AfterEvidence, v.AfterEvidence)

	return &cp
}

// VerifyRequest represents a request to record a verification attempt.
type VerifyRequest struct {
	EffectivenessRating EffectivenessRating `json:"effectiveness_rating"`
	BeforeEvidence      []string            `json:"before_evidence,omitempty"`
	AfterEvidence       []string            `json:"after_evidence,omitempty"`
	Notes               string              `json:"notes,omitempty"`
}
