// Package verification applies effectiveness outcomes to decide case
// closure or continued follow-up.
package verification

import (
	"github.com/ehs-platform/services/noncompliance/internal/model"
	apperrors "github.com/ehs-platform/services/noncompliance/pkg/errors"
)

// Outcome is the evaluator's decision for a verification attempt.
type Outcome struct {
	// NextStatus is the case status after recording the verification. It
	// equals the current status when the rating is not effective.
	NextStatus model.CaseStatus
	// Action is the timeline action to record.
	Action string
	// Closed reports whether this outcome closes the case.
	Closed bool
}

// Evaluate decides the case's next transition for a verification attempt.
// A closed case cannot accept a new verification until it is reopened; a
// verification may be recorded from Verification Pending or directly from
// CAPA Completed.
func Evaluate(c *model.Case, rating model.EffectivenessRating) (Outcome, error) {
	if !rating.Valid() {
		return Outcome{}, apperrors.Validation("unknown effectiveness rating: " + string(rating))
	}

	if c.Status == model.StatusClosed {
		return Outcome{}, apperrors.InvalidTransition("verify", string(c.Status))
	}
	if c.Status != model.StatusVerificationPending && c.Status != model.StatusCAPACompleted {
		return Outcome{}, apperrors.InvalidTransition("verify", string(c.Status))
	}

	if rating == model.RatingEffective {
		return Outcome{
			NextStatus: model.StatusClosed,
			Action:     "Verification Completed - Closed",
			Closed:     true,
		}, nil
	}

	return Outcome{
		NextStatus: c.Status,
		Action:     "Verification Recorded",
	}, nil
}
