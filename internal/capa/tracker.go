// Package capa manages corrective/preventive action records on a case.
package capa

import (
	"time"

	"github.com/ehs-platform/services/noncompliance/internal/model"
	apperrors "github.com/ehs-platform/services/noncompliance/pkg/errors"
)

// next maps each CAPA status to its sole legal successor. Closing has its
// own precondition and runs through Close, not Advance.
var next = map[model.CAPAStatus]model.CAPAStatus{
	model.CAPAStatusOpen:       model.CAPAStatusInProgress,
	model.CAPAStatusInProgress: model.CAPAStatusAwaitingVerification,
}

// IsOverdue reports whether the action is past due: not closed and the due
// date has passed. Computed at read time, never stored.
func IsOverdue(a *model.CAPA, now time.Time) bool {
	return a.Status != model.CAPAStatusClosed && a.DueDate.Before(now)
}

// Advance moves the action one step forward (open -> in_progress ->
// awaiting_verification). Any other move fails with INVALID_TRANSITION.
func Advance(a *model.CAPA, to model.CAPAStatus, now time.Time) error {
	if next[a.Status] != to {
		return apperrors.InvalidTransition("advance CAPA to "+string(to), string(a.Status))
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}

// Close closes the action, recording evidence and notes and setting the
// completion date. Requires status awaiting_verification.
func Close(a *model.CAPA, req *model.CloseCAPARequest, now time.Time) error {
	if a.Status != model.CAPAStatusAwaitingVerification {
		return apperrors.InvalidTransition("close CAPA", string(a.Status))
	}

	if req != nil {
		a.Evidence = append(a.Evidence, req.Evidence...)
		if req.Notes != "" {
			a.Notes = req.Notes
		}
	}

	a.Status = model.CAPAStatusClosed
	completed := now
	a.CompletedDate = &completed
	a.UpdatedAt = now
	return nil
}

// AllClosed reports whether every action in the list is closed. An empty
// list reports false: completing the CAPA phase requires at least one
// closed action.
func AllClosed(actions []*model.CAPA) bool {
	if len(actions) == 0 {
		return false
	}
	for _, a := range actions {
		if a.Status != model.CAPAStatusClosed {
			return false
		}
	}
	return true
}
