// Package lifecycle implements the case status state machine: it validates
// and applies legal transitions, consulting the severity policy, RCA
// validator and CAPA tracker, and commits every mutation together with its
// audit entry under the repository's version guard.
package lifecycle

import (
	"github.com/ehs-platform/services/noncompliance/internal/model"
	apperrors "github.com/ehs-platform/services/noncompliance/pkg/errors"
)

// Operation names a lifecycle operation for transition checking.
type Operation string

const (
	OpSubmit              Operation = "submit"
	OpValidate            Operation = "validate"
	OpReject              Operation = "reject"
	OpSaveRCA             Operation = "save_rca"
	OpApproveRCA          Operation = "approve_rca"
	OpRejectRCA           Operation = "reject_rca"
	OpOpenCAPA            Operation = "open_capa"
	OpAdvanceCAPA         Operation = "advance_capa"
	OpCloseCAPA           Operation = "close_capa"
	OpCompleteCAPA        Operation = "complete_capa"
	OpRequestVerification Operation = "request_verification"
	OpVerify              Operation = "verify"
	OpReopen              Operation = "reopen"
	OpDeleteDraft         Operation = "delete_draft"
)

// allowedFrom is the complete legal-transition set: the statuses from which
// each operation may run. Kept in one table so the workflow stays auditable
// in one place; every operation passes through checkTransition before doing
// anything else.
var allowedFrom = map[Operation][]model.CaseStatus{
	OpSubmit:   {model.StatusDraft},
	OpValidate: {model.StatusSubmitted},
	OpReject:   {model.StatusSubmitted},
	OpSaveRCA: {
		model.StatusValidated,
		model.StatusUnderInvestigation,
		model.StatusRCASubmitted,
	},
	OpApproveRCA: {model.StatusRCASubmitted},
	OpRejectRCA:  {model.StatusRCASubmitted},
	OpOpenCAPA: {
		model.StatusRCAApproved,
		model.StatusCAPAInProgress,
	},
	OpAdvanceCAPA:         {model.StatusCAPAInProgress},
	OpCloseCAPA:           {model.StatusCAPAInProgress},
	OpCompleteCAPA:        {model.StatusCAPAInProgress},
	OpRequestVerification: {model.StatusCAPACompleted},
	OpVerify: {
		model.StatusVerificationPending,
		model.StatusCAPACompleted,
	},
	OpReopen: {
		model.StatusVerificationPending,
		model.StatusClosed,
	},
	OpDeleteDraft: {model.StatusDraft},
}

// checkTransition fails with INVALID_TRANSITION when the operation is not
// legal from the case's current status.
func checkTransition(op Operation, c *model.Case) error {
	for _, status := range allowedFrom[op] {
		if c.Status == status {
			return nil
		}
	}
	return apperrors.InvalidTransition(string(op), string(c.Status))
}
