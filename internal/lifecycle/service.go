package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehs-platform/services/noncompliance/internal/audit"
	"github.com/ehs-platform/services/noncompliance/internal/capa"
	"github.com/ehs-platform/services/noncompliance/internal/events"
	"github.com/ehs-platform/services/noncompliance/internal/model"
	"github.com/ehs-platform/services/noncompliance/internal/policy"
	"github.com/ehs-platform/services/noncompliance/internal/rca"
	"github.com/ehs-platform/services/noncompliance/internal/repository"
	"github.com/ehs-platform/services/noncompliance/internal/verification"
	apperrors "github.com/ehs-platform/services/noncompliance/pkg/errors"
	"github.com/ehs-platform/services/noncompliance/pkg/logger"
)

// Service drives the case lifecycle. Every operation loads the aggregate,
// checks the transition table and business rules, mutates the case together
// with its audit entry, and writes back under the version guard. A stale
// read surfaces as CONFLICT; the service never retries on the caller's
// behalf.
type Service struct {
	store     repository.CaseStore
	recorder  *audit.Recorder
	publisher events.Publisher
	logger    *logger.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the transition event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a lifecycle service.
func NewService(store repository.CaseStore, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: events.NopPublisher{},
		logger:    log.With("component", "lifecycle"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = audit.NewRecorder(s.now)
	return s
}

// CreateCase creates a new case in Draft. Severity is fixed at creation and
// adjustable only during validation.
func (s *Service) CreateCase(ctx context.Context, req *model.CreateCaseRequest, actor string) (*model.Case, error) {
	if !req.Severity.Valid() {
		return nil, apperrors.Validation("unknown severity: " + string(req.Severity))
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperrors.Validation("title is required")
	}

	now := s.now().UTC()
	c := &model.Case{
		ID:             uuid.New().String(),
		Number:         s.generateCaseNumber(),
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Severity:       req.Severity,
		Status:         model.StatusDraft,
		Location:       req.Location,
		Site:           req.Site,
		IsConfidential: req.IsConfidential,
		ReportedBy:     actor,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("case created", "case_id", c.ID, "number", c.Number, "severity", c.Severity)
	return c, nil
}

// DeleteDraft hard-deletes a case that has never been submitted. This is
// the only hard delete the lifecycle permits.
func (s *Service) DeleteDraft(ctx context.Context, id, actor string) error {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := checkTransition(OpDeleteDraft, c); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("draft deleted", "case_id", id, "actor", actor)
	return nil
}

// Submit moves a complete draft into review.
func (s *Service) Submit(ctx context.Context, id, actor string) (*model.Case, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpSubmit, c); err != nil {
		return nil, err
	}

	var missing []string
	for field, value := range map[string]string{
		"category":    c.Category,
		"severity":    string(c.Severity),
		"title":       c.Title,
		"description": c.Description,
		"location":    c.Location,
		"site":        c.Site,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.Validation("missing required fields").WithDetail("fields", missing)
	}

	from := c.Status
	c.Status = model.StatusSubmitted
	s.recorder.Append(c, "Submitted", actor, "")

	if err := s.commit(ctx, c, from, "Submitted", actor); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reviews a submitted case, optionally adjusting classification
// fields. A case that ends up critical must carry containment actions. The
// case lands in Under Investigation when an investigator is assigned,
// otherwise in Validated.
func (s *Service) Validate(ctx context.Context, id string, req *model.ValidateCaseRequest, actor string) (*model.Case, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpValidate, c); err != nil {
		return nil, err
	}

	if req == nil {
		req = &model.ValidateCaseRequest{}
	}

	if req.Severity != nil {
		if !req.Severity.Valid() {
			return nil, apperrors.Validation("unknown severity: " + string(*req.Severity))
		}
		c.Severity = *req.Severity
	}
	if req.Category != nil {
		c.Category = *req.Category
	}
	if req.Investigator != nil {
		c.AssignedInvestigator = *req.Investigator
	}
	if req.DueDate != nil {
		d := *req.DueDate
		c.DueDate = &d
	}
	if req.ContainmentActions != nil {
		c.ContainmentActions = *req.ContainmentActions
	}

	if policy.RequiresContainment(c.Severity) && strings.TrimSpace(c.ContainmentActions) == "" {
		return nil, apperrors.Validation("containment actions are required for critical severity")
	}

	from := c.Status
	if c.AssignedInvestigator != "" {
		c.Status = model.StatusUnderInvestigation
	} else {
		c.Status = model.StatusValidated
	}

	s.recorder.Append(c, "Validated", actor, "")
	if c.AssignedInvestigator != "" {
		s.recorder.Append(c, "Investigator Assigned", actor, c.AssignedInvestigator)
	}

	if err := s.commit(ctx, c, from, "Validated", actor); err != nil {
		return nil, err
	}
	return c, nil
}

// Reject sends a submitted case back to its reporter.
func (s *Service) Reject(ctx context.Context, id, reason, actor string) (*model.Case, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Validation("a rejection reason is required")
	}

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpReject, c); err != nil {
		return nil, err
	}

	from := c.Status
	c.Status = model.StatusDraft
	s.recorder.Append(c, "Rejected", actor, reason)

	if err := s.commit(ctx, c, from, "Rejected", actor); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveRCA saves a root-cause analysis against the case. A draft save never
// touches the case status; submitting moves the case to RCA Submitted. An
// open draft or rejected revision is updated in place, otherwise a new RCA
// record is created.
func (s *Service) SaveRCA(ctx context.Context, caseID string, req *model.SaveRCARequest, actor string) (*model.RCA, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpSaveRCA, c); err != nil {
		return nil, err
	}

	now := s.now().UTC()

	r := s.editableRCA(c)
	if r == nil {
		r = &model.RCA{
			ID:        uuid.New().String(),
			CaseID:    c.ID,
			CreatedBy: actor,
			CreatedAt: now,
		}
		c.RCAs = append(c.RCAs, r)
	}

	r.Type = req.Type
	r.Conclusion = req.Conclusion
	r.FiveWhys = req.FiveWhys
	r.Fishbone = req.Fishbone
	r.UpdatedAt = now

	if err := rca.ValidateShape(r); err != nil {
		return nil, err
	}

	from := c.Status
	action := ""
	if req.Submit {
		if strings.TrimSpace(r.Conclusion) == "" {
			return nil, apperrors.Incomplete("RCA conclusion is required")
		}
		r.Status = model.RCAStatusSubmitted
		c.Status = model.StatusRCASubmitted
		action = "RCA Submitted"
		s.recorder.Append(c, action, actor, string(r.Type))
	} else {
		r.Status = model.RCAStatusDraft
	}

	if err := s.commit(ctx, c, from, action, actor); err != nil {
		return nil, err
	}
	return r, nil
}

// ApproveRCA approves a submitted analysis after checking it against the
// severity policy. On failure the case and the RCA are left unchanged.
func (s *Service) ApproveRCA(ctx context.Context, caseID, rcaID, actor string) (*model.Case, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpApproveRCA, c); err != nil {
		return nil, err
	}

	r := c.RCAByID(rcaID)
	if r == nil {
		return nil, apperrors.NotFound("RCA " + rcaID)
	}
	if r.Status != model.RCAStatusSubmitted {
		return nil, apperrors.InvalidTransition("approve RCA", string(r.Status))
	}

	if err := rca.ValidateForApproval(r, c.Severity); err != nil {
		return nil, err
	}

	from := c.Status
	r.Status = model.RCAStatusApproved
	r.UpdatedAt = s.now().UTC()
	c.Status = model.StatusRCAApproved
	s.recorder.Append(c, "RCA Approved", actor, string(r.Type))

	if err := s.commit(ctx, c, from, "RCA Approved", actor); err != nil {
		return nil, err
	}
	return c, nil
}

// RejectRCA sends a submitted analysis back for rework. The case returns to
// Under Investigation when an investigator is assigned, else to Validated.
func (s *Service) RejectRCA(ctx context.Context, caseID, rcaID, reason, actor string) (*model.Case, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpRejectRCA, c); err != nil {
		return nil, err
	}

	r := c.RCAByID(rcaID)
	if r == nil {
		return nil, apperrors.NotFound("RCA " + rcaID)
	}
	if r.Status != model.RCAStatusSubmitted {
		return nil, apperrors.InvalidTransition("reject RCA", string(r.Status))
	}

	from := c.Status
	r.Status = model.RCAStatusRejected
	r.UpdatedAt = s.now().UTC()
	if c.AssignedInvestigator != "" {
		c.Status = model.StatusUnderInvestigation
	} else {
		c.Status = model.StatusValidated
	}
	s.recorder.Append(c, "RCA Rejected", actor, reason)

	if err := s.commit(ctx, c, from, "RCA Rejected", actor); err != nil {
		return nil, err
	}
	return c, nil
}

// OpenCAPA creates a corrective or preventive action on the case. Legal
// once the RCA is approved and while the CAPA phase is in progress (reopen
// lands here too).
func (s *Service) OpenCAPA(ctx context.Context, caseID string, req *model.OpenCAPARequest, actor string) (*model.CAPA, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpOpenCAPA, c); err != nil {
		return nil, err
	}

	if req.Type != model.CAPATypeCorrective && req.Type != model.CAPATypePreventive {
		return nil, apperrors.Validation("unknown CAPA type: " + string(req.Type))
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperrors.Validation("CAPA title is required")
	}
	if req.DueDate.IsZero() {
		return nil, apperrors.Validation("CAPA due date is required")
	}

	now := s.now().UTC()
	a := &model.CAPA{
		ID:          uuid.New().String(),
		CaseID:      c.ID,
		Type:        req.Type,
		Status:      model.CAPAStatusOpen,
		Title:       req.Title,
		Description: req.Description,
		Owner:       req.Owner,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.CAPAs = append(c.CAPAs, a)

	from := c.Status
	c.Status = model.StatusCAPAInProgress
	s.recorder.Append(c, "CAPA Opened", actor, a.Title)

	if err := s.commit(ctx, c, from, "CAPA Opened", actor); err != nil {
		return nil, err
	}
	return a, nil
}

// AdvanceCAPA moves one action a single step forward. The action's state
// lives on its own record; the case status and timeline are untouched, but
// the write still runs under the case's version guard.
func (s *Service) AdvanceCAPA(ctx context.Context, caseID, capaID string, to model.CAPAStatus, actor string) (*model.CAPA, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpAdvanceCAPA, c); err != nil {
		return nil, err
	}

	a := c.CAPAByID(capaID)
	if a == nil {
		return nil, apperrors.NotFound("CAPA " + capaID)
	}

	if err := capa.Advance(a, to, s.now().UTC()); err != nil {
		return nil, err
	}

	if err := s.commit(ctx, c, c.Status, "", actor); err != nil {
		return nil, err
	}
	return a, nil
}

// CloseCAPA closes an action awaiting verification, recording evidence and
// the completion date.
func (s *Service) CloseCAPA(ctx context.Context, caseID, capaID string, req *model.CloseCAPARequest, actor string) (*model.CAPA, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpCloseCAPA, c); err != nil {
		return nil, err
	}

	a := c.CAPAByID(capaID)
	if a == nil {
		return nil, apperrors.NotFound("CAPA " + capaID)
	}

	if err := capa.Close(a, req, s.now().UTC()); err != nil {
		return nil, err
	}

	if err := s.commit(ctx, c, c.Status, "", actor); err != nil {
		return nil, err
	}
	return a, nil
}

// CompleteCAPA closes the CAPA phase once every action on the case is
// closed.
func (s *Service) CompleteCAPA(ctx context.Context, caseID, actor string) (*model.Case, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpCompleteCAPA, c); err != nil {
		return nil, err
	}

	if !capa.AllClosed(c.CAPAs) {
		return nil, apperrors.Validation("all CAPAs must be closed before completing the CAPA phase")
	}

	from := c.Status
	c.Status = model.StatusCAPACompleted
	s.recorder.Append(c, "CAPA Completed", actor, "")

	if err := s.commit(ctx, c, from, "CAPA Completed", actor); err != nil {
		return nil, err
	}
	return c, nil
}

// RequestVerification queues the case for an effectiveness check.
func (s *Service) RequestVerification(ctx context.Context, caseID, actor string) (*model.Case, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpRequestVerification, c); err != nil {
		return nil, err
	}

	from := c.Status
	c.Status = model.StatusVerificationPending
	s.recorder.Append(c, "Verification Requested", actor, "")

	if err := s.commit(ctx, c, from, "Verification Requested", actor); err != nil {
		return nil, err
	}
	return c, nil
}

// Verify records a verification attempt. An effective rating closes the
// case; any other rating leaves the status where it was, pending further
// action, with the attempt on record either way.
func (s *Service) Verify(ctx context.Context, caseID string, req *model.VerifyRequest, actor string) (*model.Case, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpVerify, c); err != nil {
		return nil, err
	}

	outcome, err := verification.Evaluate(c, req.EffectivenessRating)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	v := &model.Verification{
		ID:                  uuid.New().String(),
		CaseID:              c.ID,
		EffectivenessRating: req.EffectivenessRating,
		BeforeEvidence:      req.BeforeEvidence,
		AfterEvidence:       req.AfterEvidence,
		Notes:               req.Notes,
		VerifiedBy:          actor,
		CreatedAt:           now,
	}
	c.Verifications = append(c.Verifications, v)

	from := c.Status
	c.Status = outcome.NextStatus
	s.recorder.Append(c, outcome.Action, actor, string(req.EffectivenessRating))

	if err := s.commit(ctx, c, from, outcome.Action, actor); err != nil {
		return nil, err
	}
	return c, nil
}

// Reopen returns a verified-pending or closed case to the CAPA phase for
// additional action. Explicit operator decision; nothing reopens a case
// automatically.
func (s *Service) Reopen(ctx context.Context, caseID, actor string) (*model.Case, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(OpReopen, c); err != nil {
		return nil, err
	}

	from := c.Status
	c.Status = model.StatusCAPAInProgress
	s.recorder.Append(c, "Reopened for additional CAPA", actor, "")

	if err := s.commit(ctx, c, from, "Reopened for additional CAPA", actor); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCase retrieves a case aggregate including its timeline.
func (s *Service) GetCase(ctx context.Context, id string) (*model.Case, error) {
	return s.store.Get(ctx, id)
}

// ListCases retrieves cases matching the filter.
func (s *Service) ListCases(ctx context.Context, filter *model.CaseFilter) (*model.CaseListResult, error) {
	return s.store.List(ctx, filter)
}

// ListCAPAs returns the case's actions with overdue flags computed against
// the current clock.
func (s *Service) ListCAPAs(ctx context.Context, caseID string) ([]*model.CAPAView, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	views := make([]*model.CAPAView, len(c.CAPAs))
	for i, a := range c.CAPAs {
		views[i] = &model.CAPAView{CAPA: a, Overdue: capa.IsOverdue(a, now)}
	}
	return views, nil
}

// commit writes the aggregate back under its version guard and, for status
// transitions, emits a transition event after the write lands.
func (s *Service) commit(ctx context.Context, c *model.Case, from model.CaseStatus, action, actor string) error {
	c.UpdatedAt = s.now().UTC()

	if err := s.store.Update(ctx, c); err != nil {
		return err
	}

	if action != "" {
		s.logger.Info("case transition",
			"case_id", c.ID,
			"action", action,
			"from", from,
			"to", c.Status,
			"version", c.Version,
		)
		s.publisher.Publish(ctx, &events.TransitionEvent{
			CaseID:     c.ID,
			CaseNumber: c.Number,
			Action:     action,
			FromStatus: from,
			ToStatus:   c.Status,
			Severity:   c.Severity,
			Actor:      actor,
			Version:    c.Version,
			Timestamp:  s.now().UTC(),
		})
	}

	return nil
}

// editableRCA returns the latest RCA still open for editing, if any.
func (s *Service) editableRCA(c *model.Case) *model.RCA {
	for i := len(c.RCAs) - 1; i >= 0; i-- {
		switch c.RCAs[i].Status {
		case model.RCAStatusDraft, model.RCAStatusRejected:
			return c.RCAs[i]
		}
	}
	return nil
}

func (s *Service) generateCaseNumber() string {
	timestamp := s.now().UTC().Format("20060102")
	random := uuid.New().String()[:8]
	return fmt.Sprintf("NC-%s-%s", timestamp, random)
}
