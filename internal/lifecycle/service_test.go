package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehs-platform/services/noncompliance/internal/events"
	"github.com/ehs-platform/services/noncompliance/internal/model"
	"github.com/ehs-platform/services/noncompliance/internal/repository"
	apperrors "github.com/ehs-platform/services/noncompliance/pkg/errors"
	"github.com/ehs-platform/services/noncompliance/pkg/logger"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// capturePublisher records published transition events for assertions.
type capturePublisher struct {
	events []*events.TransitionEvent
}

func (p *capturePublisher) Publish(ctx context.Context, event *events.TransitionEvent) {
	p.events = append(p.events, event)
}

func (p *capturePublisher) Close() {}

func newTestService(t *testing.T) (*Service, *repository.MemoryStore, *capturePublisher) {
	t.Helper()
	store := repository.NewMemoryStore()
	publisher := &capturePublisher{}
	log := logger.New(&logger.Config{Level: "error"})
	svc := NewService(store, log,
		WithClock(func() time.Time { return fixedNow }),
		WithPublisher(publisher),
	)
	return svc, store, publisher
}

func createDraft(t *testing.T, svc *Service, severity model.Severity) *model.Case {
	t.Helper()
	c, err := svc.CreateCase(context.Background(), &model.CreateCaseRequest{
		Title:       "Ammonia leak at compressor station",
		Description: "Detector tripped on line 4 during night shift",
		Category:    "environmental",
		Severity:    severity,
		Location:    "compressor station 2",
		Site:        "plant-north",
	}, "reporter")
	require.NoError(t, err)
	return c
}

func submittedCase(t *testing.T, svc *Service, severity model.Severity) *model.Case {
	t.Helper()
	c := createDraft(t, svc, severity)
	c, err := svc.Submit(context.Background(), c.ID, "reporter")
	require.NoError(t, err)
	return c
}

func strPtr(s string) *string { return &s }

func TestCreateCase(t *testing.T) {
	svc, _, _ := newTestService(t)

	c := createDraft(t, svc, model.SeverityMinor)

	assert.Equal(t, model.StatusDraft, c.Status)
	assert.Equal(t, int64(1), c.Version)
	assert.Empty(t, c.Timeline)
	assert.Equal(t, "reporter", c.ReportedBy)
	assert.Regexp(t, `^NC-20250615-[0-9a-f]{8}$`, c.Number)
}

func TestCreateCaseRejectsUnknownSeverity(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateCase(context.Background(), &model.CreateCaseRequest{
		Title:    "x",
		Severity: "catastrophic",
	}, "reporter")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestSubmitRequiresCompleteDraft(t *testing.T) {
	svc, _, _ := newTestService(t)

	c, err := svc.CreateCase(context.Background(), &model.CreateCaseRequest{
		Title:    "Missing fields",
		Severity: model.SeverityMinor,
	}, "reporter")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), c.ID, "reporter")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details["fields"], "category")
	assert.Contains(t, appErr.Details["fields"], "description")
}

func TestSubmitRecordsTimelineAndVersion(t *testing.T) {
	svc, _, publisher := newTestService(t)

	c := submittedCase(t, svc, model.SeverityMinor)

	assert.Equal(t, model.StatusSubmitted, c.Status)
	assert.Equal(t, int64(2), c.Version)
	require.Len(t, c.Timeline, 1)
	assert.Equal(t, "Submitted", c.Timeline[0].Action)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, model.StatusDraft, publisher.events[0].FromStatus)
	assert.Equal(t, model.StatusSubmitted, publisher.events[0].ToStatus)
}

func TestSubmitTwiceIsInvalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submittedCase(t, svc, model.SeverityMinor)

	_, err := svc.Submit(context.Background(), c.ID, "reporter")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidTransition))
}

func TestValidateWithoutInvestigator(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submittedCase(t, svc, model.SeverityMinor)

	c, err := svc.Validate(context.Background(), c.ID, &model.ValidateCaseRequest{}, "manager")
	require.NoError(t, err)

	assert.Equal(t, model.StatusValidated, c.Status)
	require.Len(t, c.Timeline, 2)
	assert.Equal(t, "Validated", c.Timeline[1].Action)
}

func TestValidateWithInvestigatorAssignsAndInvestigates(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submittedCase(t, svc, model.SeverityMinor)

	c, err := svc.Validate(context.Background(), c.ID, &model.ValidateCaseRequest{
		Investigator: strPtr("dana"),
	}, "manager")
	require.NoError(t, err)

	assert.Equal(t, model.StatusUnderInvestigation, c.Status)
	assert.Equal(t, "dana", c.AssignedInvestigator)
	require.Len(t, c.Timeline, 3)
	assert.Equal(t, "Validated", c.Timeline[1].Action)
	assert.Equal(t, "Investigator Assigned", c.Timeline[2].Action)
	assert.Equal(t, "dana", c.Timeline[2].Detail)
}

func TestValidateCriticalRequiresContainment(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submittedCase(t, svc, model.SeverityCritical)

	_, err := svc.Validate(context.Background(), c.ID, &model.ValidateCaseRequest{}, "manager")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	containment := "line isolated, area evacuated"
	c, err = svc.Validate(context.Background(), c.ID, &model.ValidateCaseRequest{
		ContainmentActions: &containment,
	}, "manager")
	require.NoError(t, err)
	assert.Equal(t, model.StatusValidated, c.Status)
}

func TestValidateEscalatingSeverityRequiresContainment(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submittedCase(t, svc, model.SeverityMinor)

	// Escalating to critical during validation triggers the containment
	// requirement even though the case was reported as minor.
	sev := model.SeverityCritical
	_, err := svc.Validate(context.Background(), c.ID, &model.ValidateCaseRequest{
		Severity: &sev,
	}, "manager")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestRejectReturnsToDraft(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submittedCase(t, svc, model.SeverityMinor)

	_, err := svc.Reject(context.Background(), c.ID, "  ", "manager")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation), "reason is required")

	c, err = svc.Reject(context.Background(), c.ID, "no photos attached", "manager")
	require.NoError(t, err)

	assert.Equal(t, model.StatusDraft, c.Status)
	require.Len(t, c.Timeline, 2)
	assert.Equal(t, "Rejected", c.Timeline[1].Action)
	assert.Equal(t, "no photos attached", c.Timeline[1].Detail)

	// A rejected case can be resubmitted.
	c, err = svc.Submit(context.Background(), c.ID, "reporter")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, c.Status)
}

func validatedCase(t *testing.T, svc *Service, severity model.Severity) *model.Case {
	t.Helper()
	c := submittedCase(t, svc, severity)
	req := &model.ValidateCaseRequest{}
	if severity == model.SeverityCritical {
		containment := "area cordoned off"
		req.ContainmentActions = &containment
	}
	c, err := svc.Validate(context.Background(), c.ID, req, "manager")
	require.NoError(t, err)
	return c
}

func fiveWhysRequest(submit bool, answers ...string) *model.SaveRCARequest {
	levels := make([]model.WhyLevel, len(answers))
	for i, a := range answers {
		levels[i] = model.WhyLevel{Level: i + 1, Question: "why?", Answer: a}
	}
	return &model.SaveRCARequest{
		Type:       model.RCATypeFiveWhys,
		Conclusion: "seal replacement interval too long",
		FiveWhys:   &model.FiveWhysAnalysis{Levels: levels},
		Submit:     submit,
	}
}

func TestSaveRCADraftKeepsCaseStatus(t *testing.T) {
	svc, _, publisher := newTestService(t)
	c := validatedCase(t, svc, model.SeverityMinor)
	entriesBefore := len(c.Timeline)

	r, err := svc.SaveRCA(context.Background(), c.ID, fiveWhysRequest(false, "a", "b"), "dana")
	require.NoError(t, err)
	assert.Equal(t, model.RCAStatusDraft, r.Status)

	got, err := svc.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValidated, got.Status)
	assert.Len(t, got.Timeline, entriesBefore, "draft saves leave the timeline alone")
	assert.Equal(t, c.Version+1, got.Version, "but still commit under the version guard")

	for _, event := range publisher.events {
		assert.NotEqual(t, "RCA Submitted", event.Action)
	}
}

func TestSaveRCASubmitTransitionsCase(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := validatedCase(t, svc, model.SeverityMinor)

	r, err := svc.SaveRCA(context.Background(), c.ID, fiveWhysRequest(true, "a", "b"), "dana")
	require.NoError(t, err)
	assert.Equal(t, model.RCAStatusSubmitted, r.Status)

	got, err := svc.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRCASubmitted, got.Status)
	assert.Equal(t, "RCA Submitted", got.Timeline[len(got.Timeline)-1].Action)
}

func TestSaveRCASubmitRequiresConclusion(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := validatedCase(t, svc, model.SeverityMinor)

	req := fiveWhysRequest(true, "a", "b")
	req.Conclusion = ""
	_, err := svc.SaveRCA(context.Background(), c.ID, req, "dana")
	assert.True(t, apperrors.Is(err, apperrors.CodeIncomplete))
}

func TestSaveRCAUpdatesExistingDraft(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := validatedCase(t, svc, model.SeverityMinor)

	first, err := svc.SaveRCA(context.Background(), c.ID, fiveWhysRequest(false, "a"), "dana")
	require.NoError(t, err)

	second, err := svc.SaveRCA(context.Background(), c.ID, fiveWhysRequest(false, "a", "b", "c"), "dana")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "draft is revised in place")

	got, err := svc.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, got.RCAs, 1)
	assert.Len(t, got.RCAs[0].FiveWhys.Levels, 3)
}

func TestSaveRCAShapeMismatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := validatedCase(t, svc, model.SeverityMinor)

	_, err := svc.SaveRCA(context.Background(), c.ID, &model.SaveRCARequest{
		Type:     model.RCATypeFishbone,
		FiveWhys: &model.FiveWhysAnalysis{},
	}, "dana")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func rcaSubmittedCase(t *testing.T, svc *Service, severity model.Severity, answers ...string) (*model.Case, string) {
	t.Helper()
	c := validatedCase(t, svc, severity)
	r, err := svc.SaveRCA(context.Background(), c.ID, fiveWhysRequest(true, answers...), "dana")
	require.NoError(t, err)
	c, err = svc.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	return c, r.ID
}

func TestApproveRCA(t *testing.T) {
	svc, _, _ := newTestService(t)
	c, rcaID := rcaSubmittedCase(t, svc, model.SeverityMinor, "a", "b")

	c, err := svc.ApproveRCA(context.Background(), c.ID, rcaID, "manager")
	require.NoError(t, err)

	assert.Equal(t, model.StatusRCAApproved, c.Status)
	assert.Equal(t, model.RCAStatusApproved, c.RCAs[0].Status)
	assert.Equal(t, "RCA Approved", c.Timeline[len(c.Timeline)-1].Action)
}

func TestApproveRCAEnforcesSeverityDepth(t *testing.T) {
	svc, _, _ := newTestService(t)
	// Critical needs five answered levels; four is not enough.
	c, rcaID := rcaSubmittedCase(t, svc, model.SeverityCritical, "a", "b", "c", "d")

	_, err := svc.ApproveRCA(context.Background(), c.ID, rcaID, "manager")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInsufficientAnalysis))

	// The failed approval leaves everything untouched.
	got, err := svc.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRCASubmitted, got.Status)
	assert.Equal(t, model.RCAStatusSubmitted, got.RCAs[0].Status)
	assert.Equal(t, c.Version, got.Version)
}

func TestApproveRCAUnknownID(t *testing.T) {
	svc, _, _ := newTestService(t)
	c, _ := rcaSubmittedCase(t, svc, model.SeverityMinor, "a", "b")

	_, err := svc.ApproveRCA(context.Background(), c.ID, "nope", "manager")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestRejectRCAReturnsToInvestigation(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submittedCase(t, svc, model.SeverityMinor)
	c, err := svc.Validate(context.Background(), c.ID, &model.ValidateCaseRequest{
		Investigator: strPtr("dana"),
	}, "manager")
	require.NoError(t, err)

	r, err := svc.SaveRCA(context.Background(), c.ID, fiveWhysRequest(true, "a", "b"), "dana")
	require.NoError(t, err)

	c, err = svc.RejectRCA(context.Background(), c.ID, r.ID, "depth too shallow", "manager")
	require.NoError(t, err)

	assert.Equal(t, model.StatusUnderInvestigation, c.Status)
	assert.Equal(t, model.RCAStatusRejected, c.RCAs[0].Status)
	assert.Equal(t, "RCA Rejected", c.Timeline[len(c.Timeline)-1].Action)

	// The rejected RCA is revised and resubmitted under the same ID.
	revised, err := svc.SaveRCA(context.Background(), c.ID, fiveWhysRequest(true, "a", "b", "c"), "dana")
	require.NoError(t, err)
	assert.Equal(t, r.ID, revised.ID)
	assert.Equal(t, model.RCAStatusSubmitted, revised.Status)
}

func approvedRCACase(t *testing.T, svc *Service, severity model.Severity, answers ...string) *model.Case {
	t.Helper()
	c, rcaID := rcaSubmittedCase(t, svc, severity, answers...)
	c, err := svc.ApproveRCA(context.Background(), c.ID, rcaID, "manager")
	require.NoError(t, err)
	return c
}

func TestOpenCAPA(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := approvedRCACase(t, svc, model.SeverityMinor, "a", "b")

	a, err := svc.OpenCAPA(context.Background(), c.ID, &model.OpenCAPARequest{
		Type:    model.CAPATypeCorrective,
		Title:   "Replace valve seal",
		Owner:   "maintenance",
		DueDate: fixedNow.Add(7 * 24 * time.Hour),
	}, "dana")
	require.NoError(t, err)
	assert.Equal(t, model.CAPAStatusOpen, a.Status)

	got, err := svc.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCAPAInProgress, got.Status)
	assert.Equal(t, "CAPA Opened", got.Timeline[len(got.Timeline)-1].Action)
	assert.Equal(t, "Replace valve seal", got.Timeline[len(got.Timeline)-1].Detail)

	// A second action can be opened while the phase is in progress.
	_, err = svc.OpenCAPA(context.Background(), c.ID, &model.OpenCAPARequest{
		Type:    model.CAPATypePreventive,
		Title:   "Shorten inspection interval",
		DueDate: fixedNow.Add(30 * 24 * time.Hour),
	}, "dana")
	require.NoError(t, err)
}

func TestOpenCAPAValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := approvedRCACase(t, svc, model.SeverityMinor, "a", "b")

	_, err := svc.OpenCAPA(context.Background(), c.ID, &model.OpenCAPARequest{
		Type:    "remedial",
		Title:   "x",
		DueDate: fixedNow,
	}, "dana")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = svc.OpenCAPA(context.Background(), c.ID, &model.OpenCAPARequest{
		Type:  model.CAPATypeCorrective,
		Title: "no due date",
	}, "dana")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func capaCase(t *testing.T, svc *Service) (*model.Case, string) {
	t.Helper()
	c := approvedRCACase(t, svc, model.SeverityMinor, "a", "b")
	a, err := svc.OpenCAPA(context.Background(), c.ID, &model.OpenCAPARequest{
		Type:    model.CAPATypeCorrective,
		Title:   "Replace valve seal",
		DueDate: fixedNow.Add(7 * 24 * time.Hour),
	}, "dana")
	require.NoError(t, err)
	c, err = svc.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	return c, a.ID
}

func closeCAPA(t *testing.T, svc *Service, caseID, capaID string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.AdvanceCAPA(ctx, caseID, capaID, model.CAPAStatusInProgress, "dana")
	require.NoError(t, err)
	_, err = svc.AdvanceCAPA(ctx, caseID, capaID, model.CAPAStatusAwaitingVerification, "dana")
	require.NoError(t, err)
	_, err = svc.CloseCAPA(ctx, caseID, capaID, &model.CloseCAPARequest{
		Evidence: []string{"work-order-4711.pdf"},
	}, "dana")
	require.NoError(t, err)
}

func TestCAPAWorkflowToCompletion(t *testing.T) {
	svc, _, _ := newTestService(t)
	c, capaID := capaCase(t, svc)
	entriesBefore := len(c.Timeline)

	closeCAPA(t, svc, c.ID, capaID)

	got, err := svc.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CAPAStatusClosed, got.CAPAs[0].Status)
	assert.Len(t, got.Timeline, entriesBefore, "action-level steps stay off the case timeline")

	got, err = svc.CompleteCAPA(context.Background(), c.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCAPACompleted, got.Status)
	assert.Equal(t, "CAPA Completed", got.Timeline[len(got.Timeline)-1].Action)
}

func TestCompleteCAPARequiresAllClosed(t *testing.T) {
	svc, _, _ := newTestService(t)
	c, _ := capaCase(t, svc)

	_, err := svc.CompleteCAPA(context.Background(), c.ID, "manager")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestListCAPAsComputesOverdue(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := approvedRCACase(t, svc, model.SeverityMinor, "a", "b")

	_, err := svc.OpenCAPA(context.Background(), c.ID, &model.OpenCAPARequest{
		Type:    model.CAPATypeCorrective,
		Title:   "Past due action",
		DueDate: fixedNow.Add(-24 * time.Hour),
	}, "dana")
	require.NoError(t, err)
	_, err = svc.OpenCAPA(context.Background(), c.ID, &model.OpenCAPARequest{
		Type:    model.CAPATypePreventive,
		Title:   "Future action",
		DueDate: fixedNow.Add(24 * time.Hour),
	}, "dana")
	require.NoError(t, err)

	views, err := svc.ListCAPAs(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.True(t, views[0].Overdue)
	assert.False(t, views[1].Overdue)
}

func completedCAPACase(t *testing.T, svc *Service) *model.Case {
	t.Helper()
	c, capaID := capaCase(t, svc)
	closeCAPA(t, svc, c.ID, capaID)
	c, err := svc.CompleteCAPA(context.Background(), c.ID, "manager")
	require.NoError(t, err)
	return c
}

func TestVerifyEffectiveClosesCase(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := completedCAPACase(t, svc)

	c, err := svc.RequestVerification(context.Background(), c.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerificationPending, c.Status)

	c, err = svc.Verify(context.Background(), c.ID, &model.VerifyRequest{
		EffectivenessRating: model.RatingEffective,
		AfterEvidence:       []string{"leak-test.pdf"},
	}, "auditor")
	require.NoError(t, err)

	assert.Equal(t, model.StatusClosed, c.Status)
	require.Len(t, c.Verifications, 1)
	assert.Equal(t, "auditor", c.Verifications[0].VerifiedBy)
	assert.Equal(t, "Verification Completed - Closed", c.Timeline[len(c.Timeline)-1].Action)
}

func TestVerifyNotEffectiveKeepsCaseOpen(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := completedCAPACase(t, svc)

	// Verifying straight from CAPA Completed is allowed.
	c, err := svc.Verify(context.Background(), c.ID, &model.VerifyRequest{
		EffectivenessRating: model.RatingNotEffective,
	}, "auditor")
	require.NoError(t, err)

	assert.Equal(t, model.StatusCAPACompleted, c.Status)
	require.Len(t, c.Verifications, 1)
	assert.Equal(t, "Verification Recorded", c.Timeline[len(c.Timeline)-1].Action)

	// A later attempt can still close the case.
	c, err = svc.Verify(context.Background(), c.ID, &model.VerifyRequest{
		EffectivenessRating: model.RatingEffective,
	}, "auditor")
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, c.Status)
	assert.Len(t, c.Verifications, 2)
}

func TestVerifyClosedCaseFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := completedCAPACase(t, svc)

	c, err := svc.Verify(context.Background(), c.ID, &model.VerifyRequest{
		EffectivenessRating: model.RatingEffective,
	}, "auditor")
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), c.ID, &model.VerifyRequest{
		EffectivenessRating: model.RatingEffective,
	}, "auditor")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidTransition))
}

func TestReopenReturnsToCAPAPhase(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := completedCAPACase(t, svc)

	c, err := svc.Verify(context.Background(), c.ID, &model.VerifyRequest{
		EffectivenessRating: model.RatingEffective,
	}, "auditor")
	require.NoError(t, err)
	require.Equal(t, model.StatusClosed, c.Status)

	c, err = svc.Reopen(context.Background(), c.ID, "manager")
	require.NoError(t, err)

	assert.Equal(t, model.StatusCAPAInProgress, c.Status)
	assert.Equal(t, "Reopened for additional CAPA", c.Timeline[len(c.Timeline)-1].Action)

	// A new action can be opened on the reopened case.
	_, err = svc.OpenCAPA(context.Background(), c.ID, &model.OpenCAPARequest{
		Type:    model.CAPATypeCorrective,
		Title:   "Follow-up repair",
		DueDate: fixedNow.Add(14 * 24 * time.Hour),
	}, "dana")
	require.NoError(t, err)
}

func TestDeleteDraftOnly(t *testing.T) {
	svc, _, _ := newTestService(t)

	draft := createDraft(t, svc, model.SeverityMinor)
	require.NoError(t, svc.DeleteDraft(context.Background(), draft.ID, "reporter"))
	_, err := svc.GetCase(context.Background(), draft.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	submitted := submittedCase(t, svc, model.SeverityMinor)
	err = svc.DeleteDraft(context.Background(), submitted.ID, "reporter")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidTransition))
}

func TestConcurrentWritersOneWins(t *testing.T) {
	svc, store, _ := newTestService(t)
	c := createDraft(t, svc, model.SeverityMinor)

	// A second writer commits between this writer's read and write; the
	// stale write must surface as CONFLICT.
	stale, err := store.Get(context.Background(), c.ID)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), c.ID, "reporter")
	require.NoError(t, err)

	stale.Title = "stale write"
	err = store.Update(context.Background(), stale)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
}

func TestFullLifecycleTimeline(t *testing.T) {
	svc, _, publisher := newTestService(t)
	ctx := context.Background()

	c := createDraft(t, svc, model.SeverityMinor)

	_, err := svc.Submit(ctx, c.ID, "reporter")
	require.NoError(t, err)
	_, err = svc.Validate(ctx, c.ID, &model.ValidateCaseRequest{}, "manager")
	require.NoError(t, err)
	r, err := svc.SaveRCA(ctx, c.ID, fiveWhysRequest(true, "a", "b"), "dana")
	require.NoError(t, err)
	_, err = svc.ApproveRCA(ctx, c.ID, r.ID, "manager")
	require.NoError(t, err)
	a, err := svc.OpenCAPA(ctx, c.ID, &model.OpenCAPARequest{
		Type:    model.CAPATypeCorrective,
		Title:   "Replace valve seal",
		DueDate: fixedNow.Add(7 * 24 * time.Hour),
	}, "dana")
	require.NoError(t, err)
	closeCAPA(t, svc, c.ID, a.ID)
	_, err = svc.CompleteCAPA(ctx, c.ID, "manager")
	require.NoError(t, err)
	_, err = svc.RequestVerification(ctx, c.ID, "manager")
	require.NoError(t, err)
	final, err := svc.Verify(ctx, c.ID, &model.VerifyRequest{
		EffectivenessRating: model.RatingEffective,
	}, "auditor")
	require.NoError(t, err)

	assert.Equal(t, model.StatusClosed, final.Status)

	want := []string{
		"Submitted",
		"Validated",
		"RCA Submitted",
		"RCA Approved",
		"CAPA Opened",
		"CAPA Completed",
		"Verification Requested",
		"Verification Completed - Closed",
	}
	require.Len(t, final.Timeline, len(want))
	for i, entry := range final.Timeline {
		assert.Equal(t, want[i], entry.Action)
		assert.Equal(t, i+1, entry.Seq)
	}

	assert.Len(t, publisher.events, len(want))

	// Reading the closed case again changes nothing.
	again, err := svc.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, final.Version, again.Version)
	assert.Len(t, again.Timeline, len(want))
}
