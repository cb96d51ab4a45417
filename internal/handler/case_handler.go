// Package handler provides HTTP handlers for non-compliance case management.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ehs-platform/services/noncompliance/internal/lifecycle"
	"github.com/ehs-platform/services/noncompliance/internal/model"
	apperrors "github.com/ehs-platform/services/noncompliance/pkg/errors"
)

// CaseHandler handles HTTP requests for the case lifecycle.
type CaseHandler struct {
	service *lifecycle.Service
}

// NewCaseHandler creates a new case handler.
func NewCaseHandler(service *lifecycle.Service) *CaseHandler {
	return &CaseHandler{service: service}
}

// RegisterRoutes registers case lifecycle routes.
func (h *CaseHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/cases", h.CreateCase).Methods("POST")
	r.HandleFunc("/cases", h.ListCases).Methods("GET")
	r.HandleFunc("/cases/{id}", h.GetCase).Methods("GET")
	r.HandleFunc("/cases/{id}", h.DeleteDraft).Methods("DELETE")
	r.HandleFunc("/cases/{id}/timeline", h.GetTimeline).Methods("GET")

	r.HandleFunc("/cases/{id}/submit", h.Submit).Methods("POST")
	r.HandleFunc("/cases/{id}/validate", h.Validate).Methods("POST")
	r.HandleFunc("/cases/{id}/reject", h.Reject).Methods("POST")

	r.HandleFunc("/cases/{id}/rca", h.SaveRCA).Methods("POST")
	r.HandleFunc("/cases/{id}/rca/{rcaId}/approve", h.ApproveRCA).Methods("POST")
	r.HandleFunc("/cases/{id}/rca/{rcaId}/reject", h.RejectRCA).Methods("POST")

	r.HandleFunc("/cases/{id}/capa", h.OpenCAPA).Methods("POST")
	r.HandleFunc("/cases/{id}/capa", h.ListCAPAs).Methods("GET")
	r.HandleFunc("/cases/{id}/capa/{capaId}/advance", h.AdvanceCAPA).Methods("POST")
	r.HandleFunc("/cases/{id}/capa/{capaId}/close", h.CloseCAPA).Methods("POST")
	r.HandleFunc("/cases/{id}/complete-capa", h.CompleteCAPA).Methods("POST")

	r.HandleFunc("/cases/{id}/request-verification", h.RequestVerification).Methods("POST")
	r.HandleFunc("/cases/{id}/verify", h.Verify).Methods("POST")
	r.HandleFunc("/cases/{id}/reopen", h.Reopen).Methods("POST")
}

// CreateCase creates a new draft case.
func (h *CaseHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	c, err := h.service.CreateCase(r.Context(), &req, actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, c)
}

// GetCase retrieves a case by ID.
func (h *CaseHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCase(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

// DeleteDraft deletes a draft case.
func (h *CaseHandler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDraft(r.Context(), mux.Vars(r)["id"], actorFrom(r)); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetTimeline returns the case's audit timeline.
func (h *CaseHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCase(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c.Timeline)
}

// ListCases retrieves cases based on filter criteria.
func (h *CaseHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	filter := &model.CaseFilter{}
	query := r.URL.Query()

	if statuses := query["status"]; len(statuses) > 0 {
		filter.Status = make([]model.CaseStatus, len(statuses))
		for i, s := range statuses {
			filter.Status[i] = model.CaseStatus(s)
		}
	}

	if severities := query["severity"]; len(severities) > 0 {
		filter.Severity = make([]model.Severity, len(severities))
		for i, s := range severities {
			filter.Severity[i] = model.Severity(s)
		}
	}

	if category := query.Get("category"); category != "" {
		filter.Category = category
	}
	if investigator := query.Get("investigator"); investigator != "" {
		filter.Investigator = investigator
	}
	if search := query.Get("search"); search != "" {
		filter.Search = search
	}

	if limit := query.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	if offset := query.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			filter.Offset = n
		}
	}

	result, err := h.service.ListCases(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// Submit submits a draft case for review.
func (h *CaseHandler) Submit(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Submit(r.Context(), mux.Vars(r)["id"], actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

// Validate accepts a submitted case, optionally adjusting classification.
func (h *CaseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req model.ValidateCaseRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, apperrors.BadRequest("invalid request body"))
			return
		}
	}

	c, err := h.service.Validate(r.Context(), mux.Vars(r)["id"], &req, actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject returns a submitted case to its reporter.
func (h *CaseHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	c, err := h.service.Reject(r.Context(), mux.Vars(r)["id"], req.Reason, actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

// SaveRCA saves or submits a root-cause analysis.
func (h *CaseHandler) SaveRCA(w http.ResponseWriter, r *http.Request) {
	var req model.SaveRCARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	rca, err := h.service.SaveRCA(r.Context(), mux.Vars(r)["id"], &req, actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rca)
}

// ApproveRCA approves a submitted analysis.
func (h *CaseHandler) ApproveRCA(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	c, err := h.service.ApproveRCA(r.Context(), vars["id"], vars["rcaId"], actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

// RejectRCA sends a submitted analysis back for rework.
func (h *CaseHandler) RejectRCA(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, apperrors.BadRequest("invalid request body"))
			return
		}
	}

	vars := mux.Vars(r)
	c, err := h.service.RejectRCA(r.Context(), vars["id"], vars["rcaId"], req.Reason, actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

// OpenCAPA creates a corrective or preventive action on the case.
func (h *CaseHandler) OpenCAPA(w http.ResponseWriter, r *http.Request) {
	var req model.OpenCAPARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	a, err := h.service.OpenCAPA(r.Context(), mux.Vars(r)["id"], &req, actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, a)
}

// ListCAPAs returns the case's actions with overdue flags.
func (h *CaseHandler) ListCAPAs(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListCAPAs(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, views)
}

type advanceCAPARequest struct {
	Status model.CAPAStatus `json:"status"`
}

// AdvanceCAPA moves an action one step forward.
func (h *CaseHandler) AdvanceCAPA(w http.ResponseWriter, r *http.Request) {
	var req advanceCAPARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	vars := mux.Vars(r)
	a, err := h.service.AdvanceCAPA(r.Context(), vars["id"], vars["capaId"], req.Status, actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, a)
}

// CloseCAPA closes an action awaiting verification.
func (h *CaseHandler) CloseCAPA(w http.ResponseWriter, r *http.Request) {
	var req model.CloseCAPARequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, apperrors.BadRequest("invalid request body"))
			return
		}
	}

	vars := mux.Vars(r)
	a, err := h.service.CloseCAPA(r.Context(), vars["id"], vars["capaId"], &req, actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, a)
}

// CompleteCAPA closes the CAPA phase once every action is closed.
func (h *CaseHandler) CompleteCAPA(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.CompleteCAPA(r.Context(), mux.Vars(r)["id"], actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

// RequestVerification queues the case for an effectiveness check.
func (h *CaseHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.RequestVerification(r.Context(), mux.Vars(r)["id"], actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

// Verify records a verification attempt.
func (h *CaseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	c, err := h.service.Verify(r.Context(), mux.Vars(r)["id"], &req, actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

// Reopen returns the case to the CAPA phase.
func (h *CaseHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Reopen(r.Context(), mux.Vars(r)["id"], actorFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

// actorFrom extracts the acting user from the request. In production the
// auth middleware sets X-User-ID.
func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-User-ID"); actor != "" {
		return actor
	}
	return "system"
}

func (h *CaseHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *CaseHandler) respondError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal("internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.GetHTTPStatus(err))
	w.Write(appErr.ToJSON())
}
