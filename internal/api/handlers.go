package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studieo-app/studieo-api/internal/application"
	"github.com/studieo-app/studieo-api/internal/models"
)

// maxDocumentSize caps the uploaded design document at 10 MiB
const maxDocumentSize = 10 << 20

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondDomainError maps lifecycle errors to HTTP responses. Anything
// not recognized is a 500 with the detail kept out of the body.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, application.ErrNotAuthorized),
		errors.Is(err, application.ErrNotStudent),
		errors.Is(err, application.ErrNotTeamLead):
		respondError(w, http.StatusForbidden, "not_authorized", err.Error())
	case errors.Is(err, application.ErrApplicationNotFound),
		errors.Is(err, application.ErrProjectNotFound),
		errors.Is(err, application.ErrInviteNotFound),
		errors.Is(err, application.ErrDocumentMissing):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, application.ErrAlreadyApplied),
		errors.Is(err, application.ErrNotPending),
		errors.Is(err, application.ErrNotSubmitted),
		errors.Is(err, application.ErrMembersNotConfirmed),
		errors.Is(err, application.ErrInviteAlreadyAnswered):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, application.ErrLimitExceeded):
		respondError(w, http.StatusUnprocessableEntity, "limit_exceeded", err.Error())
	case errors.Is(err, application.ErrTeamTooSmall),
		errors.Is(err, application.ErrTeamTooLarge),
		errors.Is(err, application.ErrDocumentRequired):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		slog.Error("unhandled application error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Application handlers

// handleCreateApplication accepts a multipart form: a "payload" part with
// the JSON request and a "document" part with the design document bytes
func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form")
		return
	}

	var req models.CreateApplicationRequest
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid payload JSON")
		return
	}

	if req.ProjectID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "project_id is required")
		return
	}

	file, _, err := r.FormFile("document")
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "document is required")
		return
	}
	defer file.Close()

	req.Document, err = io.ReadAll(io.LimitReader(file, maxDocumentSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read document")
		return
	}

	app, err := s.manager.Create(r.Context(), PrincipalFromContext(r.Context()), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, app)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "application id is required")
		return
	}

	app, err := s.manager.Get(r.Context(), PrincipalFromContext(r.Context()), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "application id is required")
		return
	}

	result, err := s.manager.Submit(r.Context(), PrincipalFromContext(r.Context()), id, false)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAcceptApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "application id is required")
		return
	}

	if err := s.manager.Accept(r.Context(), PrincipalFromContext(r.Context()), id); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "application accepted",
	})
}

func (s *Server) handleRejectApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "application id is required")
		return
	}

	if err := s.manager.Reject(r.Context(), PrincipalFromContext(r.Context()), id); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "application rejected",
	})
}

func (s *Server) handleWithdrawApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "application id is required")
		return
	}

	if err := s.manager.Withdraw(r.Context(), PrincipalFromContext(r.Context()), id); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "application withdrawn",
	})
}

func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "application id is required")
		return
	}

	if err := s.manager.Delete(r.Context(), PrincipalFromContext(r.Context()), id); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "application deleted",
	})
}

// handleDesignDocURL returns a short-lived signed link. Clients must not
// cache it.
func (s *Server) handleDesignDocURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "application id is required")
		return
	}

	url, err := s.manager.DesignDocURL(r.Context(), PrincipalFromContext(r.Context()), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, map[string]string{
		"url": url,
	})
}

type inviteResponseRequest struct {
	Accept bool `json:"accept"`
}

func (s *Server) handleInviteResponse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "application id is required")
		return
	}

	var req inviteResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := s.manager.RespondToInvite(r.Context(), PrincipalFromContext(r.Context()), id, req.Accept)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if result == nil {
		// Team still forming, nothing submitted yet
		respondJSON(w, http.StatusOK, map[string]string{
			"message": "invite response recorded",
		})
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleCheckLimits reports the caller's eligibility snapshot. Advisory
// only: create re-checks server-side.
func (s *Server) handleCheckLimits(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	studentID := ""
	if principal != nil {
		studentID = principal.ID
	}

	limits, err := s.manager.CheckLimits(r.Context(), studentID)
	if err != nil {
		slog.Error("failed to check limits", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to check limits")
		return
	}

	respondJSON(w, http.StatusOK, limits)
}
