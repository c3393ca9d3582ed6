// Package http exposes the registration and grading use cases over JSON
// endpoints plus a websocket feed for teacher dashboards.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"contest-variant-service/internal/app"
	"contest-variant-service/internal/domain"
)

// CredentialVerifier checks a presented credential and returns the
// session id and claims it carries.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (string, map[string]string, error)
}

// Handler serves the JSON API.
type Handler struct {
	service  *app.ContestService
	verifier CredentialVerifier
}

func NewHandler(service *app.ContestService, verifier CredentialVerifier) *Handler {
	return &Handler{service: service, verifier: verifier}
}

// Register mounts all routes on a mux.
func (h *Handler) Register(mux *http.ServeMux, ws *WSHandler) {
	mux.HandleFunc("POST /api/register", h.handleRegister)
	mux.HandleFunc("POST /api/students/{id}/answers", h.handleSubmitAnswers)
	mux.HandleFunc("POST /api/restores/{id}/approve", h.handleApprove)
	mux.HandleFunc("POST /api/students/{id}/reject-restores", h.handleReject)
	mux.HandleFunc("GET /api/participations/{id}/restores", h.handlePendingRestores)
	mux.HandleFunc("POST /api/participations/{id}/recompute", h.handleRecompute)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if ws != nil {
		mux.HandleFunc("GET /ws/monitor", ws.ServeWS)
	}
}

type registerRequest struct {
	ContestID string                 `json:"contestId"`
	Token     string                 `json:"token"`
	Identity  []domain.IdentityField `json:"identity"`
}

type registerResponse struct {
	State        app.RegistrationState `json:"state"`
	StudentID    string                `json:"studentId"`
	Variant      string                `json:"variant,omitempty"`
	Credential   string                `json:"credential,omitempty"`
	RequestID    string                `json:"requestId,omitempty"`
	ApprovalCode string                `json:"approvalCode,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.service.Register(r.Context(), req.ContestID, req.Token, req.Identity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := registerResponse{
		State:      out.State,
		StudentID:  out.Student.ID,
		Variant:    out.Student.Variant,
		Credential: out.Credential,
	}
	if out.Restore != nil {
		resp.RequestID = out.Restore.ID
		resp.ApprovalCode = out.Restore.ApprovalCode
	}
	writeJSON(w, http.StatusOK, resp)
}

type answersRequest struct {
	Answers map[int]domain.Answer `json:"answers"`
}

type answersResponse struct {
	Total      *int        `json:"total"`
	PerProblem map[int]int `json:"perProblem"`
}

func (h *Handler) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if !h.authorizeStudent(w, r, studentID) {
		return
	}
	var req answersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.service.SubmitAnswers(r.Context(), studentID, req.Answers)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answersResponse{Total: result.Total, PerProblem: result.PerProblem})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	cred, err := h.service.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"credential": cred})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reject(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePendingRestores(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.PendingRestores(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingPayload(pending))
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	updated, err := h.service.RecomputeScores(r.Context(), r.PathValue("id"), 4)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// authorizeStudent checks the bearer credential: it must verify, claim
// this student, and name the student's currently active session. A
// device displaced by an approved restore fails the session check even
// before its credential lands on the revocation list.
func (h *Handler) authorizeStudent(w http.ResponseWriter, r *http.Request, studentID string) bool {
	credential, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credential")
		return false
	}
	sessionID, claims, err := h.verifier.Verify(r.Context(), credential)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credential")
		return false
	}
	if claims["studentId"] != studentID {
		writeError(w, http.StatusForbidden, "credential does not match student")
		return false
	}
	st, err := h.service.Student(r.Context(), studentID)
	if err != nil {
		writeDomainError(w, err)
		return false
	}
	if st.SessionID != sessionID {
		writeError(w, http.StatusUnauthorized, "session displaced")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

type restorePayload struct {
	ID           string `json:"id"`
	StudentID    string `json:"studentId"`
	ApprovalCode string `json:"approvalCode"`
}

func pendingPayload(reqs []domain.RestoreRequest) []restorePayload {
	out := make([]restorePayload, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, restorePayload{ID: req.ID, StudentID: req.StudentID, ApprovalCode: req.ApprovalCode})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrTokenContestMismatch):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrDuplicateStudent):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStudentNotFound),
		errors.Is(err, domain.ErrRestoreNotFound),
		errors.Is(err, domain.ErrVariantNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRestoreExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
