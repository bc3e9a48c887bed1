package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/healthtrack-api/internal/application/assessment"
	"github.com/healthtrack-api/internal/domain"
	"github.com/healthtrack-api/internal/transport/http/middleware"
)

// AssessmentHandler handles the identity-scoped assessment endpoints.
type AssessmentHandler struct {
	svc assessment.Service
}

func NewAssessmentHandler(svc assessment.Service) *AssessmentHandler {
	return &AssessmentHandler{svc: svc}
}

func (h *AssessmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	identityKey, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.CreateAssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := h.svc.Create(r.Context(), identityKey, &req, middleware.ClientMetaFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AssessmentHandler) List(w http.ResponseWriter, r *http.Request) {
	identityKey, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	page, err := h.svc.List(r.Context(), identityKey, q.Get("type"), int32(limit), q.Get("cursor"), middleware.ClientMetaFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *AssessmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	identityKey, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	a, err := h.svc.Get(r.Context(), identityKey, chi.URLParam(r, "id"), middleware.ClientMetaFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AssessmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identityKey, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Delete(r.Context(), identityKey, chi.URLParam(r, "id"), middleware.ClientMetaFrom(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "deleted"})
}
