package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/healthtrack-api/internal/application/assessment"
	"github.com/healthtrack-api/internal/transport/http/middleware"
)

// ProfileHandler serves the aggregate profile view and the incremental sync
// endpoint the mobile clients poll.
type ProfileHandler struct {
	svc assessment.Service
}

func NewProfileHandler(svc assessment.Service) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

func (h *ProfileHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identityKey, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	stats, err := h.svc.Profile(r.Context(), identityKey, middleware.ClientMetaFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type syncRequest struct {
	Since     time.Time `json:"since"`
	FormTypes []string  `json:"types"`
}

func (h *ProfileHandler) Sync(w http.ResponseWriter, r *http.Request) {
	identityKey, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.Sync(r.Context(), identityKey, req.Since, req.FormTypes, middleware.ClientMetaFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
