package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/healthtrack-api/internal/application/auth"
	"github.com/healthtrack-api/internal/pkg/validate"
	"github.com/healthtrack-api/internal/transport/http/middleware"
)

// AuthHandler handles the passwordless login endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

type requestCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "a valid email address is required")
		return
	}
	if err := h.svc.RequestCode(r.Context(), req.Email, middleware.ClientMetaFrom(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
}

func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "email and a 6-digit code are required")
		return
	}
	result, err := h.svc.VerifyCode(r.Context(), req.Email, req.Code, middleware.ClientMetaFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenEnvelope(result))
}

// Refresh exchanges the refresh token, presented as the bearer credential,
// for a new pair. The previous pair stops working immediately.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	result, err := h.svc.Refresh(r.Context(), token, middleware.ClientMetaFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenEnvelope(result))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identityKey, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), identityKey, middleware.ClientMetaFrom(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

// Activity returns the caller's recent audit events, newest first.
func (h *AuthHandler) Activity(w http.ResponseWriter, r *http.Request) {
	identityKey, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var limit int32
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = int32(n)
	}
	events, err := h.svc.Activity(r.Context(), identityKey, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func tokenEnvelope(result *auth.LoginResult) TokenEnvelope {
	return TokenEnvelope{
		AccessToken:      result.Pair.AccessToken,
		RefreshToken:     result.Pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  result.Pair.AccessExpiresAt.Unix(),
		RefreshExpiresAt: result.Pair.RefreshExpiresAt.Unix(),
	}
}
