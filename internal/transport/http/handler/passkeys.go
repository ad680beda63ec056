package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-account-api/internal/application/auth"
	"github.com/go-account-api/internal/pkg/validate"
	"github.com/go-account-api/internal/transport/http/middleware"
)

// PasskeyHandler handles WebAuthn registration and login ceremonies. Each
// ceremony spans two requests; the signed challenge token issued by the begin
// call must come back with the finish call.
type PasskeyHandler struct {
	svc auth.Service
}

func NewPasskeyHandler(svc auth.Service) *PasskeyHandler { return &PasskeyHandler{svc: svc} }

func (h *PasskeyHandler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ch, err := h.svc.BeginPasskeyRegistration(r.Context(), u.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusOK, ch)
}

func (h *PasskeyHandler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Token    string          `json:"token" validate:"required"`
		Response json.RawMessage `json:"response" validate:"required"`
		Name     string          `json:"name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.FinishPasskeyRegistration(r.Context(), u.UserID, req.Token, req.Response, req.Name); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageEnvelope{Message: "passkey registered"})
}

func (h *PasskeyHandler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	ch, err := h.svc.BeginPasskeyLogin(r.Context(), req.Email)
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusOK, ch)
}

func (h *PasskeyHandler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string          `json:"token" validate:"required"`
		Response json.RawMessage `json:"response" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.FinishPasskeyLogin(r.Context(), req.Token, req.Response, clientMeta(r))
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *PasskeyHandler) Disable(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.DisablePasskeys(r.Context(), u.UserID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "passkeys removed"})
}
