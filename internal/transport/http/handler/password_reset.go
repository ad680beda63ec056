package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-account-api/internal/application/auth"
	"github.com/go-account-api/internal/pkg/validate"
)

// PasswordResetHandler handles the reset-by-mail flow.
type PasswordResetHandler struct {
	svc auth.Service
}

func NewPasswordResetHandler(svc auth.Service) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc}
}

func (h *PasswordResetHandler) Request(w http.ResponseWriter, r *http.Request) {
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
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		httpError(w, err)
		return
	}
	// Same acknowledgement whether or not the address exists.
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "reset email sent"})
}

func (h *PasswordResetHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.UpdatePassword(r.Context(), req.Token, req.Password, clientMeta(r))
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}
