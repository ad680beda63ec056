package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-account-api/internal/application/auth"
	"github.com/go-account-api/internal/pkg/validate"
)

// OTPHandler handles one-time-code login endpoints.
type OTPHandler struct {
	svc auth.Service
}

func NewOTPHandler(svc auth.Service) *OTPHandler { return &OTPHandler{svc: svc} }

func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req auth.SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	ch, err := h.svc.SendOTP(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusOK, ch)
}

func (h *OTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.OTPLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.OTPLogin(r.Context(), req, clientMeta(r))
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}
