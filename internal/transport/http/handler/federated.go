package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-account-api/internal/application/auth"
	"github.com/go-account-api/internal/domain"
	"github.com/go-account-api/internal/pkg/validate"
	"github.com/go-account-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// FederatedHandler handles Google and Apple identity endpoints. The provider
// is a URL segment so both share one handler.
type FederatedHandler struct {
	svc auth.Service
}

func NewFederatedHandler(svc auth.Service) *FederatedHandler { return &FederatedHandler{svc: svc} }

func providerKind(r *http.Request) (domain.AuthenticatorKind, bool) {
	switch chi.URLParam(r, "provider") {
	case "google":
		return domain.KindGoogle, true
	case "apple":
		return domain.KindApple, true
	}
	return "", false
}

func (h *FederatedHandler) Login(w http.ResponseWriter, r *http.Request) {
	kind, ok := providerKind(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	var req struct {
		Token string `json:"token" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.FederatedLogin(r.Context(), kind, req.Token, clientMeta(r))
	if err != nil {
		httpError(w, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == "signup" {
		status = http.StatusCreated
	}
	writeData(w, status, res)
}

func (h *FederatedHandler) Enable(w http.ResponseWriter, r *http.Request) {
	kind, ok := providerKind(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	u, okU := middleware.UserFromContext(r.Context())
	if !okU {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Token string `json:"token" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.EnableFederated(r.Context(), u.UserID, kind, req.Token); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "provider linked"})
}

func (h *FederatedHandler) Disable(w http.ResponseWriter, r *http.Request) {
	kind, ok := providerKind(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	u, okU := middleware.UserFromContext(r.Context())
	if !okU {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.DisableFederated(r.Context(), u.UserID, kind); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "provider unlinked"})
}
