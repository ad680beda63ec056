package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-account-api/internal/domain"
)

// DataEnvelope wraps successful responses.
type DataEnvelope struct {
	Data interface{} `json:"data"`
}

// ErrorEnvelope wraps failed responses.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	Type    string `json:"type"`
}

// MessageEnvelope wraps acknowledgement responses.
type MessageEnvelope struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, DataEnvelope{Data: v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorEnvelope{Error: ErrorBody{Message: msg, Status: status, Type: "validation"}})
}

// httpError serializes a service error. Typed domain errors carry their own
// status and wire type; throttle errors additionally set Retry-After; anything
// else is a 500 with the detail withheld.
func httpError(w http.ResponseWriter, err error) {
	var te *domain.ThrottledError
	if errors.As(err, &te) {
		w.Header().Set("Retry-After", strconv.Itoa(int(te.RetryAfter.Seconds())+1))
		writeJSON(w, te.HTTPStatus(), ErrorEnvelope{Error: ErrorBody{
			Message: te.Error(),
			Status:  te.HTTPStatus(),
			Type:    te.HTTPType(),
		}})
		return
	}

	var de *domain.Error
	if errors.As(err, &de) {
		writeJSON(w, de.Status, ErrorEnvelope{Error: ErrorBody{
			Message: de.Message,
			Status:  de.Status,
			Type:    de.Type,
		}})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorEnvelope{Error: ErrorBody{
		Message: "Internal server error.",
		Status:  http.StatusInternalServerError,
		Type:    "internal",
	}})
}
