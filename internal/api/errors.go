package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
	"github.com/blakeyoung81/Curtain-Lights/internal/tenant"
	"github.com/blakeyoung81/Curtain-Lights/internal/trigger"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeDeviceFailure  = "device_failure"
	ErrCodeDeviceRejected = "device_rejected"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeUnavailable writes a 503 error response.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// domainErrors maps sentinel errors to responses, first match wins.
// Device errors are 502 because the fault lies with the vendor API.
var domainErrors = []struct {
	match   func(error) bool
	status  int
	code    string
	message string // empty means err.Error()
}{
	{is(celebration.ErrInvalidRequest, celebration.ErrInvalidTestOp, trigger.ErrInvalidPush), http.StatusBadRequest, ErrCodeValidation, ""},
	{is(tenant.ErrUnknownTenant, tenant.ErrUnknownDevice), http.StatusNotFound, ErrCodeNotFound, ""},
	{is(celebration.ErrClosed), http.StatusServiceUnavailable, ErrCodeUnavailable, "celebration engine is shutting down"},
	{is(govee.ErrInvalidArgument, govee.ErrUnknownPattern), http.StatusUnprocessableEntity, ErrCodeValidation, ""},
	{govee.IsPermanent, http.StatusBadGateway, ErrCodeDeviceRejected, ""},
	{govee.IsTransient, http.StatusBadGateway, ErrCodeDeviceFailure, ""},
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// writeDomainError renders err using domainErrors. Anything unrecognised is
// a 500 without detail.
func writeDomainError(w http.ResponseWriter, err error) {
	for _, m := range domainErrors {
		if !m.match(err) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = err.Error()
		}
		writeError(w, m.status, m.code, msg)
		return
	}
	writeInternalError(w, "internal server error")
}
