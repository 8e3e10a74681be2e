package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
)

// submitRequest is the body of POST /tenants/{tenantID}/celebrations.
type submitRequest struct {
	ID       string                 `json:"id,omitempty"`
	DeviceID string                 `json:"device_id,omitempty"`
	Source   celebration.SourceKind `json:"source,omitempty"`
	Amount   *float64               `json:"amount"`
}

// handleSubmitCelebration asks the engine to play a celebration.
func (s *Server) handleSubmitCelebration(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Amount == nil {
		writeBadRequest(w, "amount is required")
		return
	}
	if body.Source == "" {
		body.Source = celebration.SourceManual
	}

	res, err := s.engine.Submit(r.Context(), celebration.Request{
		ID:       body.ID,
		TenantID: chi.URLParam(r, "tenantID"),
		DeviceID: body.DeviceID,
		Source:   body.Source,
		Amount:   *body.Amount,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCancelCelebration stops the device's celebration and restores it.
func (s *Server) handleCancelCelebration(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Cancel(chi.URLParam(r, "tenantID"), chi.URLParam(r, "deviceID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

// handleCelebrationStatus reports the device's state machine.
func (s *Server) handleCelebrationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(chi.URLParam(r, "tenantID"), chi.URLParam(r, "deviceID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleTestCommand sends one diagnostic command to the device.
func (s *Server) handleTestCommand(w http.ResponseWriter, r *http.Request) {
	var op celebration.TestOp
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	tenantID, deviceID := chi.URLParam(r, "tenantID"), chi.URLParam(r, "deviceID")
	if err := s.engine.TestCommand(r.Context(), tenantID, deviceID, op); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": "ok"})
}
