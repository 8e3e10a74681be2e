package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
)

// deviceView is one entry of GET /tenants/{tenantID}/devices.
type deviceView struct {
	DeviceID     string   `json:"device_id"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
	Controllable bool     `json:"controllable"`
	SupportCmds  []string `json:"support_cmds"`
}

// handlePayment accepts a payment provider event or a pre-verified push
// event and submits it for the tenant.
func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	if s.push == nil {
		writeUnavailable(w, "push intake is not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	res, err := s.push.ReceiveRaw(r.Context(), chi.URLParam(r, "tenantID"), body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListDevices lists the vendor devices bound to the tenant.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeUnavailable(w, "device listing is not configured")
		return
	}

	t, err := s.tenants.Get(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	devices, err := s.devices.ListDevices(r.Context())
	if err != nil {
		s.logger.Warn("listing devices failed", "tenant_id", t.ID, "error", err)
		writeDomainError(w, err)
		return
	}

	views := make([]deviceView, 0, 1)
	for _, d := range devices {
		if d.Target() != t.Device {
			continue
		}
		views = append(views, deviceView{
			DeviceID:     d.DeviceID,
			Model:        d.Model,
			Name:         d.Name,
			Controllable: d.Controllable,
			SupportCmds:  d.SupportCmds,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleListPatterns returns the built-in pattern table.
func (s *Server) handleListPatterns(w http.ResponseWriter, _ *http.Request) {
	patterns := govee.Patterns()
	writeJSON(w, http.StatusOK, map[string]any{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// handleSchedulerRun asks the scheduler for an immediate poll cycle. It
// returns before the poll completes.
func (s *Server) handleSchedulerRun(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		writeUnavailable(w, "scheduler is not running")
		return
	}
	s.scheduler.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "triggered"})
}
