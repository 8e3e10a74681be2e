package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDeviceCommands = "device_commands"
	MeasurementCelebrations   = "celebrations"
)

// CommandSample describes one vendor command after retries settled.
type CommandSample struct {
	DeviceID string
	Model    string
	Command  string // turn, color, brightness
	Outcome  string // ok, transient, permanent, rate_limited
	Attempts int
	Latency  time.Duration
	At       time.Time
}

// CelebrationSample describes one celebration leaving the Playing state.
type CelebrationSample struct {
	TenantID string
	DeviceID string
	Tier     string
	Outcome  string // completed, superseded, cancelled
	Restored bool
	Played   time.Duration
	Amount   float64
	At       time.Time
}

// WriteCommand records a device command.
func (c *Client) WriteCommand(s CommandSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(commandPoint(s))
}

// WriteCelebration records the end of a celebration.
//
// Example:
//
//	client.WriteCelebration(influxdb.CelebrationSample{
//	    TenantID: "acme", DeviceID: "H6199-01", Tier: "premium",
//	    Outcome: "completed", Restored: true, Played: 30 * time.Second,
//	})
func (c *Client) WriteCelebration(s CelebrationSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(celebrationPoint(s))
}

func commandPoint(s CommandSample) *write.Point {
	return write.NewPoint(
		MeasurementDeviceCommands,
		map[string]string{
			"device_id": s.DeviceID,
			"model":     s.Model,
			"command":   s.Command,
			"outcome":   s.Outcome,
		},
		map[string]interface{}{
			"attempts":   int64(s.Attempts),
			"latency_ms": float64(s.Latency) / float64(time.Millisecond),
		},
		timestampOrNow(s.At),
	)
}

func celebrationPoint(s CelebrationSample) *write.Point {
	return write.NewPoint(
		MeasurementCelebrations,
		map[string]string{
			"tenant_id": s.TenantID,
			"device_id": s.DeviceID,
			"tier":      s.Tier,
			"outcome":   s.Outcome,
		},
		map[string]interface{}{
			"played_s": s.Played.Seconds(),
			"restored": s.Restored,
			"amount":   s.Amount,
		},
		timestampOrNow(s.At),
	)
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
