package telemetry

import (
	"errors"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/influxdb"
)

// CelebrationMetrics is the Prometheus surface the engine feeds.
// *metrics.Manager satisfies it.
type CelebrationMetrics interface {
	RecordSubmission(tier, result string)
	RecordFinished(tier, outcome string)
	RecordTransition(from, to string)
	IncRestoreFailure()
}

// CommandMetrics records settled vendor commands.
type CommandMetrics interface {
	RecordCommand(command, outcome string, latency time.Duration)
}

// SampleWriter persists samples to the time-series store.
// *influxdb.Client satisfies it.
type SampleWriter interface {
	WriteCommand(s influxdb.CommandSample)
	WriteCelebration(s influxdb.CelebrationSample)
}

// MetricsObserver mirrors engine events into Prometheus.
type MetricsObserver struct {
	m CelebrationMetrics
}

// NewMetricsObserver returns an observer feeding m.
func NewMetricsObserver(m CelebrationMetrics) *MetricsObserver {
	return &MetricsObserver{m: m}
}

// Submitted implements celebration.Observer.
func (o *MetricsObserver) Submitted(_ celebration.Request, tier celebration.Tier, outcome celebration.SubmitOutcome) {
	o.m.RecordSubmission(tier.Name, string(outcome))
}

// Transitioned implements celebration.Observer.
func (o *MetricsObserver) Transitioned(t celebration.Transition) {
	o.m.RecordTransition(string(t.From), string(t.To))
}

// Finished implements celebration.Observer.
func (o *MetricsObserver) Finished(r celebration.Report) {
	o.m.RecordFinished(r.Tier.Name, string(r.Outcome))
	if errors.Is(r.Err, celebration.ErrRestoreFailed) {
		o.m.IncRestoreFailure()
	}
}

// InfluxObserver writes one point per finished celebration.
type InfluxObserver struct {
	celebration.BaseObserver
	w SampleWriter
}

// NewInfluxObserver returns an observer writing to w.
func NewInfluxObserver(w SampleWriter) *InfluxObserver {
	return &InfluxObserver{w: w}
}

// Finished implements celebration.Observer.
func (o *InfluxObserver) Finished(r celebration.Report) {
	o.w.WriteCelebration(influxdb.CelebrationSample{
		TenantID: r.Binding.TenantID,
		DeviceID: r.Binding.DeviceID,
		Tier:     r.Tier.Name,
		Outcome:  string(r.Outcome),
		Restored: r.Restored,
		Played:   r.Played,
		Amount:   r.Request.Amount,
		At:       time.Now(),
	})
}

// CommandHook returns a govee command hook that feeds m and, when w is not
// nil, the time-series store.
func CommandHook(m CommandMetrics, w SampleWriter) func(govee.CommandResult) {
	return func(r govee.CommandResult) {
		outcome := r.Outcome()
		if m != nil {
			m.RecordCommand(r.Command, outcome, r.Latency)
		}
		if w != nil {
			w.WriteCommand(influxdb.CommandSample{
				DeviceID: r.Target.DeviceID,
				Model:    r.Target.Model,
				Command:  r.Command,
				Outcome:  outcome,
				Attempts: r.Attempts,
				Latency:  r.Latency,
				At:       time.Now(),
			})
		}
	}
}
