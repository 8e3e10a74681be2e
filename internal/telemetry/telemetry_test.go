package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/influxdb"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/metrics"
)

// ─── Mock Dependencies ───────────────────────────────────────────────

type recordingWriter struct {
	commands     []influxdb.CommandSample
	celebrations []influxdb.CelebrationSample
}

func (w *recordingWriter) WriteCommand(s influxdb.CommandSample)         { w.commands = append(w.commands, s) }
func (w *recordingWriter) WriteCelebration(s influxdb.CelebrationSample) { w.celebrations = append(w.celebrations, s) }

type recordingPublisher struct {
	mu        sync.Mutex
	published map[string][]celebration.Status
	fail      bool
}

func (p *recordingPublisher) PublishJSON(topic string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	if p.published == nil {
		p.published = make(map[string][]celebration.Status)
	}
	p.published[topic] = append(p.published[topic], v.(celebration.Status))
	return nil
}

func (p *recordingPublisher) last(topic string) (celebration.Status, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.published[topic]
	if len(list) == 0 {
		return celebration.Status{}, 0
	}
	return list[len(list)-1], len(list)
}

// counterValue sums every series of the named family on the registry.
func counterValue(registry *prometheus.Registry, name string) float64 {
	families, err := registry.Gather()
	if err != nil {
		return -1
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

func topicOf(tenantID, deviceID string) string {
	return fmt.Sprintf("curtainlights/celebration/%s/%s/status", tenantID, deviceID)
}

// ─── Tests ───────────────────────────────────────────────────────────

func TestMetricsObserver(t *testing.T) {
	Convey("Given a metrics observer over a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := metrics.NewManager(metrics.WithRegistry(registry))
		obs := NewMetricsObserver(m)
		tier := celebration.Tier{Name: "premium"}

		Convey("submissions are counted by tier and outcome", func() {
			obs.Submitted(celebration.Request{}, tier, celebration.Superseded)
			obs.Submitted(celebration.Request{}, tier, celebration.Superseded)
			So(counterValue(registry, "curtainlights_celebration_submissions_total"), ShouldEqual, 2)
		})

		Convey("a failed restore increments the restore failure counter", func() {
			obs.Finished(celebration.Report{
				Tier: tier, Outcome: celebration.FinishCompleted,
				Err: fmt.Errorf("%w: boom", celebration.ErrRestoreFailed),
			})
			obs.Finished(celebration.Report{Tier: tier, Outcome: celebration.FinishSuperseded})
			So(counterValue(registry, "curtainlights_celebration_restore_failures_total"), ShouldEqual, 1)
			So(counterValue(registry, "curtainlights_celebration_finished_total"), ShouldEqual, 2)
		})

		Convey("transitions move the per-state gauge", func() {
			obs.Transitioned(celebration.Transition{From: celebration.StateIdle, To: celebration.StateCapturing})
			obs.Transitioned(celebration.Transition{From: celebration.StateCapturing, To: celebration.StatePlaying})
			So(counterValue(registry, "curtainlights_celebration_devices"), ShouldEqual, 1)
		})
	})
}

func TestInfluxObserverAndCommandHook(t *testing.T) {
	Convey("Given a recording sample writer", t, func() {
		w := &recordingWriter{}

		Convey("a finished celebration becomes one celebration sample", func() {
			NewInfluxObserver(w).Finished(celebration.Report{
				Binding:  celebration.Binding{TenantID: "acme", DeviceID: "curtain01"},
				Request:  celebration.Request{Amount: 120},
				Tier:     celebration.Tier{Name: "premium"},
				Outcome:  celebration.FinishCompleted,
				Played:   30 * time.Second,
				Restored: true,
			})
			So(w.celebrations, ShouldHaveLength, 1)
			s := w.celebrations[0]
			So(s.TenantID, ShouldEqual, "acme")
			So(s.Tier, ShouldEqual, "premium")
			So(s.Amount, ShouldEqual, 120)
			So(s.Restored, ShouldBeTrue)
		})

		Convey("the command hook classifies outcomes", func() {
			hook := CommandHook(nil, w)
			target := govee.Target{DeviceID: "curtain01", Model: "H70B1"}
			hook(govee.CommandResult{Target: target, Command: "color", Attempts: 1})
			hook(govee.CommandResult{Target: target, Command: "turn", Attempts: 3, Err: govee.ErrTransient})

			So(w.commands, ShouldHaveLength, 2)
			So(w.commands[0].Outcome, ShouldEqual, "ok")
			So(w.commands[1].Outcome, ShouldEqual, "transient")
			So(w.commands[1].Attempts, ShouldEqual, 3)
			So(w.commands[1].Model, ShouldEqual, "H70B1")
		})
	})
}

func TestStatusPublisher(t *testing.T) {
	Convey("Given a running status publisher", t, func() {
		pub := &recordingPublisher{}
		sp := NewStatusPublisher(pub, topicOf, nopLogger{})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			sp.Run(ctx)
			close(done)
		}()
		topic := topicOf("acme", "curtain01")

		Convey("the latest status of a device is published retained", func() {
			sp.Transitioned(celebration.Transition{Status: celebration.Status{TenantID: "acme", DeviceID: "curtain01", State: celebration.StatePlaying}})
			sp.Transitioned(celebration.Transition{Status: celebration.Status{TenantID: "acme", DeviceID: "curtain01", State: celebration.StateIdle}})

			deadline := time.Now().Add(2 * time.Second)
			for {
				if st, _ := pub.last(topic); st.State == celebration.StateIdle || time.Now().After(deadline) {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			st, _ := pub.last(topic)
			So(st.State, ShouldEqual, celebration.StateIdle)
		})

		Convey("pending statuses are flushed on shutdown", func() {
			pub.mu.Lock()
			pub.fail = true
			pub.mu.Unlock()
			sp.Transitioned(celebration.Transition{Status: celebration.Status{TenantID: "acme", DeviceID: "curtain01", State: celebration.StateRestoring}})
			time.Sleep(20 * time.Millisecond)

			pub.mu.Lock()
			pub.fail = false
			pub.mu.Unlock()
			sp.Transitioned(celebration.Transition{Status: celebration.Status{TenantID: "acme", DeviceID: "curtain01", State: celebration.StateIdle}})
			cancel()
			<-done

			st, n := pub.last(topic)
			So(n, ShouldBeGreaterThanOrEqualTo, 1)
			So(st.State, ShouldEqual, celebration.StateIdle)
		})

		Reset(func() {
			cancel()
			<-done
		})
	})
}
