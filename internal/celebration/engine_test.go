package celebration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
	"github.com/blakeyoung81/Curtain-Lights/internal/limiter"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type deviceCall struct {
	Op    string
	Value any
}

// fakeDevice records every command and keeps a state cache like govee.Client.
type fakeDevice struct {
	mu    sync.Mutex
	calls []deviceCall
	state map[govee.Target]govee.DeviceState

	// fail, when set, decides whether a call errors.
	fail func(op string, value any) error
	// hold, when set, blocks matching calls until the channel is closed.
	hold     func(op string, value any) bool
	released chan struct{}
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		state:    make(map[govee.Target]govee.DeviceState),
		released: make(chan struct{}),
	}
}

func (d *fakeDevice) record(ctx context.Context, op string, value any) error {
	d.mu.Lock()
	d.calls = append(d.calls, deviceCall{Op: op, Value: value})
	fail, hold := d.fail, d.hold
	d.mu.Unlock()

	if hold != nil && hold(op, value) {
		select {
		case <-d.released:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		return fail(op, value)
	}
	return nil
}

func (d *fakeDevice) SetPower(ctx context.Context, _ govee.Target, p govee.Power) error {
	return d.record(ctx, "power", p)
}

func (d *fakeDevice) SetColor(ctx context.Context, _ govee.Target, c govee.Color) error {
	return d.record(ctx, "color", c)
}

func (d *fakeDevice) SetBrightness(ctx context.Context, _ govee.Target, percent int) error {
	return d.record(ctx, "brightness", percent)
}

func (d *fakeDevice) RunPattern(ctx context.Context, _ govee.Target, id int) error {
	return d.record(ctx, "pattern", id)
}

func (d *fakeDevice) State(t govee.Target) (govee.DeviceState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.state[t]
	return s, ok
}

func (d *fakeDevice) Remember(t govee.Target, s govee.DeviceState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state[t] = s
}

func (d *fakeDevice) Calls() []deviceCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]deviceCall(nil), d.calls...)
}

func (d *fakeDevice) count(op string, value any) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Op == op && c.Value == value {
			n++
		}
	}
	return n
}

// limitedDevice sends every command through a real limiter bucket, the way
// govee.Client does.
type limitedDevice struct {
	*fakeDevice
	bucket *limiter.Bucket
}

func (d limitedDevice) SetPower(ctx context.Context, t govee.Target, p govee.Power) error {
	if err := d.bucket.Acquire(ctx); err != nil {
		return err
	}
	return d.fakeDevice.SetPower(ctx, t, p)
}

func (d limitedDevice) SetColor(ctx context.Context, t govee.Target, c govee.Color) error {
	if err := d.bucket.Acquire(ctx); err != nil {
		return err
	}
	return d.fakeDevice.SetColor(ctx, t, c)
}

func (d limitedDevice) SetBrightness(ctx context.Context, t govee.Target, percent int) error {
	if err := d.bucket.Acquire(ctx); err != nil {
		return err
	}
	return d.fakeDevice.SetBrightness(ctx, t, percent)
}

func (d limitedDevice) RunPattern(ctx context.Context, t govee.Target, id int) error {
	if err := d.bucket.Acquire(ctx); err != nil {
		return err
	}
	return d.fakeDevice.RunPattern(ctx, t, id)
}

// fixedBudget always reports the same number of free commands.
type fixedBudget int

func (b fixedBudget) Available() int { return int(b) }

type fakeResolver struct{}

func (fakeResolver) Resolve(tenantID, deviceID string) (Binding, error) {
	if tenantID != "acme" {
		return Binding{}, fmt.Errorf("unknown tenant %q", tenantID)
	}
	if deviceID == "" {
		deviceID = "curtain"
	}
	return Binding{
		TenantID: tenantID,
		DeviceID: deviceID,
		Target:   govee.Target{DeviceID: "AA:BB:" + deviceID, Model: "H70B1"},
	}, nil
}

// recorder captures observer events.
type recorder struct {
	mu          sync.Mutex
	submitted   []SubmitOutcome
	transitions []Transition
	reports     []Report
}

func (r *recorder) Submitted(_ Request, _ Tier, o SubmitOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, o)
}

func (r *recorder) Transitioned(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recorder) Finished(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

func (r *recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}

// ─── Helpers ────────────────────────────────────────────────────────

var (
	red  = govee.Color{R: 255}
	blue = govee.Color{B: 255}
)

// testTiers are short versions of the default table.
func testTiers(t *testing.T) *TierTable {
	t.Helper()
	table, err := NewTierTable([]Tier{
		{
			Name: "low", Threshold: 0, Duration: 150 * time.Millisecond,
			Keyframes: []Keyframe{
				{Color: govee.Green, Brightness: 60, Hold: 50 * time.Millisecond},
				{Color: govee.White, Brightness: 60, Hold: 25 * time.Millisecond},
			},
		},
		{
			Name: "mid", Threshold: 50, Duration: 200 * time.Millisecond,
			Keyframes: []Keyframe{
				{Color: govee.Green, Brightness: 100, Hold: 50 * time.Millisecond},
				{Color: govee.White, Brightness: 100, Hold: 50 * time.Millisecond},
			},
		},
		{
			Name: "high", Threshold: 100, Duration: 300 * time.Millisecond,
			Keyframes: []Keyframe{
				{Color: blue, Brightness: 100, Hold: 50 * time.Millisecond},
				{Color: govee.White, Brightness: 100, Hold: 50 * time.Millisecond},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewTierTable() error = %v", err)
	}
	return table
}

var curtain = govee.Target{DeviceID: "AA:BB:curtain", Model: "H70B1"}

// redAt40 is the look the light has before any celebration.
var redAt40 = govee.DeviceState{Power: govee.PowerOn, Color: red, Brightness: 40}

func newTestEngine(t *testing.T, dev Device, rec *recorder, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithTiers(testTiers(t)), WithObserver(rec)}, opts...)
	e := NewEngine(Config{RestoreTimeout: time.Second}, dev, fakeResolver{}, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return e
}

func submit(t *testing.T, e *Engine, amount float64) SubmitResult {
	t.Helper()
	res, err := e.Submit(context.Background(), Request{TenantID: "acme", Source: SourcePayment, Amount: amount})
	if err != nil {
		t.Fatalf("Submit(%v) error = %v", amount, err)
	}
	return res
}

func waitForState(t *testing.T, e *Engine, want State) Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := e.Status("acme", "")
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if st.State == want {
			return st
		}
		time.Sleep(2 * time.Millisecond)
	}
	st, _ := e.Status("acme", "")
	t.Fatalf("state = %s, want %s", st.State, want)
	return st
}

func waitForReports(t *testing.T, rec *recorder, n int) []Report {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reports := rec.Reports(); len(reports) >= n {
			return reports
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("got %d reports, want %d", len(rec.Reports()), n)
	return nil
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestSubmit_PlaysAndRestores(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	res := submit(t, e, 25)
	if res.Outcome != Accepted {
		t.Fatalf("Outcome = %s, want accepted", res.Outcome)
	}
	if res.Tier != "low" || res.DeviceID != "curtain" || res.RequestID == "" {
		t.Errorf("SubmitResult = %+v", res)
	}

	reports := waitForReports(t, rec, 1)
	waitForState(t, e, StateIdle)

	r := reports[0]
	if r.Outcome != FinishCompleted || !r.Restored || r.Err != nil {
		t.Errorf("Report = %+v, want completed and restored", r)
	}
	if r.Played < 140*time.Millisecond || r.Played > 250*time.Millisecond {
		t.Errorf("Played = %v, want about 150ms", r.Played)
	}

	calls := dev.Calls()
	if dev.count("color", govee.Green) == 0 || dev.count("color", govee.White) == 0 {
		t.Errorf("keyframes not played: %+v", calls)
	}
	// Already on, so playback never touches power before the restore.
	if calls[0].Op == "power" {
		t.Errorf("first call = %+v, want no power-on for a lit device", calls[0])
	}

	tail := calls[len(calls)-3:]
	want := []deviceCall{{"power", govee.PowerOn}, {"color", red}, {"brightness", 40}}
	for i := range want {
		if tail[i] != want[i] {
			t.Errorf("restore call %d = %+v, want %+v", i, tail[i], want[i])
		}
	}

	got, _ := dev.State(curtain)
	if !got.SameLook(redAt40) {
		t.Errorf("cached state = %+v, want %+v", got, redAt40)
	}
}

func TestSubmit_DropsEqualAndLowerTiers(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	if res := submit(t, e, 75); res.Outcome != Accepted {
		t.Fatalf("first Outcome = %s, want accepted", res.Outcome)
	}
	if res := submit(t, e, 60); res.Outcome != Dropped {
		t.Errorf("equal tier Outcome = %s, want dropped", res.Outcome)
	}
	if res := submit(t, e, 10); res.Outcome != Dropped {
		t.Errorf("lower tier Outcome = %s, want dropped", res.Outcome)
	}

	reports := waitForReports(t, rec, 1)
	waitForState(t, e, StateIdle)
	if len(reports) != 1 || reports[0].Tier.Name != "mid" {
		t.Errorf("reports = %+v, want a single mid celebration", reports)
	}
}

func TestSubmit_SupersedeKeepsOriginalSnapshot(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	submit(t, e, 75)
	waitForState(t, e, StatePlaying)

	res := submit(t, e, 150)
	if res.Outcome != Superseded {
		t.Fatalf("Outcome = %s, want superseded", res.Outcome)
	}
	if res := submit(t, e, 120); res.Outcome != Dropped {
		t.Errorf("second high Outcome = %s, want dropped", res.Outcome)
	}

	reports := waitForReports(t, rec, 2)
	waitForState(t, e, StateIdle)

	if reports[0].Outcome != FinishSuperseded || reports[0].Restored {
		t.Errorf("first report = %+v, want superseded without restore", reports[0])
	}
	if reports[1].Outcome != FinishCompleted || reports[1].Tier.Name != "high" || !reports[1].Restored {
		t.Errorf("second report = %+v, want completed high", reports[1])
	}
	if dev.count("color", blue) == 0 {
		t.Error("high tier never played")
	}
	if n := dev.count("color", red); n != 1 {
		t.Errorf("restore to red issued %d times, want exactly once", n)
	}

	got, _ := dev.State(curtain)
	if !got.SameLook(redAt40) {
		t.Errorf("cached state = %+v, want the pre-celebration look", got)
	}
}

func TestSupersede_FinishesWithinNewTierDuration(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	submit(t, e, 75)
	waitForState(t, e, StatePlaying)
	time.Sleep(50 * time.Millisecond)

	superseded := time.Now()
	if res := submit(t, e, 150); res.Outcome != Superseded {
		t.Fatalf("Outcome = %s, want superseded", res.Outcome)
	}
	reports := waitForReports(t, rec, 2)
	waitForState(t, e, StateIdle)
	elapsed := time.Since(superseded)

	// high lasts 300ms from the moment it takes over.
	if elapsed < 280*time.Millisecond || elapsed > 450*time.Millisecond {
		t.Errorf("supersession to idle took %v, want about 300ms", elapsed)
	}
	if p := reports[0].Played; p > 120*time.Millisecond {
		t.Errorf("superseded Played = %v, want cut short at about 50ms", p)
	}
	if p := reports[1].Played; p < 280*time.Millisecond || p > 400*time.Millisecond {
		t.Errorf("superseding Played = %v, want about 300ms", p)
	}
}

func TestPlayback_KeepsRestoreBudget(t *testing.T) {
	// The standard tier at 1/100 scale against a 10 per 600ms ceiling. The
	// restore timeout is shorter than the window, so a restore that had to
	// wait for a returning token would fail.
	bucket, err := limiter.New(10, 600*time.Millisecond)
	if err != nil {
		t.Fatalf("limiter.New() error = %v", err)
	}
	t.Cleanup(bucket.Close)

	table, err := NewTierTable([]Tier{{
		Name: "standard", Threshold: 0, Duration: 150 * time.Millisecond,
		Keyframes: []Keyframe{
			{Color: govee.Green, Brightness: 80, Hold: 30 * time.Millisecond},
			{Color: govee.White, Brightness: 80, Hold: 10 * time.Millisecond},
		},
	}})
	if err != nil {
		t.Fatalf("NewTierTable() error = %v", err)
	}

	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	rec := &recorder{}
	e := NewEngine(Config{RestoreTimeout: 300 * time.Millisecond}, limitedDevice{fakeDevice: dev, bucket: bucket},
		fakeResolver{}, WithTiers(table), WithObserver(rec), WithBudget(bucket))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})

	submit(t, e, 25)
	reports := waitForReports(t, rec, 1)
	waitForState(t, e, StateIdle)

	r := reports[0]
	if !r.Restored || r.Err != nil {
		t.Fatalf("Report = %+v, want restored", r)
	}
	if r.Played > 250*time.Millisecond {
		t.Errorf("Played = %v, want about 150ms", r.Played)
	}

	calls := dev.Calls()
	if len(calls) > 10 {
		t.Errorf("sent %d commands, ceiling is 10", len(calls))
	}
	if dev.count("color", govee.Green) == 0 {
		t.Errorf("no keyframe played: %+v", calls)
	}
	tail := calls[len(calls)-3:]
	want := []deviceCall{{"power", govee.PowerOn}, {"color", red}, {"brightness", 40}}
	for i := range want {
		if tail[i] != want[i] {
			t.Errorf("restore call %d = %+v, want %+v", i, tail[i], want[i])
		}
	}
}

func TestPlayback_SkipsKeyframesInsideRestoreReserve(t *testing.T) {
	tests := []struct {
		name     string
		before   govee.DeviceState
		budget   fixedBudget
		wantPlay bool
	}{
		{"lit light reserves three", redAt40, 3, false},
		{"lit light with spare budget", redAt40, 4, true},
		{"dark light reserves one", govee.DeviceState{Power: govee.PowerOff}, 1, false},
		{"dark light with spare budget", govee.DeviceState{Power: govee.PowerOff}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.Remember(curtain, tt.before)
			rec := &recorder{}
			e := newTestEngine(t, dev, rec, WithBudget(tt.budget))

			submit(t, e, 25)
			reports := waitForReports(t, rec, 1)
			waitForState(t, e, StateIdle)

			if !reports[0].Restored {
				t.Errorf("Report = %+v, want restored", reports[0])
			}
			played := dev.count("color", govee.Green) > 0
			if played != tt.wantPlay {
				t.Errorf("keyframes played = %v, want %v: %+v", played, tt.wantPlay, dev.Calls())
			}
		})
	}
}

func TestRestore_RefreshesCachedTimestamp(t *testing.T) {
	captured := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	restoredAt := captured.Add(time.Hour)

	dev := newFakeDevice()
	before := redAt40
	before.UpdatedAt = captured
	dev.Remember(curtain, before)
	rec := &recorder{}
	e := newTestEngine(t, dev, rec, WithClock(func() time.Time { return restoredAt }))

	submit(t, e, 25)
	waitForReports(t, rec, 1)
	waitForState(t, e, StateIdle)

	got, _ := dev.State(curtain)
	if !got.SameLook(redAt40) {
		t.Errorf("cached state = %+v, want the pre-celebration look", got)
	}
	if !got.UpdatedAt.Equal(restoredAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, restoredAt)
	}
}

func TestCancel(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	submit(t, e, 150)
	waitForState(t, e, StatePlaying)

	start := time.Now()
	res, err := e.Cancel("acme", "curtain")
	if err != nil || res != CancelOK {
		t.Fatalf("Cancel() = %s, %v; want ok", res, err)
	}

	reports := waitForReports(t, rec, 1)
	waitForState(t, e, StateIdle)
	if time.Since(start) > 200*time.Millisecond {
		t.Errorf("cancel took %v, playback did not stop early", time.Since(start))
	}
	if reports[0].Outcome != FinishCancelled || !reports[0].Restored {
		t.Errorf("report = %+v, want cancelled and restored", reports[0])
	}
	if dev.count("color", red) != 1 {
		t.Error("cancel did not restore the captured color")
	}
}

func TestCancel_Idle(t *testing.T) {
	e := newTestEngine(t, newFakeDevice(), &recorder{})

	res, err := e.Cancel("acme", "")
	if err != nil || res != CancelWasIdle {
		t.Errorf("Cancel() = %s, %v; want wasIdle", res, err)
	}
	if _, err := e.Cancel("nobody", ""); err == nil {
		t.Error("Cancel() for unknown tenant should fail")
	}
}

func TestCapture_NoCachedStateRestoresOff(t *testing.T) {
	dev := newFakeDevice()
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	submit(t, e, 5)
	waitForReports(t, rec, 1)
	waitForState(t, e, StateIdle)

	calls := dev.Calls()
	if calls[0] != (deviceCall{"power", govee.PowerOn}) {
		t.Errorf("first call = %+v, want power on for a dark light", calls[0])
	}
	if last := calls[len(calls)-1]; last != (deviceCall{"power", govee.PowerOff}) {
		t.Errorf("last call = %+v, want power off", last)
	}

	got, ok := dev.State(curtain)
	if !ok || got.Power != govee.PowerOff {
		t.Errorf("cached state = %+v, want off", got)
	}
}

func TestRestoreFailure_StillReturnsToIdle(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	dev.fail = func(op string, value any) error {
		if op == "color" && value == red {
			return govee.ErrPermanent
		}
		return nil
	}
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	submit(t, e, 5)
	reports := waitForReports(t, rec, 1)
	st := waitForState(t, e, StateIdle)

	if reports[0].Restored || !errors.Is(reports[0].Err, ErrRestoreFailed) {
		t.Errorf("report = %+v, want ErrRestoreFailed", reports[0])
	}
	if !strings.Contains(st.LastError, "restore failed") {
		t.Errorf("Status.LastError = %q", st.LastError)
	}
	// Brightness is still re-applied after the failing color.
	calls := dev.Calls()
	if last := calls[len(calls)-1]; last != (deviceCall{"brightness", 40}) {
		t.Errorf("last call = %+v, want brightness 40", last)
	}

	// The machine accepts new work afterwards.
	if res := submit(t, e, 5); res.Outcome != Accepted {
		t.Errorf("Outcome after failed restore = %s, want accepted", res.Outcome)
	}
}

func TestKeyframeFailure_ContinuesPlayback(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	dev.fail = func(op string, value any) error {
		if op == "color" && value == govee.Green {
			return fmt.Errorf("%w: vendor 500", govee.ErrTransient)
		}
		return nil
	}
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	submit(t, e, 5)
	reports := waitForReports(t, rec, 1)
	st := waitForState(t, e, StateIdle)

	if reports[0].Outcome != FinishCompleted || !reports[0].Restored {
		t.Errorf("report = %+v, want completed and restored", reports[0])
	}
	if dev.count("color", govee.Green) < 2 || dev.count("color", govee.White) < 2 {
		t.Errorf("playback stopped after a failed keyframe: %+v", dev.Calls())
	}
	if !strings.Contains(st.LastError, "vendor 500") {
		t.Errorf("Status.LastError = %q, want the keyframe failure", st.LastError)
	}
}

func TestSubmit_DuringRestoreIsQueued(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	dev.hold = func(op string, value any) bool { return op == "color" && value == red }
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	submit(t, e, 5)
	waitForState(t, e, StateRestoring)

	if res := submit(t, e, 5); res.Outcome != Accepted {
		t.Fatalf("Outcome during restore = %s, want accepted", res.Outcome)
	}
	if res := submit(t, e, 75); res.Outcome != Accepted {
		t.Fatalf("better Outcome during restore = %s, want accepted", res.Outcome)
	}
	if res := submit(t, e, 60); res.Outcome != Dropped {
		t.Errorf("equal Outcome during restore = %s, want dropped", res.Outcome)
	}

	st, _ := e.Status("acme", "")
	if st.Queued != "mid" {
		t.Errorf("Status.Queued = %q, want mid", st.Queued)
	}

	dev.mu.Lock()
	dev.hold = nil
	dev.mu.Unlock()
	close(dev.released)

	reports := waitForReports(t, rec, 2)
	waitForState(t, e, StateIdle)
	if reports[1].Tier.Name != "mid" || reports[1].Outcome != FinishCompleted {
		t.Errorf("queued report = %+v, want completed mid", reports[1])
	}
}

func TestCancel_DuringRestoreDropsQueued(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	dev.hold = func(op string, value any) bool { return op == "color" && value == red }
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	submit(t, e, 5)
	waitForState(t, e, StateRestoring)
	submit(t, e, 75)

	if res, _ := e.Cancel("acme", ""); res != CancelOK {
		t.Errorf("Cancel() = %s, want ok", res)
	}

	dev.mu.Lock()
	dev.hold = nil
	dev.mu.Unlock()
	close(dev.released)

	waitForState(t, e, StateIdle)
	time.Sleep(20 * time.Millisecond)
	if n := len(rec.Reports()); n != 1 {
		t.Errorf("got %d reports, want 1 (queued request discarded)", n)
	}
}

func TestStatus_Playing(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	e := newTestEngine(t, dev, &recorder{})

	submit(t, e, 150)
	st := waitForState(t, e, StatePlaying)

	if st.Tier != "high" || st.RequestID == "" || st.StartedAt == nil {
		t.Errorf("Status = %+v", st)
	}
	if st.RemainingSeconds == nil || *st.RemainingSeconds != 1 {
		t.Errorf("RemainingSeconds = %v, want 1 (ceil of under a second)", st.RemainingSeconds)
	}

	idle, err := e.Status("acme", "other")
	if err != nil || idle.State != StateIdle || idle.RemainingSeconds != nil {
		t.Errorf("Status(other) = %+v, %v; want idle", idle, err)
	}
	if _, err := e.Status("nobody", ""); err == nil {
		t.Error("Status() for unknown tenant should fail")
	}
}

func TestStatus_UsesEngineClock(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	e := newTestEngine(t, dev, &recorder{}, WithClock(func() time.Time { return now }))

	submit(t, e, 150)
	st := waitForState(t, e, StatePlaying)

	if st.StartedAt == nil || !st.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", st.StartedAt, now)
	}
	if st.RemainingSeconds == nil || *st.RemainingSeconds != 1 {
		t.Errorf("RemainingSeconds = %v, want 1", st.RemainingSeconds)
	}
}

func TestSubmit_Invalid(t *testing.T) {
	e := newTestEngine(t, newFakeDevice(), &recorder{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"missing tenant", Request{Source: SourceManual, Amount: 5}},
		{"unknown source", Request{TenantID: "acme", Source: "fax", Amount: 5}},
		{"negative amount", Request{TenantID: "acme", Source: SourceManual, Amount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Submit(ctx, tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Submit() error = %v, want ErrInvalidRequest", err)
			}
		})
	}

	if _, err := e.Submit(ctx, Request{TenantID: "nobody", Source: SourceManual, Amount: 5}); err == nil {
		t.Error("Submit() for unknown tenant should fail")
	}
}

func TestClose_RestoresAndRejects(t *testing.T) {
	dev := newFakeDevice()
	dev.Remember(curtain, redAt40)
	rec := &recorder{}
	e := newTestEngine(t, dev, rec)

	submit(t, e, 150)
	waitForState(t, e, StatePlaying)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reports := rec.Reports()
	if len(reports) != 1 || reports[0].Outcome != FinishShutdown || !reports[0].Restored {
		t.Errorf("reports = %+v, want one restored shutdown", reports)
	}
	if dev.count("color", red) != 1 {
		t.Error("shutdown did not restore the light")
	}

	if _, err := e.Submit(context.Background(), Request{TenantID: "acme", Source: SourceManual, Amount: 5}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrClosed", err)
	}
}

func TestTestCommand(t *testing.T) {
	dev := newFakeDevice()
	e := newTestEngine(t, dev, &recorder{})
	ctx := context.Background()

	brightness := 30
	pattern := 3
	ops := []TestOp{
		{Op: TestPower, Power: govee.PowerOn},
		{Op: TestColor, Color: &blue},
		{Op: TestBrightness, Brightness: &brightness},
		{Op: TestPattern, PatternID: &pattern},
	}
	for _, op := range ops {
		if err := e.TestCommand(ctx, "acme", "", op); err != nil {
			t.Errorf("TestCommand(%s) error = %v", op.Op, err)
		}
	}

	want := []deviceCall{{"power", govee.PowerOn}, {"color", blue}, {"brightness", 30}, {"pattern", 3}}
	calls := dev.Calls()
	if len(calls) != len(want) {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}

	invalid := []TestOp{
		{Op: "strobe"},
		{Op: TestPower, Power: "dim"},
		{Op: TestColor},
		{Op: TestBrightness},
		{Op: TestPattern},
	}
	for _, op := range invalid {
		if err := e.TestCommand(ctx, "acme", "", op); !errors.Is(err, ErrInvalidTestOp) {
			t.Errorf("TestCommand(%+v) error = %v, want ErrInvalidTestOp", op, err)
		}
	}

	dev.fail = func(string, any) error { return govee.ErrPermanent }
	if err := e.TestCommand(ctx, "acme", "", ops[0]); !errors.Is(err, govee.ErrPermanent) {
		t.Errorf("TestCommand() error = %v, want the device error", err)
	}
}
