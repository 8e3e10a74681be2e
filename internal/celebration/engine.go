package celebration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
)

const defaultRestoreTimeout = 30 * time.Second

// Device is the subset of the device client the engine drives.
// *govee.Client satisfies it.
type Device interface {
	SetPower(ctx context.Context, t govee.Target, p govee.Power) error
	SetColor(ctx context.Context, t govee.Target, c govee.Color) error
	SetBrightness(ctx context.Context, t govee.Target, percent int) error
	RunPattern(ctx context.Context, t govee.Target, id int) error
	State(t govee.Target) (govee.DeviceState, bool)
	Remember(t govee.Target, s govee.DeviceState)
}

// Budget reports how many device commands can be sent without waiting.
// *limiter.Bucket satisfies it.
type Budget interface {
	Available() int
}

// Resolver maps a tenant and device id to a Binding. An empty deviceID
// selects the tenant's default device.
type Resolver interface {
	Resolve(tenantID, deviceID string) (Binding, error)
}

// Logger is the logging subset the engine uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config tunes the engine.
type Config struct {
	// RestoreTimeout bounds the restore phase.
	RestoreTimeout time.Duration
}

// Engine runs one interrupt-and-restore state machine per tenant device.
//
// Thread Safety: All methods are safe for concurrent use.
type Engine struct {
	tiers    *TierTable
	device   Device
	resolver Resolver
	logger   Logger
	observer []Observer
	budget   Budget
	now      func() time.Time

	restoreTimeout time.Duration

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	machines map[string]*machine
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver adds an event observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = append(e.observer, o)
		}
	}
}

// WithTiers replaces the default tier table.
func WithTiers(t *TierTable) Option {
	return func(e *Engine) {
		if t != nil {
			e.tiers = t
		}
	}
}

// WithBudget makes playback leave enough commands in b for the restore.
// Keyframes that would eat into that reserve are skipped.
func WithBudget(b Budget) Option {
	return func(e *Engine) {
		e.budget = b
	}
}

// WithClock replaces time.Now for status reporting.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine. Close must be called to stop playback.
func NewEngine(cfg Config, device Device, resolver Resolver, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		tiers:          DefaultTiers(),
		device:         device,
		resolver:       resolver,
		logger:         noopLogger{},
		now:            time.Now,
		restoreTimeout: cfg.RestoreTimeout,
		baseCtx:        ctx,
		stop:           cancel,
		machines:       make(map[string]*machine),
	}
	if e.restoreTimeout <= 0 {
		e.restoreTimeout = defaultRestoreTimeout
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tiers returns the engine's tier table.
func (e *Engine) Tiers() *TierTable {
	return e.tiers
}

// machine is the state of one tenant device. All fields are guarded by Engine.mu.
type machine struct {
	binding Binding
	state   State

	current *run
	next    *run // higher tier waiting to take over playback
	queued  *run // request that arrived during Restoring

	stopReason FinishOutcome // set when playback must end early
	cancelPlay context.CancelFunc

	startedAt time.Time
	endsAt    time.Time
	lastErr   error
}

type run struct {
	req  Request
	tier Tier
}

// Submit resolves the request's tier and hands it to the device's state machine.
//
// An idle device starts capturing immediately. A device already capturing or
// playing is superseded by a strictly higher tier and otherwise the request is
// dropped. A device that is restoring queues the best request it is offered
// and plays it as soon as the restore completes.
func (e *Engine) Submit(ctx context.Context, req Request) (SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return SubmitResult{}, err
	}
	if err := req.Validate(); err != nil {
		return SubmitResult{}, err
	}
	binding, err := e.resolver.Resolve(req.TenantID, req.DeviceID)
	if err != nil {
		return SubmitResult{}, err
	}
	tier, err := e.tiers.Resolve(req.Amount)
	if err != nil {
		return SubmitResult{}, err
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = e.now()
	}
	req.DeviceID = binding.DeviceID
	r := &run{req: req, tier: tier}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return SubmitResult{}, ErrClosed
	}

	m := e.machines[binding.key()]
	if m == nil {
		m = &machine{binding: binding, state: StateIdle}
		e.machines[binding.key()] = m
	}

	var (
		outcome SubmitOutcome
		changed *Transition
	)
	switch m.state {
	case StateIdle:
		outcome = Accepted
		m.current = r
		m.stopReason = ""
		m.lastErr = nil
		changed = e.setStateLocked(m, StateCapturing)
		e.wg.Add(1)

	case StateCapturing, StatePlaying:
		best := m.current.tier
		if m.next != nil {
			best = m.next.tier
		}
		if tier.Rank() > best.Rank() {
			outcome = Superseded
			m.next = r
			m.stopReason = FinishSuperseded
			if m.cancelPlay != nil {
				m.cancelPlay()
			}
		} else {
			outcome = Dropped
		}

	case StateRestoring:
		if m.queued == nil || tier.Rank() > m.queued.tier.Rank() {
			outcome = Accepted
			m.queued = r
		} else {
			outcome = Dropped
		}
	}
	e.mu.Unlock()

	e.logger.Info("celebration submitted",
		"tenant_id", binding.TenantID, "device_id", binding.DeviceID,
		"request_id", req.ID, "source", req.Source, "amount", req.Amount,
		"tier", tier.Name, "outcome", outcome)

	for _, o := range e.observer {
		o.Submitted(req, tier, outcome)
	}
	if changed != nil {
		e.emit(*changed)
		go e.drive(m)
	}

	return SubmitResult{Outcome: outcome, RequestID: req.ID, Tier: tier.Name, DeviceID: binding.DeviceID}, nil
}

// Cancel stops the device's celebration and restores the captured state.
// Cancelling during Restoring only discards a queued request.
func (e *Engine) Cancel(tenantID, deviceID string) (CancelResult, error) {
	binding, err := e.resolver.Resolve(tenantID, deviceID)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m := e.machines[binding.key()]
	if m == nil || m.state == StateIdle {
		return CancelWasIdle, nil
	}

	m.queued = nil
	if m.state == StateRestoring {
		return CancelOK, nil
	}

	m.next = nil
	m.stopReason = FinishCancelled
	if m.cancelPlay != nil {
		m.cancelPlay()
	}

	e.logger.Info("celebration cancelled", "tenant_id", binding.TenantID, "device_id", binding.DeviceID)
	return CancelOK, nil
}

// Status reports the device's current state machine position.
func (e *Engine) Status(tenantID, deviceID string) (Status, error) {
	binding, err := e.resolver.Resolve(tenantID, deviceID)
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m := e.machines[binding.key()]
	if m == nil {
		return Status{TenantID: binding.TenantID, DeviceID: binding.DeviceID, State: StateIdle}, nil
	}
	return e.statusLocked(m), nil
}

// Active returns the status of every device that is not idle.
func (e *Engine) Active() []Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Status
	for _, m := range e.machines {
		if m.state != StateIdle {
			out = append(out, e.statusLocked(m))
		}
	}
	return out
}

// Close stops all playback, lets in-flight restores finish and waits for
// them or for ctx, whichever comes first.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("celebration: waiting for restores: %w", ctx.Err())
	}
}

func (e *Engine) statusLocked(m *machine) Status {
	s := Status{
		TenantID: m.binding.TenantID,
		DeviceID: m.binding.DeviceID,
		State:    m.state,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	if m.queued != nil {
		s.Queued = m.queued.tier.Name
	}
	if m.state == StateIdle || m.current == nil {
		return s
	}

	s.Tier = m.current.tier.Name
	s.TierLabel = m.current.tier.Label
	s.RequestID = m.current.req.ID
	if m.state == StatePlaying {
		started := m.startedAt
		s.StartedAt = &started
		remaining := int(math.Ceil(m.endsAt.Sub(e.now()).Seconds()))
		if remaining < 0 {
			remaining = 0
		}
		s.RemainingSeconds = &remaining
	}
	return s
}

// setStateLocked moves m to state and returns the transition to emit once
// the lock is released.
func (e *Engine) setStateLocked(m *machine, state State) *Transition {
	from := m.state
	m.state = state
	return &Transition{From: from, To: state, Status: e.statusLocked(m), At: e.now()}
}

func (e *Engine) emit(t Transition) {
	for _, o := range e.observer {
		o.Transitioned(t)
	}
}

// drive runs the state machine for m until it returns to Idle.
func (e *Engine) drive(m *machine) {
	defer e.wg.Done()

	target := m.binding.Target
	var (
		snapshot govee.DeviceState
		captured bool
	)

	for {
		// Capturing. A superseding run keeps the original snapshot.
		if !captured {
			snapshot = e.capture(m.binding)
			captured = true
		}

		e.mu.Lock()
		r := m.current
		playCtx, cancel := context.WithCancel(e.baseCtx)
		m.cancelPlay = cancel
		m.startedAt = e.now()
		m.endsAt = m.startedAt.Add(r.tier.Duration)
		skip := m.stopReason != ""
		t := e.setStateLocked(m, StatePlaying)
		e.mu.Unlock()
		e.emit(*t)

		var played time.Duration
		if !skip {
			played = e.play(playCtx, m, r.tier, snapshot)
		}
		cancel()

		e.mu.Lock()
		m.cancelPlay = nil
		outcome := m.stopReason
		if outcome == "" {
			outcome = FinishCompleted
			if e.baseCtx.Err() != nil {
				outcome = FinishShutdown
			}
		}
		m.stopReason = ""
		next := m.next
		m.next = nil
		t = e.setStateLocked(m, StateRestoring)

		// A superseding run passes through Restoring without touching the
		// device, so the final restore matches the original capture.
		var superseded *Transition
		if next != nil && outcome == FinishSuperseded && e.baseCtx.Err() == nil {
			m.current = next
			superseded = e.setStateLocked(m, StateCapturing)
		}
		e.mu.Unlock()
		e.emit(*t)

		if superseded != nil {
			e.emit(*superseded)
			e.finish(Report{Binding: m.binding, Request: r.req, Tier: r.tier, Outcome: outcome, Played: played})
			continue
		}

		restoreErr := e.restore(m.binding, snapshot)
		if restoreErr == nil {
			restored := snapshot
			restored.UpdatedAt = e.now()
			e.device.Remember(target, restored)
		}

		e.finish(Report{
			Binding:  m.binding,
			Request:  r.req,
			Tier:     r.tier,
			Outcome:  outcome,
			Played:   played,
			Restored: restoreErr == nil,
			Err:      restoreErr,
		})

		e.mu.Lock()
		if restoreErr != nil {
			m.lastErr = restoreErr
		}
		queued := m.queued
		m.queued = nil
		if queued != nil && !e.closed {
			m.current = queued
			captured = false
			t = e.setStateLocked(m, StateCapturing)
		} else {
			m.current = nil
			t = e.setStateLocked(m, StateIdle)
		}
		idle := m.state == StateIdle
		e.mu.Unlock()
		e.emit(*t)

		if idle {
			return
		}
	}
}

// capture reads the cached device state as the restore target. With no
// cached state the safe default is a light that is off.
func (e *Engine) capture(b Binding) govee.DeviceState {
	state, ok := e.device.State(b.Target)
	if !ok {
		e.logger.Warn("no cached device state, restore target defaults to off",
			"tenant_id", b.TenantID, "device_id", b.DeviceID)
		return govee.DeviceState{Power: govee.PowerOff, UpdatedAt: e.now()}
	}
	return state
}

// play drives the tier's keyframes until the schedule ends or ctx is done.
// Keyframe failures are logged and playback moves on.
func (e *Engine) play(ctx context.Context, m *machine, tier Tier, snapshot govee.DeviceState) time.Duration {
	target := m.binding.Target
	start := time.Now()
	ctx, cancel := context.WithDeadline(ctx, start.Add(tier.Duration))
	defer cancel()

	reserve := restoreCost(snapshot)
	skipped := 0
	spend := func() bool {
		if e.budget == nil || e.budget.Available() > reserve {
			return true
		}
		skipped++
		return false
	}

	if snapshot.Power != govee.PowerOn && spend() {
		if err := e.device.SetPower(ctx, target, govee.PowerOn); err != nil {
			e.keyframeFailed(ctx, m, "power", err)
		}
	}

	brightness := -1
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, step := range tier.Schedule() {
		if ctx.Err() != nil {
			break
		}

		if step.Brightness != brightness && spend() {
			if err := e.device.SetBrightness(ctx, target, step.Brightness); err != nil {
				e.keyframeFailed(ctx, m, "brightness", err)
			} else {
				brightness = step.Brightness
			}
		}
		if spend() {
			if err := e.device.SetColor(ctx, target, step.Color); err != nil {
				e.keyframeFailed(ctx, m, "color", err)
			}
		}

		// Hold deadlines are anchored to start so limiter waits never
		// stretch the celebration past its duration.
		wait := time.Until(start.Add(step.At + step.Hold))
		if wait <= 0 {
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	if skipped > 0 {
		e.logger.Debug("keyframe commands skipped to keep the restore budget",
			"tenant_id", m.binding.TenantID, "device_id", m.binding.DeviceID,
			"skipped", skipped, "reserve", reserve)
	}
	return time.Since(start)
}

// restoreCost is the number of commands restore sends for snapshot.
func restoreCost(snapshot govee.DeviceState) int {
	if snapshot.Power == govee.PowerOn {
		return 3
	}
	return 1
}

func (e *Engine) keyframeFailed(ctx context.Context, m *machine, command string, err error) {
	if ctx.Err() != nil {
		return
	}
	e.logger.Warn("keyframe failed, continuing playback",
		"tenant_id", m.binding.TenantID, "device_id", m.binding.DeviceID, "command", command, "error", err)
	e.mu.Lock()
	m.lastErr = err
	e.mu.Unlock()
}

// restore re-applies snapshot within the restore timeout. It survives engine
// shutdown so lights are not left mid-celebration.
func (e *Engine) restore(b Binding, snapshot govee.DeviceState) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.baseCtx), e.restoreTimeout)
	defer cancel()

	target := b.Target
	var errs []error

	if snapshot.Power == govee.PowerOn {
		if err := e.device.SetPower(ctx, target, govee.PowerOn); err != nil {
			errs = append(errs, err)
		}
		if snapshot.PatternID != nil {
			if err := e.device.RunPattern(ctx, target, *snapshot.PatternID); err != nil {
				errs = append(errs, err)
			}
		} else if err := e.device.SetColor(ctx, target, snapshot.Color); err != nil {
			errs = append(errs, err)
		}
		if err := e.device.SetBrightness(ctx, target, snapshot.Brightness); err != nil {
			errs = append(errs, err)
		}
	} else if err := e.device.SetPower(ctx, target, govee.PowerOff); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	err := fmt.Errorf("%w: %w", ErrRestoreFailed, errors.Join(errs...))
	e.logger.Error("restore failed, returning to idle",
		"tenant_id", b.TenantID, "device_id", b.DeviceID, "error", err)
	return err
}

func (e *Engine) finish(r Report) {
	e.logger.Info("celebration finished",
		"tenant_id", r.Binding.TenantID, "device_id", r.Binding.DeviceID,
		"request_id", r.Request.ID, "tier", r.Tier.Name, "outcome", r.Outcome,
		"played", r.Played.Round(time.Millisecond), "restored", r.Restored)
	for _, o := range e.observer {
		o.Finished(r)
	}
}
