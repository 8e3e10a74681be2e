package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/tenant"
)

const (
	defaultInterval      = time.Minute
	defaultMaxConcurrent = 4
)

// Submitter accepts celebration requests. *celebration.Engine satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req celebration.Request) (celebration.SubmitResult, error)
}

// Tenants lists the tenants to poll. *tenant.Registry satisfies it.
type Tenants interface {
	List() []tenant.Tenant
}

// Logger is the logging subset the package uses.
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

// Metrics receives poll and push counters. *metrics.Manager satisfies it.
type Metrics interface {
	RecordPoll(source, result string)
	RecordTrigger(source string)
	RecordPush(result string)
}

type noopMetrics struct{}

func (noopMetrics) RecordPoll(string, string) {}
func (noopMetrics) RecordTrigger(string)      {}
func (noopMetrics) RecordPush(string)         {}

// Poll results reported to Metrics.
const (
	pollOK          = "ok"
	pollFetchError  = "fetch_error"
	pollSubmitError = "submit_error"
	pollStoreError  = "store_error"
)

// Scheduler polls every enabled tenant source on a fixed interval.
//
// A tick that fails to fetch is skipped and its cursor left alone. A cursor
// only advances after the request it covers was handed to the engine, so a
// crash mid-cycle means a re-check on the next tick rather than a lost event.
type Scheduler struct {
	interval      time.Duration
	maxConcurrent int64
	sources       []Source
	tenants       Tenants
	store         CursorStore
	engine        Submitter
	logger        Logger
	metrics       Metrics

	refreshCh chan struct{}
	running   atomic.Bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxConcurrent caps how many tenant sources poll at once.
func WithMaxConcurrent(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = int64(n)
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m Metrics) SchedulerOption {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewScheduler creates a scheduler over the given sources.
func NewScheduler(tenants Tenants, store CursorStore, engine Submitter, sources []Source, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		interval:      defaultInterval,
		maxConcurrent: defaultMaxConcurrent,
		sources:       sources,
		tenants:       tenants,
		store:         store,
		engine:        engine,
		logger:        noopLogger{},
		metrics:       noopMetrics{},
		refreshCh:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TriggerRefresh asks the running loop to poll now. It never blocks; a
// request made while one is already pending is merged into it.
func (s *Scheduler) TriggerRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// Run polls immediately and then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSchedulerRunning
	}
	defer s.running.Store(false)

	s.logger.Info("trigger scheduler started", "interval", s.interval, "sources", len(s.sources))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("poll cycle finished with failures", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("trigger scheduler stopped")
			return nil
		case <-s.refreshCh:
		case <-ticker.C:
		}
	}
}

// RunOnce polls every enabled tenant source once. Failures of one source do
// not stop the others; the first failure is returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	sem := semaphore.NewWeighted(s.maxConcurrent)
	var g errgroup.Group

	for _, t := range s.tenants.List() {
		t := t
		for _, src := range s.sources {
			src := src
			if !src.Enabled(t) {
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				_ = g.Wait()
				return err
			}
			g.Go(func() error {
				defer sem.Release(1)
				return s.poll(ctx, t, src)
			})
		}
	}
	return g.Wait()
}

func (s *Scheduler) poll(ctx context.Context, t tenant.Tenant, src Source) error {
	log := []any{"tenant_id", t.ID, "source", src.Name()}

	cur, ok, err := s.store.Get(ctx, t.ID, src.Name())
	if err != nil {
		s.metrics.RecordPoll(src.Name(), pollStoreError)
		return fmt.Errorf("loading %s cursor for %s: %w", src.Name(), t.ID, err)
	}

	res, err := src.Poll(ctx, t, cur, ok)
	if err != nil {
		s.metrics.RecordPoll(src.Name(), pollFetchError)
		if errors.Is(err, ErrUnauthorized) {
			s.logger.Warn("poll skipped, access token rejected", append(log, "error", err)...)
		} else {
			s.logger.Warn("poll skipped", append(log, "error", err)...)
		}
		return fmt.Errorf("polling %s for %s: %w", src.Name(), t.ID, err)
	}

	for _, item := range res.Items {
		result, err := s.engine.Submit(ctx, item.Request)
		if err != nil {
			s.metrics.RecordPoll(src.Name(), pollSubmitError)
			s.logger.Error("submitting polled request failed", append(log, "error", err)...)
			return fmt.Errorf("submitting %s request for %s: %w", src.Name(), t.ID, err)
		}
		s.metrics.RecordTrigger(src.Name())
		s.logger.Info("polled trigger submitted",
			append(log, "request_id", result.RequestID, "amount", item.Request.Amount, "outcome", result.Outcome)...)

		if err := s.store.Put(ctx, item.Cursor); err != nil {
			s.metrics.RecordPoll(src.Name(), pollStoreError)
			return fmt.Errorf("saving %s cursor for %s: %w", src.Name(), t.ID, err)
		}
	}

	if err := s.store.Put(ctx, res.Cursor); err != nil {
		s.metrics.RecordPoll(src.Name(), pollStoreError)
		return fmt.Errorf("saving %s cursor for %s: %w", src.Name(), t.ID, err)
	}
	s.metrics.RecordPoll(src.Name(), pollOK)
	s.logger.Debug("poll complete", append(log, "requests", len(res.Items))...)
	return nil
}
