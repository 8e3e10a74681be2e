package trigger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/tenant"
)

// scriptedSource returns a fixed upstream "state": event ids it has seen.
// Each poll returns the ids past the cursor, like the calendar source.
type scriptedSource struct {
	name   string
	events atomic.Pointer[[]string]
	err    atomic.Pointer[error]
	polls  atomic.Int32
}

func newScriptedSource(name string, events ...string) *scriptedSource {
	s := &scriptedSource{name: name}
	s.setEvents(events...)
	return s
}

func (s *scriptedSource) setEvents(events ...string) { s.events.Store(&events) }
func (s *scriptedSource) setErr(err error)           { s.err.Store(&err) }

func (s *scriptedSource) Name() string                 { return s.name }
func (s *scriptedSource) Enabled(t tenant.Tenant) bool { return t.ID != "disabled" }

func (s *scriptedSource) Poll(_ context.Context, t tenant.Tenant, cur Cursor, _ bool) (PollResult, error) {
	s.polls.Add(1)
	if errp := s.err.Load(); errp != nil && *errp != nil {
		return PollResult{}, *errp
	}

	next := cur
	next.TenantID, next.Source = t.ID, s.name
	var res PollResult
	for _, id := range *s.events.Load() {
		if id <= cur.LastEventID {
			continue
		}
		next.LastEventID = id
		res.Items = append(res.Items, Item{
			Request: celebration.Request{ID: t.ID + "-" + id, TenantID: t.ID, Source: celebration.SourceManual, Amount: 5},
			Cursor:  next,
		})
	}
	res.Cursor = next
	return res, nil
}

func TestScheduler_RunOnceIsIdempotent(t *testing.T) {
	engine := &fakeSubmitter{}
	store := newMemoryCursors()
	src := newScriptedSource("test", "e1", "e2")
	metrics := newCountingMetrics()
	s := NewScheduler(staticTenants{{ID: "acme"}, {ID: "globex"}, {ID: "disabled"}}, store, engine,
		[]Source{src}, WithMetrics(metrics))
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n := len(engine.Requests()); n != 4 {
		t.Fatalf("first cycle submitted %d, want 4 (two events, two enabled tenants)", n)
	}
	if src.polls.Load() != 2 {
		t.Errorf("polled %d times, want 2 (disabled tenant skipped)", src.polls.Load())
	}

	// Nothing new upstream: no duplicates.
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n := len(engine.Requests()); n != 4 {
		t.Errorf("second cycle submitted %d more, want 0", n-4)
	}

	src.setEvents("e1", "e2", "e3")
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n := len(engine.Requests()); n != 6 {
		t.Errorf("total submitted = %d, want 6", n)
	}
	if c, _ := store.cursor("acme", "test"); c.LastEventID != "e3" {
		t.Errorf("cursor = %+v, want e3", c)
	}
	if metrics.poll("test:ok") != 6 || metrics.triggers != 6 {
		t.Errorf("metrics polls=%v triggers=%d", metrics.polls, metrics.triggers)
	}
}

func TestScheduler_FetchFailureLeavesCursor(t *testing.T) {
	engine := &fakeSubmitter{}
	store := newMemoryCursors()
	src := newScriptedSource("test", "e1")
	s := NewScheduler(staticTenants{{ID: "acme"}}, store, engine, []Source{src})
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	before, _ := store.cursor("acme", "test")

	src.setEvents("e1", "e2")
	src.setErr(fmt.Errorf("%w: upstream down", ErrFetchFailed))
	if err := s.RunOnce(ctx); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("RunOnce() error = %v, want ErrFetchFailed", err)
	}
	after, _ := store.cursor("acme", "test")
	if after != before {
		t.Errorf("cursor moved on a failed fetch: %+v -> %+v", before, after)
	}

	// Recovery picks up the event that arrived during the outage.
	src.setErr(nil)
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	reqs := engine.Requests()
	if len(reqs) != 2 || reqs[1].ID != "acme-e2" {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestScheduler_SubmitFailureLeavesCursor(t *testing.T) {
	engine := &fakeSubmitter{err: celebration.ErrClosed}
	store := newMemoryCursors()
	src := newScriptedSource("test", "e1", "e2")
	s := NewScheduler(staticTenants{{ID: "acme"}}, store, engine, []Source{src})

	if err := s.RunOnce(context.Background()); !errors.Is(err, celebration.ErrClosed) {
		t.Fatalf("RunOnce() error = %v, want ErrClosed", err)
	}
	if _, ok := store.cursor("acme", "test"); ok {
		t.Error("cursor stored although nothing was submitted")
	}

	engine.setErr(nil)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n := len(engine.Requests()); n != 2 {
		t.Errorf("submitted %d after recovery, want 2", n)
	}
}

func TestScheduler_StoreFailure(t *testing.T) {
	store := newMemoryCursors()
	store.putErr = errBoom
	s := NewScheduler(staticTenants{{ID: "acme"}}, store, &fakeSubmitter{}, []Source{newScriptedSource("test")})

	if err := s.RunOnce(context.Background()); !errors.Is(err, errBoom) {
		t.Errorf("RunOnce() error = %v, want the store error", err)
	}
}

func TestScheduler_RunAndRefresh(t *testing.T) {
	src := newScriptedSource("test")
	s := NewScheduler(staticTenants{{ID: "acme"}}, newMemoryCursors(), &fakeSubmitter{}, []Source{src},
		WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor := func(n int32) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for src.polls.Load() < n {
			if time.Now().After(deadline) {
				t.Fatalf("polls = %d, want %d", src.polls.Load(), n)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	waitFor(1) // immediate first cycle
	s.TriggerRefresh()
	waitFor(2)

	if err := s.Run(ctx); !errors.Is(err, ErrSchedulerRunning) {
		t.Errorf("second Run() error = %v, want ErrSchedulerRunning", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

func TestScheduler_WithRealSources(t *testing.T) {
	srv, _ := serveJSON(t, http.StatusOK, calendarBody)
	engine := &fakeSubmitter{}
	store := openStore(t)
	s := NewScheduler(staticTenants{calendarTenant()}, store, engine,
		[]Source{NewCalendarSource(HTTPConfig{BaseURL: srv.URL, Now: fixedNow}, 0)},
		WithMaxConcurrent(1))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce() #%d error = %v", i, err)
		}
	}
	if n := len(engine.Requests()); n != 3 {
		t.Errorf("submitted %d across two cycles, want 3", n)
	}
	c, ok, err := store.Get(ctx, "acme", SourceCalendar)
	if err != nil || !ok || c.LastEventID != "c" {
		t.Errorf("stored cursor = %+v, %v, %v", c, ok, err)
	}
}
