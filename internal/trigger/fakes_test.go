package trigger

import (
	"context"
	"errors"
	"sync"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/tenant"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []celebration.Request
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, req celebration.Request) (celebration.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return celebration.SubmitResult{}, f.err
	}
	f.requests = append(f.requests, req)
	return celebration.SubmitResult{Outcome: celebration.Accepted, RequestID: req.ID, Tier: "mini"}, nil
}

func (f *fakeSubmitter) Requests() []celebration.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]celebration.Request(nil), f.requests...)
}

func (f *fakeSubmitter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type memoryCursors struct {
	mu      sync.Mutex
	cursors map[string]Cursor
	putErr  error
}

func newMemoryCursors() *memoryCursors {
	return &memoryCursors{cursors: make(map[string]Cursor)}
}

func (m *memoryCursors) Get(_ context.Context, tenantID, source string) (Cursor, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[tenantID+"/"+source]
	return c, ok, nil
}

func (m *memoryCursors) Put(_ context.Context, c Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.cursors[c.TenantID+"/"+c.Source] = c
	return nil
}

func (m *memoryCursors) cursor(tenantID, source string) (Cursor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[tenantID+"/"+source]
	return c, ok
}

type staticTenants []tenant.Tenant

func (s staticTenants) List() []tenant.Tenant { return s }

type countingMetrics struct {
	mu       sync.Mutex
	polls    map[string]int
	triggers int
	pushes   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{polls: make(map[string]int), pushes: make(map[string]int)}
}

func (m *countingMetrics) RecordPoll(source, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls[source+":"+result]++
}

func (m *countingMetrics) RecordTrigger(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers++
}

func (m *countingMetrics) RecordPush(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes[result]++
}

func (m *countingMetrics) poll(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls[key]
}

var errBoom = errors.New("boom")
