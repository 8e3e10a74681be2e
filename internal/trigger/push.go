package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
)

// Push outcomes beyond the engine's own submit outcomes.
const (
	PushDuplicate = "duplicate"
	PushIgnored   = "ignored"
)

// Payment event types that carry an amount, and the field holding it.
var paymentAmountFields = map[string]string{
	"payment_intent.succeeded":   "amount",
	"checkout.session.completed": "amount_total",
	"invoice.payment_succeeded":  "amount_paid",
}

// PushEvent is an already-verified event to celebrate right away.
type PushEvent struct {
	EventID string                 `json:"event_id,omitempty"`
	Source  celebration.SourceKind `json:"source"`
	Amount  float64                `json:"amount"`
}

// PushResult reports what happened to a push.
type PushResult struct {
	Outcome   string `json:"outcome"`
	RequestID string `json:"id,omitempty"`
	Tier      string `json:"tier,omitempty"`
}

// PushKey identifies a pushed event. Event ids are only unique within the
// tenant whose provider issued them.
type PushKey struct {
	TenantID string
	EventID  string
}

// String is the in-memory dedupe key.
func (k PushKey) String() string {
	return k.TenantID + "\x00" + k.EventID
}

// PushStore persists push ids across restarts. *SQLiteCursorStore satisfies it.
type PushStore interface {
	RecordPush(ctx context.Context, key PushKey, at time.Time) (bool, error)
	ForgetPush(ctx context.Context, key PushKey) error
	RecentPushes(ctx context.Context, limit int) ([]PushKey, error)
}

// PushReceiver submits pushed events straight to the engine, skipping the
// scheduler's polling. Events with an id are processed at most once.
type PushReceiver struct {
	engine  Submitter
	seen    *Deduper
	store   PushStore
	logger  Logger
	metrics Metrics
	now     func() time.Time
}

// PushOption configures a PushReceiver.
type PushOption func(*PushReceiver)

// WithPushStore persists push ids in store.
func WithPushStore(store PushStore) PushOption {
	return func(r *PushReceiver) { r.store = store }
}

// WithPushLogger attaches a logger.
func WithPushLogger(l Logger) PushOption {
	return func(r *PushReceiver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPushMetrics attaches a metrics recorder.
func WithPushMetrics(m Metrics) PushOption {
	return func(r *PushReceiver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewPushReceiver creates a receiver remembering up to window event ids.
func NewPushReceiver(engine Submitter, window int, opts ...PushOption) *PushReceiver {
	r := &PushReceiver{
		engine:  engine,
		seen:    NewDeduper(window),
		logger:  noopLogger{},
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Warm loads recently stored push ids into the in-memory window.
func (r *PushReceiver) Warm(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	keys, err := r.store.RecentPushes(ctx, r.seen.maxSize)
	if err != nil {
		return err
	}
	// Oldest first so the newest survive eviction.
	for i := len(keys) - 1; i >= 0; i-- {
		r.seen.SeenAndRecord(keys[i].String())
	}
	return nil
}

// Receive submits ev for tenantID.
func (r *PushReceiver) Receive(ctx context.Context, tenantID string, ev PushEvent) (PushResult, error) {
	if ev.Source == "" {
		ev.Source = celebration.SourcePayment
	}

	key := PushKey{TenantID: tenantID, EventID: ev.EventID}
	if ev.EventID != "" {
		dup, err := r.recordID(ctx, key)
		if err != nil {
			return PushResult{}, err
		}
		if dup {
			r.metrics.RecordPush(PushDuplicate)
			r.logger.Debug("duplicate push ignored", "tenant_id", tenantID, "event_id", ev.EventID)
			return PushResult{Outcome: PushDuplicate}, nil
		}
	}

	res, err := r.engine.Submit(ctx, celebration.Request{
		ID:          ev.EventID,
		TenantID:    tenantID,
		Source:      ev.Source,
		Amount:      ev.Amount,
		RequestedAt: r.now(),
	})
	if err != nil {
		if ev.EventID != "" {
			r.forgetID(ctx, key)
		}
		r.metrics.RecordPush("error")
		return PushResult{}, err
	}

	r.metrics.RecordPush(string(res.Outcome))
	r.logger.Info("push submitted",
		"tenant_id", tenantID, "event_id", ev.EventID, "source", ev.Source,
		"amount", ev.Amount, "outcome", res.Outcome)
	return PushResult{Outcome: string(res.Outcome), RequestID: res.RequestID, Tier: res.Tier}, nil
}

// ReceivePayment parses a payment provider event and submits it. Event types
// without an amount are acknowledged with PushIgnored.
func (r *PushReceiver) ReceivePayment(ctx context.Context, tenantID string, body []byte) (PushResult, error) {
	ev, ok, err := ParsePayment(body)
	if err != nil {
		r.metrics.RecordPush("invalid")
		return PushResult{}, err
	}
	if !ok {
		r.metrics.RecordPush(PushIgnored)
		return PushResult{Outcome: PushIgnored}, nil
	}
	return r.Receive(ctx, tenantID, ev)
}

func (r *PushReceiver) recordID(ctx context.Context, key PushKey) (bool, error) {
	if r.seen.SeenAndRecord(key.String()) {
		return true, nil
	}
	if r.store == nil {
		return false, nil
	}
	fresh, err := r.store.RecordPush(ctx, key, r.now())
	if err != nil {
		r.seen.Unrecord(key.String())
		return false, err
	}
	return !fresh, nil
}

func (r *PushReceiver) forgetID(ctx context.Context, key PushKey) {
	r.seen.Unrecord(key.String())
	if r.store == nil {
		return
	}
	if err := r.store.ForgetPush(ctx, key); err != nil {
		r.logger.Warn("forgetting push id failed", "tenant_id", key.TenantID, "event_id", key.EventID, "error", err)
	}
}

type paymentEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object map[string]json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParsePayment converts a payment provider event to a PushEvent. Amounts
// arrive in cents. ok is false for event types that carry no payment.
func ParsePayment(body []byte) (PushEvent, bool, error) {
	var ev paymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return PushEvent{}, false, fmt.Errorf("%w: %w", ErrInvalidPush, err)
	}
	if ev.Type == "" {
		return PushEvent{}, false, fmt.Errorf("%w: missing type", ErrInvalidPush)
	}

	field, ok := paymentAmountFields[ev.Type]
	if !ok {
		return PushEvent{}, false, nil
	}
	raw, ok := ev.Data.Object[field]
	if !ok {
		return PushEvent{}, false, fmt.Errorf("%w: %s has no %s", ErrInvalidPush, ev.Type, field)
	}
	var cents int64
	if err := json.Unmarshal(raw, &cents); err != nil || cents < 0 {
		return PushEvent{}, false, fmt.Errorf("%w: %s is not a whole number of cents", ErrInvalidPush, field)
	}

	return PushEvent{
		EventID: ev.ID,
		Source:  celebration.SourcePayment,
		Amount:  float64(cents) / 100,
	}, true, nil
}
