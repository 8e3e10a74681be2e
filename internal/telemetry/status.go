package telemetry

import (
	"context"
	"sync"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
)

// Publisher sends a retained JSON message. *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Logger is the logging surface the publisher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// StatusPublisher mirrors each device's celebration status to a retained
// broker topic. Transitions are coalesced per topic so a slow broker never
// blocks the engine; only the latest status of each device is published.
type StatusPublisher struct {
	celebration.BaseObserver

	pub     Publisher
	topicOf func(tenantID, deviceID string) string
	logger  Logger

	mu      sync.Mutex
	pending map[string]celebration.Status
	notify  chan struct{}
}

// NewStatusPublisher returns a publisher. topicOf maps a device to its
// status topic.
func NewStatusPublisher(pub Publisher, topicOf func(tenantID, deviceID string) string, logger Logger) *StatusPublisher {
	return &StatusPublisher{
		pub:     pub,
		topicOf: topicOf,
		logger:  logger,
		pending: make(map[string]celebration.Status),
		notify:  make(chan struct{}, 1),
	}
}

// Transitioned implements celebration.Observer.
func (p *StatusPublisher) Transitioned(t celebration.Transition) {
	topic := p.topicOf(t.Status.TenantID, t.Status.DeviceID)

	p.mu.Lock()
	p.pending[topic] = t.Status
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run publishes pending statuses until ctx is cancelled, then flushes once.
func (p *StatusPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case <-p.notify:
			p.flush()
		}
	}
}

func (p *StatusPublisher) flush() {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[string]celebration.Status, len(batch))
	p.mu.Unlock()

	for topic, status := range batch {
		if err := p.pub.PublishJSON(topic, status); err != nil {
			p.logger.Warn("publishing celebration status failed", "topic", topic, "error", err)
			continue
		}
		p.logger.Debug("celebration status published", "topic", topic, "state", status.State)
	}
}
