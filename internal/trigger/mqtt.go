package trigger

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReceiveRaw accepts either a payment provider event (recognised by its
// "type" field) or a PushEvent, and submits it for tenantID.
func (r *PushReceiver) ReceiveRaw(ctx context.Context, tenantID string, payload []byte) (PushResult, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		r.metrics.RecordPush("invalid")
		return PushResult{}, fmt.Errorf("%w: %w", ErrInvalidPush, err)
	}
	if probe.Type != "" {
		return r.ReceivePayment(ctx, tenantID, payload)
	}

	var ev PushEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.metrics.RecordPush("invalid")
		return PushResult{}, fmt.Errorf("%w: %w", ErrInvalidPush, err)
	}
	return r.Receive(ctx, tenantID, ev)
}

// MQTTHandler adapts the receiver to an MQTT message handler. tenantOf
// extracts the tenant id from the topic.
func (r *PushReceiver) MQTTHandler(ctx context.Context, tenantOf func(topic string) (string, bool)) func(topic string, payload []byte) error {
	return func(topic string, payload []byte) error {
		tenantID, ok := tenantOf(topic)
		if !ok {
			return fmt.Errorf("%w: no tenant in topic %q", ErrInvalidPush, topic)
		}

		res, err := r.ReceiveRaw(ctx, tenantID, payload)
		if err != nil {
			return err
		}
		r.logger.Debug("mqtt push handled", "topic", topic, "outcome", res.Outcome)
		return nil
	}
}
