// Package event builds lifecycle event envelopes and hands them to the bus.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/messaging"
	"github.com/Additional-Code/ordertrack/pkg/money"
)

// Detail types emitted by the lifecycle engine.
const (
	OrderCreated       = "OrderCreated"
	OrderStatusUpdated = "OrderStatusUpdated"
	OrderCancelled     = "OrderCancelled"
)

const headerDetailType = "detail-type"

// Module provides the event publisher to Fx.
var Module = fx.Provide(NewPublisher)

// Envelope is the record written to the bus.
type Envelope struct {
	Source     string         `json:"source"`
	DetailType string         `json:"detail_type"`
	Detail     map[string]any `json:"detail"`
}

// Publisher emits envelopes on the messaging client. Delivery is best effort:
// errors are returned for the caller to log, never retried here.
type Publisher struct {
	client messaging.Client
	source string
	now    func() time.Time
	logger *zap.Logger
}

// NewPublisher wires a Publisher over the configured messaging client.
func NewPublisher(client messaging.Client, cfg config.Config, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		source: cfg.Orders.EventSource,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(zap.String("component", "event_publisher")),
	}
}

// Publish stamps detail with event_time, canonicalizes its numbers and writes
// the envelope keyed by the detail's order_id.
func (p *Publisher) Publish(ctx context.Context, detailType string, detail map[string]any) error {
	if p.client == nil || !p.client.Enabled() {
		return nil
	}

	stamped := maps.Clone(detail)
	if stamped == nil {
		stamped = make(map[string]any, 1)
	}
	now := p.now()
	stamped["event_time"] = now.Format(time.RFC3339Nano)

	canonical, _ := money.CanonicalizeValue(stamped).(map[string]any)
	envelope := Envelope{
		Source:     p.source,
		DetailType: detailType,
		Detail:     canonical,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", detailType, err)
	}

	key, _ := detail["order_id"].(string)
	msg := messaging.Message{
		Topic:   p.client.Topic(),
		Key:     []byte(key),
		Value:   payload,
		Headers: map[string]string{headerDetailType: detailType},
		Time:    now,
	}
	if err := p.client.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", detailType, err)
	}

	p.logger.Debug("event published", zap.String("detail_type", detailType), zap.String("order_id", key))

	return nil
}

// Decode parses an envelope read back from the bus.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.DetailType == "" {
		return Envelope{}, fmt.Errorf("envelope without detail_type")
	}
	return env, nil
}
