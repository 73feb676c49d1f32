package order

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/event"
	"github.com/Additional-Code/ordertrack/internal/messaging"
	"github.com/Additional-Code/ordertrack/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/ordertrack/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewAuditHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewAuditHandler sets up a worker handler that records every lifecycle event
// read back from the bus.
func NewAuditHandler(logger *zap.Logger, cfg config.Config) (worker.HandlerRegistration, error) {
	consumed, err := otel.Meter("github.com/Additional-Code/ordertrack/worker/order").Int64Counter(
		"orders.events.consumed",
		metric.WithDescription("Lifecycle events read back by the audit worker."),
	)
	if err != nil {
		return worker.HandlerRegistration{}, err
	}
	logger = logger.With(zap.String("component", "order_audit"))

	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.audit", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		env, err := event.Decode(msg.Value)
		if err != nil {
			// Undecodable payloads are dropped; retrying cannot fix them.
			logger.Error("discarding malformed order event", zap.Int64("offset", msg.Offset), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}

		consumed.Add(ctx, 1, metric.WithAttributes(attribute.String("detail_type", env.DetailType)))
		span.SetAttributes(attribute.String("event.detail_type", env.DetailType))

		fields := []zap.Field{
			zap.String("source", env.Source),
			zap.String("detail_type", env.DetailType),
			zap.Any("order_id", env.Detail["order_id"]),
		}
		switch env.DetailType {
		case event.OrderCreated:
			fields = append(fields, zap.Any("customer_id", env.Detail["customer_id"]), zap.Any("total", env.Detail["total"]))
		case event.OrderStatusUpdated:
			fields = append(fields, zap.Any("old_status", env.Detail["old_status"]), zap.Any("new_status", env.Detail["new_status"]))
		case event.OrderCancelled:
			fields = append(fields, zap.Any("old_status", env.Detail["old_status"]), zap.Any("reason", env.Detail["reason"]))
		}
		logger.Info("order event audited", fields...)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}, nil
}
