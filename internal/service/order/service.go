package order

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/cache"
	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/entity"
	"github.com/Additional-Code/ordertrack/internal/event"
	repo "github.com/Additional-Code/ordertrack/internal/repository/order"
	"github.com/Additional-Code/ordertrack/pkg/errorbank"
	"github.com/Additional-Code/ordertrack/pkg/money"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/ordertrack/service/order")

// DefaultActor is recorded in history when the caller does not identify itself.
const DefaultActor = "system"

// Service is the order lifecycle engine: it validates commands against the
// status machine and applies them through the store's conditional update.
type Service struct {
	store          Store
	publisher      EventPublisher
	cache          orderCache
	idempotency    cache.Store
	idempotencyTTL time.Duration
	logger         *zap.Logger
	metrics        *instruments
	now            func() time.Time
	newID          func() string
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides order id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// WithCache enables the read-through cache and idempotency claims.
func WithCache(store cache.Store, ttl, idempotencyTTL time.Duration) Option {
	return func(s *Service) {
		s.cache.store = store
		s.cache.ttl = ttl
		s.idempotency = store
		s.idempotencyTTL = idempotencyTTL
	}
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store     Store
	Publisher EventPublisher
	Cache     cache.Store
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance from the Fx graph.
func NewService(p Params) (*Service, error) {
	return New(p.Store, p.Publisher, p.Logger,
		WithCache(p.Cache, p.Config.Orders.CacheTTL, p.Config.Orders.IdempotencyTTL),
	)
}

// New constructs a Service over explicit collaborators.
func New(store Store, publisher EventPublisher, logger *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("order store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ins, err := newInstruments()
	if err != nil {
		return nil, fmt.Errorf("order metrics: %w", err)
	}

	s := &Service{
		store:     store,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "order_lifecycle")),
		metrics:   ins,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     newOrderID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache.logger = s.logger
	return s, nil
}

func newOrderID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// CreateInput is the validated-on-entry payload of a create command.
type CreateInput struct {
	CustomerID     string
	Items          []ItemInput
	IdempotencyKey string
}

// ItemInput is one requested line. A nil Price means zero.
type ItemInput struct {
	ProductID string
	Quantity  int64
	Price     *decimal.Decimal
}

// Create validates the request, computes the exact total and persists a new
// order in status created.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.String("order.customer_id", in.CustomerID),
		attribute.Int("order.item_count", len(in.Items)),
	))
	defer span.End()

	items, total, err := buildItems(in)
	if err != nil {
		return nil, err
	}

	orderID := s.newID()
	claimKey := ""
	if in.IdempotencyKey != "" {
		existing, claimed, err := s.claimIdempotency(ctx, in.CustomerID, in.IdempotencyKey, orderID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		if claimed {
			claimKey = idempotencyKey(in.CustomerID, in.IdempotencyKey)
		}
	}

	now := s.now()
	order := &entity.Order{
		OrderID:    orderID,
		CustomerID: in.CustomerID,
		Status:     entity.StatusCreated,
		Items:      items,
		Total:      total,
		History:    []entity.HistoryEntry{{Action: "created", At: now, By: in.CustomerID}},
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Create(ctx, order); err != nil {
		if claimKey != "" {
			if delErr := s.idempotency.Delete(ctx, claimKey); delErr != nil {
				s.logger.Warn("release idempotency key failed", zap.String("key", claimKey), zap.Error(delErr))
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, errorbank.Conflict("order already exists", errorbank.WithCause(err))
		}
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	s.cache.put(ctx, order)
	s.metrics.created.Add(ctx, 1)
	span.SetAttributes(attribute.String("order.id", order.OrderID))
	s.logger.Info("order created",
		zap.String("order_id", order.OrderID),
		zap.String("customer_id", order.CustomerID),
		zap.String("total", order.Total.String()),
	)

	s.publish(ctx, event.OrderCreated, map[string]any{
		"order_id":    order.OrderID,
		"customer_id": order.CustomerID,
		"status":      string(order.Status),
		"total":       order.Total,
		"item_count":  len(order.Items),
	})

	return order, nil
}

// Transition moves an order one step forward along the status table.
func (s *Service) Transition(ctx context.Context, orderID, newStatus, updatedBy string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Transition", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status.next", newStatus),
	))
	defer span.End()

	if orderID == "" {
		return nil, errorbank.Validation("order_id", "order_id is required")
	}
	next, ok := entity.ParseStatus(newStatus)
	if !ok {
		return nil, errorbank.Validation("status",
			fmt.Sprintf("invalid status. valid statuses: %s", entity.JoinStatuses(entity.Statuses)))
	}
	if next == entity.StatusCancelled {
		return nil, errorbank.InvalidTransition("use the cancel operation to cancel orders",
			errorbank.WithDetail("to", string(next)))
	}
	if updatedBy == "" {
		updatedBy = DefaultActor
	}

	current, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := current.Status
	if !from.CanTransitionTo(next) {
		return nil, errorbank.InvalidTransition(
			fmt.Sprintf("invalid transition from %s to %s. allowed: %s", from, next, entity.JoinStatuses(from.AllowedNext())),
			errorbank.WithDetail("from", string(from)),
			errorbank.WithDetail("to", string(next)),
		)
	}

	at := s.stamp(current)
	updated, err := s.store.ConditionalUpdate(ctx, orderID, []entity.Status{from}, entity.Mutation{
		Status: next,
		At:     at,
		Entry: entity.HistoryEntry{
			Action: fmt.Sprintf("status_changed_%s_to_%s", from, next),
			At:     at,
			By:     updatedBy,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conditional update failed")
		return nil, s.mutationError(ctx, orderID, err)
	}

	s.cache.put(ctx, updated)
	s.metrics.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(next)),
	))
	s.logger.Info("order status updated",
		zap.String("order_id", orderID),
		zap.String("old_status", string(from)),
		zap.String("new_status", string(next)),
		zap.String("by", updatedBy),
	)

	s.publish(ctx, event.OrderStatusUpdated, map[string]any{
		"order_id":    orderID,
		"customer_id": updated.CustomerID,
		"old_status":  string(from),
		"new_status":  string(next),
	})

	return updated, nil
}

// Cancel moves any non-terminal order straight to cancelled.
func (s *Service) Cancel(ctx context.Context, orderID, cancelledBy, reason string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Cancel", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if orderID == "" {
		return nil, errorbank.Validation("order_id", "order_id is required")
	}
	if cancelledBy == "" {
		cancelledBy = DefaultActor
	}

	current, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := current.Status
	if !from.CanCancel() {
		return nil, errorbank.InvalidTransition(
			fmt.Sprintf("cannot cancel an order with status %s", from),
			errorbank.WithDetail("from", string(from)),
		)
	}

	at := s.stamp(current)
	updated, err := s.store.ConditionalUpdate(ctx, orderID, []entity.Status{from}, entity.Mutation{
		Status: entity.StatusCancelled,
		At:     at,
		Entry: entity.HistoryEntry{
			Action: "cancelled",
			At:     at,
			By:     cancelledBy,
			Reason: &reason,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conditional update failed")
		return nil, s.mutationError(ctx, orderID, err)
	}

	s.cache.put(ctx, updated)
	s.metrics.cancellations.Add(ctx, 1, metric.WithAttributes(attribute.String("from", string(from))))
	s.logger.Info("order cancelled",
		zap.String("order_id", orderID),
		zap.String("old_status", string(from)),
		zap.String("by", cancelledBy),
	)

	s.publish(ctx, event.OrderCancelled, map[string]any{
		"order_id":     orderID,
		"customer_id":  updated.CustomerID,
		"old_status":   string(from),
		"cancelled_by": cancelledBy,
		"reason":       reason,
	})

	return updated, nil
}

// load reads the authoritative current state; the cache is deliberately bypassed.
func (s *Service) load(ctx context.Context, orderID string) (*entity.Order, error) {
	order, err := s.store.GetLatest(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("order_id", orderID))
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	return order, nil
}

// stamp returns the timestamp for the next history entry, never earlier than
// the newest recorded one.
func (s *Service) stamp(current *entity.Order) time.Time {
	now := s.now()
	if last := current.LastActivity(); now.Before(last) {
		return last
	}
	return now
}

func (s *Service) mutationError(ctx context.Context, orderID string, err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("order not found", errorbank.WithDetail("order_id", orderID))
	case errors.Is(err, repo.ErrPreconditionFailed):
		s.metrics.conflicts.Add(ctx, 1)
		s.logger.Warn("order modified concurrently", zap.String("order_id", orderID))
		return errorbank.PreconditionFailed("order was modified concurrently",
			errorbank.WithDetail("order_id", orderID), errorbank.WithCause(err))
	default:
		return errorbank.Internal("failed to update order", errorbank.WithCause(err))
	}
}

func (s *Service) publish(ctx context.Context, detailType string, detail map[string]any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, detailType, detail); err != nil {
		s.metrics.publishFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("detail_type", detailType)))
		s.logger.Error("publish order event",
			zap.String("detail_type", detailType),
			zap.Any("order_id", detail["order_id"]),
			zap.Error(err),
		)
	}
}

// claimIdempotency reserves key for orderID. When the key is already taken it
// returns the order created under it.
func (s *Service) claimIdempotency(ctx context.Context, customerID, key, orderID string) (*entity.Order, bool, error) {
	if s.idempotency == nil {
		return nil, false, nil
	}
	ck := idempotencyKey(customerID, key)
	claimed, err := s.idempotency.SetIfAbsent(ctx, ck, []byte(orderID), s.idempotencyTTL)
	if err != nil {
		s.logger.Warn("idempotency claim failed; continuing without it", zap.String("key", ck), zap.Error(err))
		return nil, false, nil
	}
	if claimed {
		return nil, true, nil
	}

	raw, err := s.idempotency.Get(ctx, ck)
	if err != nil {
		return nil, false, errorbank.Conflict("request with this idempotency key is in progress", errorbank.WithCause(err))
	}
	existing, err := s.store.GetLatest(ctx, string(raw))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, errorbank.Conflict("request with this idempotency key is in progress")
		}
		return nil, false, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if existing.CustomerID != customerID {
		return nil, false, errorbank.Conflict("idempotency key belongs to another customer")
	}
	return existing, false, nil
}

func buildItems(in CreateInput) ([]entity.Item, decimal.Decimal, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, decimal.Zero, errorbank.Validation("customer_id", "customer_id is required")
	}
	if len(in.Items) == 0 {
		return nil, decimal.Zero, errorbank.Validation("items", "items must be a non-empty list")
	}

	items := make([]entity.Item, 0, len(in.Items))
	lines := make([]money.Line, 0, len(in.Items))
	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if it.ProductID == "" {
			return nil, decimal.Zero, errorbank.Validation(field+".product_id", "each item must contain product_id and quantity")
		}
		if it.Quantity <= 0 {
			return nil, decimal.Zero, errorbank.Validation(field+".quantity", "quantity must be a positive integer")
		}
		price := decimal.Zero
		if it.Price != nil {
			price = *it.Price
		}
		if price.IsNegative() {
			return nil, decimal.Zero, errorbank.Validation(field+".price", "price must not be negative")
		}
		if err := money.CheckStorable(price); err != nil {
			return nil, decimal.Zero, errorbank.Validation(field+".price", "price "+strings.TrimPrefix(err.Error(), "amount "), errorbank.WithCause(err))
		}
		items = append(items, entity.Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: price})
		lines = append(lines, money.Line{Quantity: it.Quantity, UnitPrice: price})
	}

	total, err := money.ComputeTotal(lines)
	if err != nil {
		return nil, decimal.Zero, errorbank.Validation("items", err.Error(), errorbank.WithCause(err))
	}
	return items, total, nil
}
