package order

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/cache"
	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/entity"
	repo "github.com/Additional-Code/ordertrack/internal/repository/order"
	"github.com/Additional-Code/ordertrack/pkg/errorbank"
)

// QueryService serves read-only views of orders.
type QueryService struct {
	store  Store
	cache  orderCache
	logger *zap.Logger
}

// NewQueryService builds the query side over the store and cache.
func NewQueryService(store Store, c cache.Store, cfg config.Config, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "order_query"))
	return &QueryService{
		store:  store,
		cache:  orderCache{store: c, ttl: cfg.Orders.CacheTTL, logger: logger},
		logger: logger,
	}
}

// Get returns an order, using cache-aside semantics.
func (q *QueryService) Get(ctx context.Context, orderID string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderQuery.Get", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if orderID == "" {
		return nil, errorbank.Validation("order_id", "order_id is required")
	}

	cached, err := q.cache.get(ctx, orderID)
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	q.cache.logReadFailure(orderID, err)

	order, err := q.store.GetByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("order_id", orderID))
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	q.cache.fill(ctx, order)
	return order, nil
}

// ListByCustomer returns a customer's orders, newest first.
func (q *QueryService) ListByCustomer(ctx context.Context, customerID string) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderQuery.ListByCustomer", trace.WithAttributes(attribute.String("order.customer_id", customerID)))
	defer span.End()

	if customerID == "" {
		return nil, errorbank.Validation("customer_id", "customer_id is required")
	}

	orders, err := q.store.ListByCustomer(ctx, customerID)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	sortNewestFirst(orders)
	return orders, nil
}

// ListByStatus returns every order currently in status, newest first.
func (q *QueryService) ListByStatus(ctx context.Context, status string) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderQuery.ListByStatus", trace.WithAttributes(attribute.String("order.status", status)))
	defer span.End()

	st, ok := entity.ParseStatus(status)
	if !ok {
		return nil, errorbank.Validation("status",
			fmt.Sprintf("invalid status. valid statuses: %s", entity.JoinStatuses(entity.Statuses)))
	}

	orders, err := q.store.ListByStatus(ctx, st)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	sortNewestFirst(orders)
	return orders, nil
}

func sortNewestFirst(orders []*entity.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
