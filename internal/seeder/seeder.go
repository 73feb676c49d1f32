package seeder

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/entity"
	service "github.com/Additional-Code/ordertrack/internal/service/order"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// CustomerID owns every seeded order.
const CustomerID = "seed-customer"

// Seeder creates demo orders for local/dev setups. Orders are created and
// advanced through the lifecycle engine, so history and events are real.
type Seeder struct {
	svc    *service.Service
	query  *service.QueryService
	logger *zap.Logger
}

// New constructs a Seeder backed by the order services.
func New(svc *service.Service, query *service.QueryService, logger *zap.Logger) *Seeder {
	return &Seeder{svc: svc, query: query, logger: logger}
}

type sample struct {
	items []service.ItemInput
	path  []entity.Status
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func samples() []sample {
	return []sample{
		{items: []service.ItemInput{{ProductID: "espresso", Quantity: 2, Price: price("2.80")}}},
		{
			items: []service.ItemInput{
				{ProductID: "margherita", Quantity: 1, Price: price("9.99")},
				{ProductID: "lemonade", Quantity: 3, Price: price("0.10")},
			},
			path: []entity.Status{entity.StatusPreparing, entity.StatusReady},
		},
		{
			items: []service.ItemInput{{ProductID: "ramen", Quantity: 1, Price: price("13.50")}},
			path:  []entity.Status{entity.StatusPreparing, entity.StatusReady, entity.StatusDelivering, entity.StatusDelivered},
		},
		{
			items: []service.ItemInput{{ProductID: "salad", Quantity: 1}},
			path:  []entity.Status{entity.StatusCancelled},
		},
	}
}

// Orders seeds example orders unless the seed customer already has some.
func (s *Seeder) Orders(ctx context.Context) error {
	existing, err := s.query.ListByCustomer(ctx, CustomerID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		s.logger.Info("seed orders already present", zap.Int("count", len(existing)))
		return nil
	}

	for i, smp := range samples() {
		order, err := s.svc.Create(ctx, service.CreateInput{
			CustomerID:     CustomerID,
			Items:          smp.items,
			IdempotencyKey: fmt.Sprintf("seed-%d", i),
		})
		if err != nil {
			return fmt.Errorf("seed order %d: %w", i, err)
		}

		for _, next := range smp.path {
			if next == entity.StatusCancelled {
				_, err = s.svc.Cancel(ctx, order.OrderID, "seeder", "demo cancellation")
			} else {
				_, err = s.svc.Transition(ctx, order.OrderID, string(next), "seeder")
			}
			if err != nil {
				return fmt.Errorf("seed order %s to %s: %w", order.OrderID, next, err)
			}
		}
	}

	s.logger.Info("seeded orders", zap.Int("count", len(samples())))
	return nil
}
