package order

import (
	"context"

	"github.com/Additional-Code/ordertrack/internal/entity"
)

// Store is the durable order storage the engine and queries rely on.
// GetLatest must observe every committed write; GetByID may lag behind it.
// ConditionalUpdate must apply the mutation atomically and only while the
// stored status is one of expected; otherwise it fails without side effect.
type Store interface {
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	GetLatest(ctx context.Context, id string) (*entity.Order, error)
	Create(ctx context.Context, order *entity.Order) error
	ConditionalUpdate(ctx context.Context, id string, expected []entity.Status, m entity.Mutation) (*entity.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*entity.Order, error)
	ListByStatus(ctx context.Context, status entity.Status) ([]*entity.Order, error)
}

// EventPublisher emits lifecycle events on a best-effort basis.
type EventPublisher interface {
	Publish(ctx context.Context, detailType string, detail map[string]any) error
}
