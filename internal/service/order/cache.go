package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/cache"
	"github.com/Additional-Code/ordertrack/internal/entity"
)

// orderCache is the read-through cache shared by the engine and queries.
// Commands never trust it for their precondition reads. Only commands
// overwrite an entry; reads fill a missing one, so a read that raced a
// commit cannot replace the committed state.
type orderCache struct {
	store  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

func cacheKey(id string) string {
	return "orders:" + id
}

func idempotencyKey(customerID, key string) string {
	return "orders:idempotency:" + customerID + ":" + key
}

func (c orderCache) get(ctx context.Context, id string) (*entity.Order, error) {
	if c.store == nil {
		return nil, cache.ErrCacheMiss
	}
	raw, err := c.store.Get(ctx, cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// put stores the state a command just committed.
func (c orderCache) put(ctx context.Context, order *entity.Order) {
	c.write(order, func(key string, raw []byte) error {
		return c.store.Set(ctx, key, raw, c.ttl)
	})
}

// fill stores order read from the store unless an entry already exists.
func (c orderCache) fill(ctx context.Context, order *entity.Order) {
	c.write(order, func(key string, raw []byte) error {
		_, err := c.store.SetIfAbsent(ctx, key, raw, c.ttl)
		return err
	})
}

func (c orderCache) write(order *entity.Order, set func(key string, raw []byte) error) {
	if c.store == nil || order == nil {
		return
	}
	raw, err := json.Marshal(order)
	if err == nil {
		err = set(cacheKey(order.OrderID), raw)
	}
	if err != nil {
		c.logger.Warn("orders cache write failed", zap.String("order_id", order.OrderID), zap.Error(err))
	}
}

func (c orderCache) logReadFailure(id string, err error) {
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("orders cache read failed", zap.String("order_id", id), zap.Error(err))
	}
}
