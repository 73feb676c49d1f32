// Package ordertest provides in-memory doubles for the order service's
// collaborators.
package ordertest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Additional-Code/ordertrack/internal/cache"
	"github.com/Additional-Code/ordertrack/internal/entity"
	repo "github.com/Additional-Code/ordertrack/internal/repository/order"
)

// Store is a concurrency-safe in-memory order store with the same
// conditional update contract as the database repository.
type Store struct {
	mu     sync.Mutex
	orders map[string]*entity.Order

	// AfterGet, when set, runs after every successful read of a single order
	// outside the lock.
	AfterGet func(id string)

	// Stale, when set, is returned by GetByID in place of the current order,
	// as a lagging replica would.
	Stale map[string]*entity.Order

	// Err, when set, is returned by every call.
	Err error
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{orders: make(map[string]*entity.Order)}
}

// Put stores a copy of order, replacing any existing one.
func (s *Store) Put(order *entity.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.OrderID] = clone(order)
}

func (s *Store) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	s.mu.Lock()
	stale, ok := s.Stale[id]
	s.mu.Unlock()
	if ok && s.Err == nil {
		return clone(stale), nil
	}
	return s.GetLatest(ctx, id)
}

func (s *Store) GetLatest(_ context.Context, id string) (*entity.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	order, ok := s.orders[id]
	if ok {
		order = clone(order)
	}
	s.mu.Unlock()

	if !ok {
		return nil, repo.ErrNotFound
	}
	if s.AfterGet != nil {
		s.AfterGet(id)
	}
	return order, nil
}

func (s *Store) Create(_ context.Context, order *entity.Order) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.OrderID]; exists {
		return repo.ErrAlreadyExists
	}
	s.orders[order.OrderID] = clone(order)
	return nil
}

func (s *Store) ConditionalUpdate(_ context.Context, id string, expected []entity.Status, m entity.Mutation) (*entity.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if !slices.Contains(expected, current.Status) {
		return nil, repo.ErrPreconditionFailed
	}

	next := clone(current)
	next.Apply(m)
	s.orders[id] = next
	return clone(next), nil
}

func (s *Store) ListByCustomer(_ context.Context, customerID string) ([]*entity.Order, error) {
	return s.filter(func(o *entity.Order) bool { return o.CustomerID == customerID })
}

func (s *Store) ListByStatus(_ context.Context, status entity.Status) ([]*entity.Order, error) {
	return s.filter(func(o *entity.Order) bool { return o.Status == status })
}

func (s *Store) filter(keep func(*entity.Order) bool) ([]*entity.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entity.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, clone(o))
		}
	}
	return out, nil
}

func clone(o *entity.Order) *entity.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	c.History = slices.Clone(o.History)
	return &c
}

// Cache is an in-memory cache.Store honouring TTLs against a fixed clock.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	Now     func() time.Time
}

type cacheEntry struct {
	value   []byte
	expires time.Time
}

// NewCache returns an empty Cache driven by the wall clock.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry), Now: time.Now}
}

var _ cache.Store = (*Cache)(nil)

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(key)
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return slices.Clone(e.value), nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = c.entry(value, ttl)
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *Cache) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lookup(key); ok {
		return false, nil
	}
	c.entries[key] = c.entry(value, ttl)
	return true, nil
}

// Len reports the number of live keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if _, ok := c.lookup(k); ok {
			n++
		}
	}
	return n
}

func (c *Cache) lookup(key string) (cacheEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if !e.expires.IsZero() && !c.Now().Before(e.expires) {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *Cache) entry(value []byte, ttl time.Duration) cacheEntry {
	e := cacheEntry{value: slices.Clone(value)}
	if ttl > 0 {
		e.expires = c.Now().Add(ttl)
	}
	return e
}
