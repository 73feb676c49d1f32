package order_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/entity"
	"github.com/Additional-Code/ordertrack/internal/event"
	service "github.com/Additional-Code/ordertrack/internal/service/order"
	"github.com/Additional-Code/ordertrack/internal/service/order/ordertest"
	"github.com/Additional-Code/ordertrack/pkg/errorbank"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, detailType string, detail map[string]any) error {
	args := m.Called(ctx, detailType, detail)
	return args.Error(0)
}

// stepClock advances by one second on every read.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store     *ordertest.Store
	cache     *ordertest.Cache
	publisher *publisherMock
	svc       *service.Service
	clock     *stepClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:     ordertest.NewStore(),
		cache:     ordertest.NewCache(),
		publisher: &publisherMock{},
		clock:     &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	seq := 0
	svc, err := service.New(f.store, f.publisher, zap.NewNop(),
		service.WithClock(f.clock.Now),
		service.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("order-%03d", seq)
		}),
		service.WithCache(f.cache, time.Minute, time.Hour),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func seed(f *fixture, id string, status entity.Status) *entity.Order {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o := &entity.Order{
		OrderID:    id,
		CustomerID: "cust-1",
		Status:     status,
		Items:      []entity.Item{{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(5)}},
		Total:      decimal.NewFromInt(5),
		History:    []entity.HistoryEntry{{Action: "created", At: at, By: "cust-1"}},
		Version:    1,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	f.store.Put(o)
	return o
}

func TestService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, service.CreateInput{
		CustomerID: "cust-1",
		Items: []service.ItemInput{
			{ProductID: "p1", Quantity: 2, Price: price("10.00")},
			{ProductID: "p2", Quantity: 1, Price: price("5.50")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "order-001", created.OrderID)
	assert.Equal(t, entity.StatusCreated, created.Status)
	assert.True(t, decimal.RequireFromString("25.5").Equal(created.Total))
	require.Len(t, created.History, 1)
	assert.Equal(t, "created", created.History[0].Action)
	assert.Equal(t, "cust-1", created.History[0].By)

	steps := []entity.Status{entity.StatusPreparing, entity.StatusReady, entity.StatusDelivering, entity.StatusDelivered}
	prev := entity.StatusCreated
	for _, next := range steps {
		updated, err := f.svc.Transition(ctx, created.OrderID, string(next), "kitchen")
		require.NoError(t, err, "transition to %s", next)
		assert.Equal(t, next, updated.Status)
		last := updated.History[len(updated.History)-1]
		assert.Equal(t, fmt.Sprintf("status_changed_%s_to_%s", prev, next), last.Action)
		assert.Equal(t, "kitchen", last.By)
		assert.Equal(t, last.At, updated.UpdatedAt)
		prev = next
	}

	stored, err := f.store.GetByID(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 5)
	assert.Equal(t, int64(5), stored.Version)

	_, err = f.svc.Cancel(ctx, created.OrderID, "cust-1", "changed my mind")
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition))
	assert.Equal(t, "cannot cancel an order with status delivered", errorbank.From(err).Message())

	f.publisher.AssertNumberOfCalls(t, "Publish", 5)
	f.publisher.AssertCalled(t, "Publish", mock.Anything, event.OrderCreated, mock.Anything)
	f.publisher.AssertCalled(t, "Publish", mock.Anything, event.OrderStatusUpdated, mock.MatchedBy(func(d map[string]any) bool {
		return d["old_status"] == "delivering" && d["new_status"] == "delivered" && d["customer_id"] == "cust-1"
	}))
}

func TestService_TransitionMatrix(t *testing.T) {
	forward := map[entity.Status]entity.Status{
		entity.StatusCreated:    entity.StatusPreparing,
		entity.StatusPreparing:  entity.StatusReady,
		entity.StatusReady:      entity.StatusDelivering,
		entity.StatusDelivering: entity.StatusDelivered,
	}

	for _, from := range entity.Statuses {
		for _, to := range entity.Statuses {
			t.Run(fmt.Sprintf("%s_to_%s", from, to), func(t *testing.T) {
				f := newFixture(t)
				seed(f, "o-1", from)

				updated, err := f.svc.Transition(context.Background(), "o-1", string(to), "")
				if forward[from] == to {
					require.NoError(t, err)
					assert.Equal(t, to, updated.Status)
					assert.Equal(t, service.DefaultActor, updated.History[len(updated.History)-1].By)
					return
				}

				require.Error(t, err)
				assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition), "got %v", err)

				stored, err := f.store.GetByID(context.Background(), "o-1")
				require.NoError(t, err)
				assert.Equal(t, from, stored.Status)
				assert.Len(t, stored.History, 1)
			})
		}
	}
}

func TestService_TransitionMessages(t *testing.T) {
	f := newFixture(t)
	seed(f, "o-1", entity.StatusCreated)
	seed(f, "o-2", entity.StatusDelivered)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, "o-1", "ready", "")
	require.Error(t, err)
	assert.Equal(t, "invalid transition from created to ready. allowed: preparing", errorbank.From(err).Message())

	_, err = f.svc.Transition(ctx, "o-2", "preparing", "")
	require.Error(t, err)
	assert.Equal(t, "invalid transition from delivered to preparing. allowed: none", errorbank.From(err).Message())

	_, err = f.svc.Transition(ctx, "o-1", "shipped", "")
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
	assert.Equal(t, "status", errorbank.From(err).Details()["field"])

	_, err = f.svc.Transition(ctx, "missing", "preparing", "")
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))

	_, err = f.svc.Transition(ctx, "", "preparing", "")
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestService_RejectionIsRepeatable(t *testing.T) {
	f := newFixture(t)
	seed(f, "o-1", entity.StatusReady)
	ctx := context.Background()

	_, first := f.svc.Transition(ctx, "o-1", "delivered", "")
	_, second := f.svc.Transition(ctx, "o-1", "delivered", "")
	require.Error(t, first)
	require.Error(t, second)
	assert.Equal(t, first.Error(), second.Error())

	stored, err := f.store.GetByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CancelFromEachStatus(t *testing.T) {
	for _, from := range entity.Statuses {
		t.Run(string(from), func(t *testing.T) {
			f := newFixture(t)
			seed(f, "o-1", from)

			updated, err := f.svc.Cancel(context.Background(), "o-1", "", "out of stock")
			if from.Terminal() {
				require.Error(t, err)
				assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition))
				assert.Equal(t, fmt.Sprintf("cannot cancel an order with status %s", from), errorbank.From(err).Message())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, entity.StatusCancelled, updated.Status)
			last := updated.History[len(updated.History)-1]
			assert.Equal(t, "cancelled", last.Action)
			assert.Equal(t, service.DefaultActor, last.By)
			require.NotNil(t, last.Reason)
			assert.Equal(t, "out of stock", *last.Reason)

			f.publisher.AssertCalled(t, "Publish", mock.Anything, event.OrderCancelled, mock.MatchedBy(func(d map[string]any) bool {
				return d["old_status"] == string(from) && d["reason"] == "out of stock"
			}))
		})
	}
}

func TestService_HistoryTimestampsNeverGoBackwards(t *testing.T) {
	f := newFixture(t)
	o := seed(f, "o-1", entity.StatusCreated)

	// Recorded activity lies in the future relative to the service clock.
	future := o.CreatedAt.Add(time.Hour)
	o.History[0].At = future
	f.store.Put(o)

	updated, err := f.svc.Transition(context.Background(), "o-1", "preparing", "")
	require.NoError(t, err)
	require.Len(t, updated.History, 2)
	assert.False(t, updated.History[1].At.Before(updated.History[0].At))
	assert.Equal(t, future, updated.History[1].At)
}

func TestService_ConcurrentTransitionsOneWins(t *testing.T) {
	f := newFixture(t)
	seed(f, "o-1", entity.StatusCreated)

	var reads sync.WaitGroup
	reads.Add(2)
	f.store.AfterGet = func(string) {
		reads.Done()
		reads.Wait()
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Transition(context.Background(), "o-1", "preparing", fmt.Sprintf("worker-%d", i))
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errorbank.IsKind(err, errorbank.KindPreconditionFailed):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	f.store.AfterGet = nil
	stored, err := f.store.GetByID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPreparing, stored.Status)
	assert.Len(t, stored.History, 2)
}

func TestService_TransitionRacesCancel(t *testing.T) {
	f := newFixture(t)
	seed(f, "o-1", entity.StatusReady)

	var reads sync.WaitGroup
	reads.Add(2)
	f.store.AfterGet = func(string) {
		reads.Done()
		reads.Wait()
	}

	var transErr, cancelErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, transErr = f.svc.Transition(context.Background(), "o-1", "delivering", "driver")
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = f.svc.Cancel(context.Background(), "o-1", "cust-1", "")
	}()
	wg.Wait()

	f.store.AfterGet = nil
	stored, err := f.store.GetByID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Len(t, stored.History, 2)

	switch stored.Status {
	case entity.StatusDelivering:
		assert.NoError(t, transErr)
		assert.True(t, errorbank.IsKind(cancelErr, errorbank.KindPreconditionFailed))
	case entity.StatusCancelled:
		assert.NoError(t, cancelErr)
		assert.True(t, errorbank.IsKind(transErr, errorbank.KindPreconditionFailed))
	default:
		t.Fatalf("unexpected final status %s", stored.Status)
	}
}

func TestService_PublishFailureDoesNotFailCommand(t *testing.T) {
	f := newFixture(t)
	f.publisher.ExpectedCalls = nil
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bus down"))

	created, err := f.svc.Create(context.Background(), service.CreateInput{
		CustomerID: "cust-1",
		Items:      []service.ItemInput{{ProductID: "p1", Quantity: 1, Price: price("1.00")}},
	})
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), created.OrderID, "preparing", "")
	require.NoError(t, err)

	stored, err := f.store.GetByID(context.Background(), created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPreparing, stored.Status)
	f.publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		in    service.CreateInput
		field string
	}{
		{"missing customer", service.CreateInput{Items: []service.ItemInput{{ProductID: "p", Quantity: 1}}}, "customer_id"},
		{"no items", service.CreateInput{CustomerID: "c"}, "items"},
		{"missing product", service.CreateInput{CustomerID: "c", Items: []service.ItemInput{{Quantity: 1}}}, "items[0].product_id"},
		{"zero quantity", service.CreateInput{CustomerID: "c", Items: []service.ItemInput{{ProductID: "p"}}}, "items[0].quantity"},
		{"negative quantity", service.CreateInput{CustomerID: "c", Items: []service.ItemInput{{ProductID: "p", Quantity: -2}}}, "items[0].quantity"},
		{"negative price", service.CreateInput{CustomerID: "c", Items: []service.ItemInput{
			{ProductID: "p", Quantity: 1},
			{ProductID: "q", Quantity: 1, Price: price("-0.01")},
		}}, "items[1].price"},
		{"price beyond stored scale", service.CreateInput{CustomerID: "c", Items: []service.ItemInput{
			{ProductID: "p", Quantity: 1, Price: price("0.00000000001")},
		}}, "items[0].price"},
		{"price beyond stored magnitude", service.CreateInput{CustomerID: "c", Items: []service.ItemInput{
			{ProductID: "p", Quantity: 1, Price: price("10000000000000000000000000000")},
		}}, "items[0].price"},
		{"total beyond stored magnitude", service.CreateInput{CustomerID: "c", Items: []service.ItemInput{
			{ProductID: "p", Quantity: 1_000_000, Price: price("10000000000000000000000")},
		}}, "items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
			assert.Equal(t, tt.field, errorbank.From(err).Details()["field"])
			f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_CreateMissingPriceIsZero(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), service.CreateInput{
		CustomerID: "c",
		Items: []service.ItemInput{
			{ProductID: "free", Quantity: 3},
			{ProductID: "dime", Quantity: 3, Price: price("0.10")},
		},
	})
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(created.Items[0].Price))
	assert.Equal(t, "0.3", created.Total.String())
}

func TestService_CreateKeepsSubCentPrices(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), service.CreateInput{
		CustomerID: "c",
		Items:      []service.ItemInput{{ProductID: "bolt", Quantity: 1, Price: price("0.00005")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "0.00005", created.Total.String())

	stored, err := f.store.GetByID(context.Background(), created.OrderID)
	require.NoError(t, err)
	assert.True(t, created.Total.Equal(stored.Total))
}

func TestService_CommandsReadThePrimary(t *testing.T) {
	f := newFixture(t)
	current := seed(f, "o-1", entity.StatusPreparing)

	lagging := *current
	lagging.Status = entity.StatusCreated
	f.store.Stale = map[string]*entity.Order{"o-1": &lagging}

	updated, err := f.svc.Transition(context.Background(), "o-1", "ready", "kitchen")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReady, updated.Status)
	assert.Equal(t, "status_changed_preparing_to_ready", updated.History[len(updated.History)-1].Action)

	_, err = f.svc.Transition(context.Background(), "o-1", "ready", "kitchen")
	require.Error(t, err)
	assert.Equal(t, "invalid transition from ready to ready. allowed: delivering", errorbank.From(err).Message())
}

func TestService_CreateIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := service.CreateInput{
		CustomerID:     "cust-1",
		Items:          []service.ItemInput{{ProductID: "p1", Quantity: 1, Price: price("2.50")}},
		IdempotencyKey: "req-42",
	}

	first, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	replay, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, replay.OrderID)

	listed, err := f.store.ListByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	in.CustomerID = "cust-2"
	other, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, first.OrderID, other.OrderID)

	f.publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestService_CreateReleasesKeyOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := service.CreateInput{
		CustomerID:     "cust-1",
		Items:          []service.ItemInput{{ProductID: "p1", Quantity: 1}},
		IdempotencyKey: "req-1",
	}

	f.store.Err = errors.New("db down")
	_, err := f.svc.Create(ctx, in)
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))

	f.store.Err = nil
	created, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCreated, created.Status)
}

func TestService_StoreErrorsAreInternal(t *testing.T) {
	f := newFixture(t)
	seed(f, "o-1", entity.StatusCreated)
	f.store.Err = errors.New("connection reset")

	_, err := f.svc.Transition(context.Background(), "o-1", "preparing", "")
	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))

	_, err = f.svc.Cancel(context.Background(), "o-1", "", "")
	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))
}

func TestService_EndToEndScenario(t *testing.T) {
	f := newFixture(t)
	q := newQuery(f)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, service.CreateInput{
		CustomerID: "cust-9",
		Items:      []service.ItemInput{{ProductID: "A", Quantity: 2, Price: price("9.99")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "19.98", order.Total.String())
	assert.Equal(t, entity.StatusCreated, order.Status)

	order, err = f.svc.Transition(ctx, order.OrderID, "preparing", "")
	require.NoError(t, err)
	assert.Len(t, order.History, 2)

	_, err = f.svc.Transition(ctx, order.OrderID, "delivering", "")
	assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition))

	_, err = f.svc.Transition(ctx, order.OrderID, "ready", "")
	require.NoError(t, err)

	order, err = f.svc.Cancel(ctx, order.OrderID, "", "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, order.Status)
	require.Len(t, order.History, 4)
	for i := 1; i < len(order.History); i++ {
		assert.False(t, order.History[i].At.Before(order.History[i-1].At))
	}

	for _, next := range entity.Statuses {
		_, err = f.svc.Transition(ctx, order.OrderID, string(next), "")
		assert.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition), "transition to %s", next)
	}

	cancelled, err := q.ListByStatus(ctx, "cancelled")
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, order.OrderID, cancelled[0].OrderID)
}
