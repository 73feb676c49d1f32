package order

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/ordertrack/internal/database"
	"github.com/Additional-Code/ordertrack/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/ordertrack/repository/order")

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyExists is returned when an order id is already taken.
	ErrAlreadyExists = errors.New("order already exists")
	// ErrPreconditionFailed is returned when the stored order no longer matches
	// the state the caller expected.
	ErrPreconditionFailed = errors.New("order precondition failed")
)

const mysqlDuplicateEntry = 1062

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer   *bun.DB
	reader   *bun.DB
	rowLocks bool
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer:   conns.Writer,
		reader:   conns.Reader,
		rowLocks: conns.SupportsRowLocks(),
	}
}

// Create persists a new order using the write connection.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.id", order.OrderID)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(order).Exec(ctx)
	if isUniqueViolation(err) {
		span.SetStatus(codes.Error, "duplicate")
		return ErrAlreadyExists
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches an order by primary key using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	return r.get(ctx, span, r.reader, id)
}

// GetLatest fetches an order from the primary, so the result reflects every
// committed write.
func (r *Repository) GetLatest(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetLatest", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	return r.get(ctx, span, r.writer, id)
}

func (r *Repository) get(ctx context.Context, span trace.Span, db *bun.DB, id string) (*entity.Order, error) {
	order := new(entity.Order)
	err := db.NewSelect().Model(order).Where("order_id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	normalize(order)
	return order, nil
}

// ConditionalUpdate applies m only if the stored status is one of expected.
// The write is guarded by the version observed inside the transaction, so of
// two writers that read the same state at most one commits.
func (r *Repository) ConditionalUpdate(ctx context.Context, id string, expected []entity.Status, m entity.Mutation) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ConditionalUpdate", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status.next", string(m.Status)),
	))
	defer span.End()

	order := new(entity.Order)
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(order).Where("order_id = ?", id)
		if r.rowLocks {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		normalize(order)

		if !slices.Contains(expected, order.Status) {
			return ErrPreconditionFailed
		}

		observed := order.Version
		order.Apply(m)

		res, err := tx.NewUpdate().
			Model(order).
			Column("status", "updated_at", "history", "version").
			Where("order_id = ?", id).
			Where("version = ?", observed).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrPreconditionFailed
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrPreconditionFailed):
			span.SetStatus(codes.Error, err.Error())
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
		}
		return nil, err
	}
	return order, nil
}

// ListByCustomer returns every order placed by customerID in storage order.
func (r *Repository) ListByCustomer(ctx context.Context, customerID string) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListByCustomer", trace.WithAttributes(attribute.String("order.customer_id", customerID)))
	defer span.End()

	return r.list(ctx, span, "customer_id = ?", customerID)
}

// ListByStatus returns every order currently in status in storage order.
func (r *Repository) ListByStatus(ctx context.Context, status entity.Status) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListByStatus", trace.WithAttributes(attribute.String("order.status", string(status))))
	defer span.End()

	return r.list(ctx, span, "status = ?", string(status))
}

func (r *Repository) list(ctx context.Context, span trace.Span, where string, arg any) ([]*entity.Order, error) {
	var orders []*entity.Order
	if err := r.reader.NewSelect().Model(&orders).Where(where, arg).Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	for _, o := range orders {
		normalize(o)
	}
	span.SetAttributes(attribute.Int("order.count", len(orders)))
	return orders, nil
}

func normalize(order *entity.Order) {
	order.Status = entity.StoredStatus(string(order.Status))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation() && pgErr.Field('C') == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
