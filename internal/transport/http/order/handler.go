package order

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/ordertrack/internal/dto"
	"github.com/Additional-Code/ordertrack/internal/presentation/http/response"
	service "github.com/Additional-Code/ordertrack/internal/service/order"
	"github.com/Additional-Code/ordertrack/pkg/errorbank"
)

// HeaderIdempotencyKey lets clients retry a create safely.
const HeaderIdempotencyKey = "Idempotency-Key"

var httpTracer = otel.Tracer("github.com/Additional-Code/ordertrack/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc   *service.Service
	query *service.QueryService
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service, query *service.QueryService) *Handler {
	return &Handler{svc: svc, query: query}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:order_id", h.getByID)
	g.PUT("/:order_id/status", h.updateStatus)
	g.POST("/:order_id/cancel", h.cancel)

	e.GET("/customers/:customer_id/orders", h.listByCustomer)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.String("order.customer_id", payload.CustomerID),
	))
	defer span.End()

	in := service.CreateInput{
		CustomerID:     payload.CustomerID,
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
		Items:          make([]service.ItemInput, 0, len(payload.Items)),
	}
	for _, it := range payload.Items {
		in.Items = append(in.Items, service.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}

	order, err := h.svc.Create(ctx, in)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("order_id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.query.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)
	id := c.Param("order_id")

	var payload dto.UpdateStatusRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status.next", payload.Status),
	))
	defer span.End()

	order, err := h.svc.Transition(ctx, id, payload.Status, payload.UpdatedBy)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)
	id := c.Param("order_id")

	var payload dto.CancelOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.Cancel(ctx, id, payload.CancelledBy, payload.Reason)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) listByCustomer(c echo.Context) error {
	return h.listCustomer(c, c.Param("customer_id"))
}

// list serves GET /orders filtered by exactly one of customer_id or status.
func (h *Handler) list(c echo.Context) error {
	customerID := c.QueryParam("customer_id")
	status := c.QueryParam("status")

	switch {
	case customerID != "" && status != "":
		return response.New(c).WithError(errorbank.BadRequest("filter by either customer_id or status, not both")).Build()
	case customerID != "":
		return h.listCustomer(c, customerID)
	case status != "":
		return h.listStatus(c, status)
	default:
		return response.New(c).WithError(errorbank.Validation("customer_id", "customer_id or status query parameter is required")).Build()
	}
}

func (h *Handler) listCustomer(c echo.Context, customerID string) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.listByCustomer", trace.WithAttributes(
		attribute.String("order.customer_id", customerID),
	))
	defer span.End()

	orders, err := h.query.ListByCustomer(ctx, customerID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithList(dto.NewOrderList(orders), len(orders)).Build()
}

func (h *Handler) listStatus(c echo.Context, status string) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.listByStatus", trace.WithAttributes(
		attribute.String("order.status", status),
	))
	defer span.End()

	orders, err := h.query.ListByStatus(ctx, status)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithList(dto.NewOrderList(orders), len(orders)).Build()
}

