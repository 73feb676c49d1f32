// Package dto holds the transport representations of orders.
package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/ordertrack/internal/entity"
	"github.com/Additional-Code/ordertrack/pkg/money"
)

// CreateOrderRequest is the body of a create call.
type CreateOrderRequest struct {
	CustomerID string            `json:"customer_id"`
	Items      []CreateOrderItem `json:"items"`
}

// CreateOrderItem is one requested line; price may be a JSON number or a
// numeric string and defaults to zero.
type CreateOrderItem struct {
	ProductID string           `json:"product_id"`
	Quantity  int64            `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// UpdateStatusRequest is the body of a status transition call.
type UpdateStatusRequest struct {
	Status    string `json:"status"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// CancelOrderRequest is the body of a cancel call.
type CancelOrderRequest struct {
	CancelledBy string `json:"cancelled_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// OrderResponse represents an order as exposed via transport layers.
// Monetary amounts are plain JSON numbers in canonical form.
type OrderResponse struct {
	OrderID    string            `json:"order_id"`
	CustomerID string            `json:"customer_id"`
	Status     string            `json:"status"`
	Items      []ItemResponse    `json:"items"`
	Total      json.Number       `json:"total"`
	History    []HistoryResponse `json:"history"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ItemResponse is one order line.
type ItemResponse struct {
	ProductID string      `json:"product_id"`
	Quantity  int64       `json:"quantity"`
	Price     json.Number `json:"price"`
}

// HistoryResponse is one audit entry.
type HistoryResponse struct {
	Action string    `json:"action"`
	At     time.Time `json:"at"`
	By     string    `json:"by"`
	Reason *string   `json:"reason,omitempty"`
}

// NewOrderResponse maps an order entity to its transport shape.
func NewOrderResponse(order *entity.Order) OrderResponse {
	items := make([]ItemResponse, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, ItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     money.Canonicalize(it.Price),
		})
	}

	history := make([]HistoryResponse, 0, len(order.History))
	for _, h := range order.History {
		history = append(history, HistoryResponse{Action: h.Action, At: h.At, By: h.By, Reason: h.Reason})
	}

	return OrderResponse{
		OrderID:    order.OrderID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Items:      items,
		Total:      money.Canonicalize(order.Total),
		History:    history,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}

// NewOrderList maps a slice of orders, never returning nil.
func NewOrderList(orders []*entity.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, NewOrderResponse(o))
	}
	return out
}
