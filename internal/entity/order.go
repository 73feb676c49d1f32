package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Order is a customer's purchase request together with its mutation history.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID    string          `bun:"order_id,pk" json:"order_id"`
	CustomerID string          `bun:"customer_id,notnull" json:"customer_id"`
	Status     Status          `bun:"status,notnull" json:"status"`
	Items      []Item          `bun:"items,notnull" json:"items"`
	Total      decimal.Decimal `bun:"total,notnull" json:"total"`
	History    []HistoryEntry  `bun:"history,notnull" json:"history"`
	Version    int64           `bun:"version,notnull" json:"version"`
	CreatedAt  time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt  time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// Item is one ordered product line. Items never change after creation.
type Item struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// HistoryEntry is an immutable audit record of one accepted mutation.
type HistoryEntry struct {
	Action string    `json:"action"`
	At     time.Time `json:"at"`
	By     string    `json:"by"`
	Reason *string   `json:"reason,omitempty"`
}

// Mutation describes one accepted status change as handed to the store.
type Mutation struct {
	Status Status
	At     time.Time
	Entry  HistoryEntry
}

// Apply moves the order to the mutation's status, refreshes updated_at, appends
// the history entry and bumps the version.
func (o *Order) Apply(m Mutation) {
	o.Status = m.Status
	o.UpdatedAt = m.At
	o.History = append(o.History, m.Entry)
	o.Version++
}

// LastActivity returns the timestamp of the newest history entry, or the zero time.
func (o *Order) LastActivity() time.Time {
	if len(o.History) == 0 {
		return time.Time{}
	}
	return o.History[len(o.History)-1].At
}
