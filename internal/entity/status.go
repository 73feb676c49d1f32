package entity

import (
	"slices"
	"strings"
)

// Status is the lifecycle stage of an order.
//
//	created ─> preparing ─> ready ─> delivering ─> delivered
//	   └──────────┴───────────┴──────────┴─────> cancelled
type Status string

const (
	StatusCreated    Status = "created"
	StatusPreparing  Status = "preparing"
	StatusReady      Status = "ready"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusCreated,
	StatusPreparing,
	StatusReady,
	StatusDelivering,
	StatusDelivered,
	StatusCancelled,
}

// forward is the strict single-step transition table. Cancellation is not part of it.
var forward = map[Status][]Status{
	StatusCreated:    {StatusPreparing},
	StatusPreparing:  {StatusReady},
	StatusReady:      {StatusDelivering},
	StatusDelivering: {StatusDelivered},
	StatusDelivered:  {},
}

// ParseStatus returns the status matching s exactly, or false for anything unknown.
func ParseStatus(s string) (Status, bool) {
	status := Status(s)
	if !status.Valid() {
		return "", false
	}
	return status, true
}

// StoredStatus interprets a status read back from storage. Missing or unknown
// values are treated as created.
func StoredStatus(s string) Status {
	if status, ok := ParseStatus(s); ok {
		return status
	}
	return StatusCreated
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Terminal reports whether no further mutation is accepted from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// AllowedNext returns the forward successors of s; empty for terminal or unknown statuses.
func (s Status) AllowedNext() []Status {
	return slices.Clone(forward[s])
}

// CanTransitionTo reports whether next is a legal forward step from s.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(forward[s], next)
}

// CanCancel reports whether an order in status s may be cancelled.
func (s Status) CanCancel() bool {
	return s.Valid() && !s.Terminal()
}

func (s Status) String() string {
	return string(s)
}

// JoinStatuses renders statuses as a comma separated list, or "none".
func JoinStatuses(statuses []Status) string {
	if len(statuses) == 0 {
		return "none"
	}
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
