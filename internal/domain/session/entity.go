package session

import (
	"time"

	"github.com/google/uuid"
)

// State represents the payment session lifecycle state
type State string

const (
	StateCreated              State = "created"
	StateInitiating           State = "initiating"
	StateAwaitingCheckout     State = "awaiting_checkout"
	StateResolvingExternalApp State = "resolving_external_app"
	StateConfirming           State = "confirming"
	StateSucceeded            State = "succeeded"
	StateFailed               State = "failed"
	StateCancelled            State = "cancelled"
)

// Terminal reports whether the state is a sink: once reached, the session is
// immutable and further outcome-producing events are ignored.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// rank orders non-terminal states for the forward-only transition guard
func (s State) rank() int {
	switch s {
	case StateCreated:
		return 0
	case StateInitiating:
		return 1
	case StateAwaitingCheckout:
		return 2
	case StateResolvingExternalApp:
		return 3
	case StateConfirming:
		return 4
	default:
		return 5
	}
}

// Customer describes the buyer attached to an order
type Customer struct {
	BuyerName string
	Email     string
	Phone     string
	Address1  string
	Address2  string
}

// Order is the caller-supplied payment description.
// Amount is in minor currency units. MerchantOrderID uniquely identifies the
// attempt and is immutable.
type Order struct {
	Amount          int64
	MerchantOrderID string
	Channel         string
	Purpose         string
	Customer        Customer
}

// Outcome is the terminal result reported to the caller
type Outcome struct {
	State           State  `json:"state"`
	MerchantOrderID string `json:"merchantOrderId,omitempty"`
	TransactionID   string `json:"transactionId,omitempty"`
	OrderID         string `json:"orderId,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Snapshot is a point-in-time copy of session state, safe to read from any
// goroutine.
type Snapshot struct {
	ID              uuid.UUID
	MerchantOrderID string
	Amount          int64
	State           State
	PaymentURL      string
	TransactionID   string
	GatewayOrderID  string
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Outcome derives the caller-visible result from a snapshot
func (s Snapshot) Outcome() Outcome {
	out := Outcome{
		State:           s.State,
		MerchantOrderID: s.MerchantOrderID,
	}
	switch s.State {
	case StateSucceeded:
		out.TransactionID = s.TransactionID
		out.OrderID = s.GatewayOrderID
	case StateFailed:
		out.Error = s.LastError
	case StateCancelled:
		out.Error = "cancelled"
	}
	return out
}
