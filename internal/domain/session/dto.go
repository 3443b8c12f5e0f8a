package session

import (
	"time"

	"github.com/google/uuid"
)

// CustomerRequest carries buyer details on session creation
type CustomerRequest struct {
	BuyerName string `json:"buyer_name" validate:"required,max=128"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	Address1  string `json:"address1" validate:"omitempty,max=256"`
	Address2  string `json:"address2" validate:"omitempty,max=256"`
}

// CreateSessionRequest is the payload for POST /checkout/sessions
type CreateSessionRequest struct {
	Amount          int64           `json:"amount" validate:"required,gt=0"`
	MerchantOrderID string          `json:"merchantOrderId" validate:"required,max=64,merchant_order_id"`
	Channel         string          `json:"channel" validate:"omitempty,channel"`
	Purpose         string          `json:"purpose" validate:"omitempty,max=256"`
	Customer        CustomerRequest `json:"customer" validate:"required"`
}

// SessionResponse is the API view of a session
type SessionResponse struct {
	ID              uuid.UUID `json:"id"`
	MerchantOrderID string    `json:"merchantOrderId"`
	Amount          int64     `json:"amount"`
	State           State     `json:"state"`
	PaymentURL      string    `json:"payment_url,omitempty"`
	TransactionID   string    `json:"transactionId,omitempty"`
	OrderID         string    `json:"orderId,omitempty"`
	LastError       string    `json:"error,omitempty"`
	BridgeToken     string    `json:"bridge_token,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SessionResponseFromSnapshot builds the API view. The bridge token is only
// set on creation.
func SessionResponseFromSnapshot(snap Snapshot, bridgeToken string) *SessionResponse {
	return &SessionResponse{
		ID:              snap.ID,
		MerchantOrderID: snap.MerchantOrderID,
		Amount:          snap.Amount,
		State:           snap.State,
		PaymentURL:      snap.PaymentURL,
		TransactionID:   snap.TransactionID,
		OrderID:         snap.GatewayOrderID,
		LastError:       snap.LastError,
		BridgeToken:     bridgeToken,
		CreatedAt:       snap.CreatedAt,
		UpdatedAt:       snap.UpdatedAt,
	}
}
