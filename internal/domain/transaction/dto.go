package transaction

import (
	"time"

	"github.com/google/uuid"
)

// TransactionResponse is the API view of a transaction
type TransactionResponse struct {
	ID              uuid.UUID `json:"id"`
	SessionID       string    `json:"session_id,omitempty"`
	MerchantOrderID string    `json:"merchantOrderId"`
	Amount          int64     `json:"amount"`
	Status          string    `json:"status"`
	TransactionID   string    `json:"transactionId,omitempty"`
	OrderID         string    `json:"orderId,omitempty"`
	LastError       string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TransactionResponseFromEntity converts entity to response
func TransactionResponseFromEntity(t *Transaction) *TransactionResponse {
	resp := &TransactionResponse{
		ID:              t.ID,
		MerchantOrderID: t.MerchantOrderID,
		Amount:          t.Amount,
		Status:          t.Status,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.SessionID.Valid {
		resp.SessionID = t.SessionID.UUID.String()
	}
	if t.TransactionID.Valid {
		resp.TransactionID = t.TransactionID.String
	}
	if t.GatewayOrderID.Valid {
		resp.OrderID = t.GatewayOrderID.String
	}
	if t.LastError.Valid {
		resp.LastError = t.LastError.String
	}
	return resp
}
