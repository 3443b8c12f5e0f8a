package transaction

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Transaction is one payment attempt's persisted record. Rows are written by
// the session engine as it transitions and refreshed from the gateway on
// demand.
type Transaction struct {
	ID              uuid.UUID      `db:"id"`
	SessionID       uuid.NullUUID  `db:"session_id"`
	MerchantOrderID string         `db:"merchant_order_id"`
	Amount          int64          `db:"amount"`
	Status          string         `db:"status"`
	PaymentURL      sql.NullString `db:"payment_url"`
	TransactionID   sql.NullString `db:"transaction_id"`
	GatewayOrderID  sql.NullString `db:"gateway_order_id"`
	LastError       sql.NullString `db:"last_error"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// IsFinal reports whether the record's status is a settled outcome
func (t *Transaction) IsFinal() bool {
	switch t.Status {
	case "succeeded", "failed", "cancelled":
		return true
	}
	return false
}
