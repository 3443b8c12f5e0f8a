package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines transaction data access
type Repository interface {
	Upsert(ctx context.Context, t *Transaction) error
	GetByMerchantOrderID(ctx context.Context, merchantOrderID string) (*Transaction, error)
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*Transaction, error)
	List(ctx context.Context, limit, offset int) ([]*Transaction, error)
	UpdateStatus(ctx context.Context, merchantOrderID, status, transactionID, gatewayOrderID string) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates transaction repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, t *Transaction) error {
	query := `
		INSERT INTO transactions (id, session_id, merchant_order_id, amount, status, payment_url, transaction_id, gateway_order_id, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (merchant_order_id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			status = EXCLUDED.status,
			payment_url = EXCLUDED.payment_url,
			transaction_id = EXCLUDED.transaction_id,
			gateway_order_id = EXCLUDED.gateway_order_id,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.SessionID,
		t.MerchantOrderID,
		t.Amount,
		t.Status,
		t.PaymentURL,
		t.TransactionID,
		t.GatewayOrderID,
		t.LastError,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

func (r *repository) GetByMerchantOrderID(ctx context.Context, merchantOrderID string) (*Transaction, error) {
	query := `SELECT * FROM transactions WHERE merchant_order_id = $1`
	var t Transaction
	err := r.db.GetContext(ctx, &t, query, merchantOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *repository) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*Transaction, error) {
	query := `SELECT * FROM transactions WHERE session_id = $1`
	var t Transaction
	err := r.db.GetContext(ctx, &t, query, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]*Transaction, error) {
	query := `
		SELECT * FROM transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	var transactions []*Transaction
	err := r.db.SelectContext(ctx, &transactions, query, limit, offset)
	return transactions, err
}

func (r *repository) UpdateStatus(ctx context.Context, merchantOrderID, status, transactionID, gatewayOrderID string) error {
	query := `
		UPDATE transactions
		SET status = $2,
		    transaction_id = COALESCE(NULLIF($3, ''), transaction_id),
		    gateway_order_id = COALESCE(NULLIF($4, ''), gateway_order_id),
		    updated_at = NOW()
		WHERE merchant_order_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, merchantOrderID, status, transactionID, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
