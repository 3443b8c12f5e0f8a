package transaction

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gurutvapay/checkout-api/internal/pkg/gateway"
)

// Gateway is the status-check contract the service depends on
type Gateway interface {
	CheckStatus(ctx context.Context, merchantOrderID string) (*gateway.StatusResponse, error)
}

// Service handles transaction history queries and gateway refresh
type Service struct {
	repo    Repository
	gateway Gateway
}

// NewService creates transaction service
func NewService(repo Repository, gw Gateway) *Service {
	return &Service{repo: repo, gateway: gw}
}

// List returns recent transactions, newest first
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Transaction, error) {
	return s.repo.List(ctx, limit, offset)
}

// Get returns one transaction by merchant order id
func (s *Service) Get(ctx context.Context, merchantOrderID string) (*Transaction, error) {
	return s.repo.GetByMerchantOrderID(ctx, merchantOrderID)
}

// Refresh re-checks a transaction against the gateway and updates the stored
// record. Settled records are returned as-is without a gateway round-trip.
func (s *Service) Refresh(ctx context.Context, merchantOrderID string) (*Transaction, error) {
	t, err := s.repo.GetByMerchantOrderID(ctx, merchantOrderID)
	if err != nil {
		return nil, err
	}
	if t.IsFinal() {
		return t, nil
	}

	resp, err := s.gateway.CheckStatus(ctx, merchantOrderID)
	if err != nil {
		return nil, err
	}

	status, settled := mapGatewayStatus(resp.Status)
	if !settled && status == "" {
		// Gateway still reports in-progress, keep the stored view
		return t, nil
	}

	if err := s.repo.UpdateStatus(ctx, merchantOrderID, status, resp.TransactionID, resp.OrderID); err != nil {
		return nil, err
	}

	log.Info().
		Str("merchant_order_id", merchantOrderID).
		Str("status", status).
		Msg("Transaction refreshed from gateway")

	return s.repo.GetByMerchantOrderID(ctx, merchantOrderID)
}

// mapGatewayStatus normalizes the gateway's free-form status string. The
// second return reports whether the status is settled.
func mapGatewayStatus(raw string) (string, bool) {
	low := strings.ToLower(raw)
	switch {
	case strings.Contains(low, "success"):
		return "succeeded", true
	case strings.Contains(low, "cancel"):
		return "cancelled", true
	case strings.Contains(low, "fail"), strings.Contains(low, "error"):
		return "failed", true
	}
	return "", false
}
