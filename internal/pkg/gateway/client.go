package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds payment gateway configuration
type Config struct {
	BaseURL string
	SaltKey string
	AppID   string
	Timeout time.Duration
}

// Client talks to the hosted-checkout payment gateway
type Client struct {
	httpClient *http.Client
	config     Config
}

// Customer describes the buyer attached to an order
type Customer struct {
	BuyerName string `json:"buyer_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
}

// InitiateRequest represents a payment initiation request.
// Amount is in minor currency units.
type InitiateRequest struct {
	Amount          int64    `json:"amount"`
	MerchantOrderID string   `json:"merchantOrderId"`
	Channel         string   `json:"channel"`
	Purpose         string   `json:"purpose"`
	Customer        Customer `json:"customer"`
}

// InitiateResponse represents a payment initiation response
type InitiateResponse struct {
	PaymentURL string `json:"payment_url"`
}

// StatusResponse represents a transaction status response
type StatusResponse struct {
	Status        string `json:"status"`
	OrderID       string `json:"orderId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
}

// NewClient creates a new gateway client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	cfg.Timeout = timeout

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// Initiate creates a payment on the gateway and returns the hosted checkout
// URL. Succeeds only on a 2xx response carrying payment_url; everything else
// is an error with the gateway diagnostic embedded verbatim.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("validation error: amount must be > 0")
	}
	if strings.TrimSpace(req.MerchantOrderID) == "" {
		return nil, fmt.Errorf("validation error: merchantOrderId must be non-empty")
	}
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("gateway client is not initialized")
	}
	if strings.TrimSpace(c.config.BaseURL) == "" {
		return nil, fmt.Errorf("gateway config error: base_url is empty")
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode initiate request: %w", err)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/initiate-payment-android"

	body, status, err := c.post(ctx, endpoint, jsonData)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("gateway returned status %d: %s", status, string(body))
	}

	var out InitiateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid gateway response: %s", string(body))
	}
	if strings.TrimSpace(out.PaymentURL) == "" {
		return nil, fmt.Errorf("missing payment_url in response: %s", string(body))
	}

	return &out, nil
}

// CheckStatus queries the current status of a previously created order.
// The gateway expects a POST with the order id as a query parameter and no
// body.
func (c *Client) CheckStatus(ctx context.Context, merchantOrderID string) (*StatusResponse, error) {
	if strings.TrimSpace(merchantOrderID) == "" {
		return nil, fmt.Errorf("validation error: merchantOrderId must be non-empty")
	}
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("gateway client is not initialized")
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/transaction-status-android?merchantOrderId=" +
		url.QueryEscape(merchantOrderID)

	body, status, err := c.post(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("gateway returned status %d: %s", status, string(body))
	}

	var out StatusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid gateway response: %s", string(body))
	}
	if strings.TrimSpace(out.Status) == "" {
		var gwErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &gwErr) == nil && gwErr.Error != "" {
			return nil, fmt.Errorf("gateway error: %s", gwErr.Error)
		}
		return nil, fmt.Errorf("missing status in response: %s", string(body))
	}

	return &out, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewBuffer(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.SaltKey != "" {
		req.Header.Set("Live-Salt-Key1", c.config.SaltKey)
	}
	if c.config.AppID != "" {
		req.Header.Set("appId", c.config.AppID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	return bytes.TrimSpace(body), resp.StatusCode, nil
}
