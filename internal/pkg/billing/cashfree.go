package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/parkorbit/parkorbit/internal/pkg/env"
)

const (
	defaultCashfreeBaseURL    = "https://sandbox.cashfree.com/pg"
	defaultCashfreeAPIVersion = "2023-08-01"
)

// GatewayClient is the thin adapter the lifecycle manager and the
// reconciliation coordinator talk to. No business logic lives behind it.
type GatewayClient interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
	GetOrder(ctx context.Context, orderID string) (*GatewayOrder, error)
}

// CreateOrderRequest carries everything needed to open a checkout attempt
// with the gateway. ReturnURLTemplate may contain "{order_id}" which is
// substituted before sending.
type CreateOrderRequest struct {
	OrderID           string
	Amount            float64
	Currency          string
	Customer          OrderCustomer
	ReturnURLTemplate string
	Note              string
	Tags              map[string]string
}

type OrderCustomer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// GatewayOrder is the gateway's snapshot of one order. It is never the
// primary source of truth for local state; local state is updated from
// the inbound signal first and only corroborated against this.
type GatewayOrder struct {
	OrderID          string
	CFOrderID        string
	PaymentSessionID string
	Status           string
	Amount           float64
	Currency         string
}

// CashfreeClient implements GatewayClient against the Cashfree PG API.
type CashfreeClient struct {
	ClientID     string
	ClientSecret string
	APIVersion   string
	BaseURL      string

	HTTPClient *http.Client
}

func NewCashfreeClientFromEnv() *CashfreeClient {
	timeout := 15 * time.Second
	if raw := strings.TrimSpace(env.GetEnv("CASHFREE_TIMEOUT_SECONDS", "")); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	return &CashfreeClient{
		ClientID:     strings.TrimSpace(env.GetEnv("CASHFREE_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("CASHFREE_CLIENT_SECRET", "")),
		APIVersion:   strings.TrimSpace(env.GetEnv("CASHFREE_API_VERSION", defaultCashfreeAPIVersion)),
		BaseURL:      strings.TrimRight(env.GetEnv("CASHFREE_BASE_URL", defaultCashfreeBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type cashfreeOrderResponse struct {
	OrderID          string  `json:"order_id"`
	CFOrderID        string  `json:"cf_order_id"`
	PaymentSessionID string  `json:"payment_session_id"`
	OrderStatus      string  `json:"order_status"`
	OrderAmount      float64 `json:"order_amount"`
	OrderCurrency    string  `json:"order_currency"`
}

type cashfreeErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

func (c *CashfreeClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	returnURL := strings.ReplaceAll(req.ReturnURLTemplate, "{order_id}", req.OrderID)

	body := map[string]any{
		"order_id":       req.OrderID,
		"order_amount":   req.Amount,
		"order_currency": req.Currency,
		"customer_details": map[string]string{
			"customer_id":    req.Customer.ID,
			"customer_name":  req.Customer.Name,
			"customer_email": req.Customer.Email,
			"customer_phone": req.Customer.Phone,
		},
	}
	if returnURL != "" {
		body["order_meta"] = map[string]string{"return_url": returnURL}
	}
	if req.Note != "" {
		body["order_note"] = req.Note
	}
	if len(req.Tags) > 0 {
		body["order_tags"] = req.Tags
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	out, err := c.do(ctx, http.MethodPost, "/orders", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CashfreeClient) GetOrder(ctx context.Context, orderID string) (*GatewayOrder, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, &GatewayRequestError{Message: "order id is required"}
	}
	return c.do(ctx, http.MethodGet, "/orders/"+id, nil)
}

func (c *CashfreeClient) checkConfig() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return &GatewayConfigError{Missing: "CASHFREE_CLIENT_ID/CASHFREE_CLIENT_SECRET"}
	}
	return nil
}

func (c *CashfreeClient) do(ctx context.Context, method, path string, body io.Reader) (*GatewayOrder, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-client-id", c.ClientID)
	req.Header.Set("x-client-secret", c.ClientSecret)
	req.Header.Set("x-api-version", c.APIVersion)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &GatewayRequestError{Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var gwErr cashfreeErrorResponse
		msg := strings.TrimSpace(string(respBody))
		if err := json.Unmarshal(respBody, &gwErr); err == nil && gwErr.Message != "" {
			msg = gwErr.Message
		}
		return nil, &GatewayRequestError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out cashfreeOrderResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &GatewayRequestError{Err: fmt.Errorf("invalid gateway response: %w", err)}
	}

	return &GatewayOrder{
		OrderID:          out.OrderID,
		CFOrderID:        out.CFOrderID,
		PaymentSessionID: out.PaymentSessionID,
		Status:           out.OrderStatus,
		Amount:           out.OrderAmount,
		Currency:         out.OrderCurrency,
	}, nil
}
