// Package backend calls the commerce backend's payment endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

// ServiceName labels backend errors and the circuit breaker.
const ServiceName = "commerce-backend"

// Endpoint paths relative to the backend base URL.
const (
	PathConfirmPayment        = "/payment/confirm"
	PathVerifyEsewa           = "/payment/esewa/verify"
	PathCreateCheckoutSession = "/payment/create-checkout-session"
)

// HTTPDoer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy it.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CheckoutSession is the card checkout session created by the backend.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Client talks to the commerce backend. Confirmation calls are not
// idempotent on the backend, so the underlying doer must not retry.
type Client struct {
	http    HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a backend client for baseURL.
func NewClient(doer HTTPDoer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type confirmRequest struct {
	SessionID string `json:"session_id"`
}

type confirmResponse struct {
	ProductIDs []string `json:"productIds"`
	Error      string   `json:"error,omitempty"`
}

// ConfirmPayment confirms a card or wallet checkout session and returns the
// purchased product IDs. An empty list is a successful confirmation.
func (c *Client) ConfirmPayment(ctx context.Context, sessionID string) ([]string, error) {
	var out confirmResponse
	if err := c.post(ctx, PathConfirmPayment, confirmRequest{SessionID: sessionID}, &out); err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	if out.Error != "" {
		return nil, apperrors.PaymentFailed(out.Error)
	}
	if out.ProductIDs == nil {
		out.ProductIDs = []string{}
	}

	c.logger.InfoContext(ctx, "payment confirmed",
		slog.String("session_id", sessionID),
		slog.Int("product_count", len(out.ProductIDs)),
	)
	return out.ProductIDs, nil
}

type verifyRequest struct {
	TransactionUUID string `json:"transaction_uuid"`
}

type verifyResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// VerifyEsewa verifies an eSewa transaction.
func (c *Client) VerifyEsewa(ctx context.Context, transactionUUID string) error {
	var out verifyResponse
	if err := c.post(ctx, PathVerifyEsewa, verifyRequest{TransactionUUID: transactionUUID}, &out); err != nil {
		return fmt.Errorf("verify esewa payment: %w", err)
	}
	if out.Error != "" {
		return apperrors.PaymentFailed(out.Error)
	}
	if out.Success != nil && !*out.Success {
		return apperrors.PaymentFailed("esewa payment was not verified")
	}

	c.logger.InfoContext(ctx, "esewa payment verified", slog.String("transaction_uuid", transactionUUID))
	return nil
}

type checkoutSessionItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

type createCheckoutSessionRequest struct {
	Identity string                `json:"identity"`
	Items    []checkoutSessionItem `json:"items"`
	Discount decimal.Decimal       `json:"discount"`
	Total    decimal.Decimal       `json:"total"`
}

// CreateCheckoutSession asks the backend to open a hosted card checkout for
// the charged items.
func (c *Client) CreateCheckoutSession(ctx context.Context, req domain.ChargeRequest) (*CheckoutSession, error) {
	items := make([]checkoutSessionItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = checkoutSessionItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Image:     it.Image,
		}
	}

	var out CheckoutSession
	body := createCheckoutSessionRequest{
		Identity: string(req.Identity),
		Items:    items,
		Discount: req.Discount,
		Total:    req.Total,
	}
	if err := c.post(ctx, PathCreateCheckoutSession, body, &out); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create checkout session: backend returned no session id")
	}
	return &out, nil
}

// post sends body as JSON and decodes a 2xx response into out. Error
// responses become AppErrors carrying the backend's message.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, ServiceName)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) transportError(err error) error {
	if se, ok := httpclient.AsServerError(err); ok {
		return httpclient.StatusError(se.StatusCode, se.Body, ServiceName)
	}
	if errors.Is(err, httpclient.ErrCircuitOpen) {
		return apperrors.ServiceUnavailable(ServiceName + " is temporarily unavailable")
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return fmt.Errorf("call %s: %w", ServiceName, err)
}
