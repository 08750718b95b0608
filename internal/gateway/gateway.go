// Package gateway implements the payment handoffs: cash on delivery, hosted
// card checkout through the commerce backend, and the eSewa ePay form.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/domain"
)

// CashOnDelivery needs no external call. Its reference only keys the
// finalization of the attempt.
type CashOnDelivery struct{}

// Method implements checkout.Gateway.
func (CashOnDelivery) Method() domain.PaymentMethod { return domain.MethodCashOnDelivery }

// Charge implements checkout.Gateway.
func (CashOnDelivery) Charge(_ context.Context, _ domain.ChargeRequest) (*domain.Handoff, error) {
	return &domain.Handoff{
		Method:    domain.MethodCashOnDelivery,
		Reference: "cod_" + uuid.NewString(),
	}, nil
}

// SessionCreator opens hosted card checkout sessions.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req domain.ChargeRequest) (*backend.CheckoutSession, error)
}

// Card redirects to a hosted checkout page created by the backend. The
// session id is the reference the backend later confirms.
type Card struct {
	sessions SessionCreator
}

// NewCard creates the card gateway.
func NewCard(sessions SessionCreator) *Card {
	return &Card{sessions: sessions}
}

// Method implements checkout.Gateway.
func (*Card) Method() domain.PaymentMethod { return domain.MethodCard }

// Charge implements checkout.Gateway.
func (c *Card) Charge(ctx context.Context, req domain.ChargeRequest) (*domain.Handoff, error) {
	sess, err := c.sessions.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, err
	}
	return &domain.Handoff{
		Method:      domain.MethodCard,
		Reference:   sess.ID,
		RedirectURL: sess.URL,
	}, nil
}

// EsewaConfig holds the merchant settings for eSewa ePay v2.
type EsewaConfig struct {
	FormURL     string
	ProductCode string
	SecretKey   string
	SuccessURL  string
	FailureURL  string
}

// esewaSignedFields is the field list eSewa expects the signature over.
const esewaSignedFields = "total_amount,transaction_uuid,product_code"

// Esewa builds the signed form the browser posts to eSewa.
type Esewa struct {
	cfg     EsewaConfig
	newUUID func() string
}

// NewEsewa creates the eSewa gateway.
func NewEsewa(cfg EsewaConfig) *Esewa {
	return &Esewa{cfg: cfg, newUUID: uuid.NewString}
}

// Method implements checkout.Gateway.
func (*Esewa) Method() domain.PaymentMethod { return domain.MethodEsewa }

// Charge implements checkout.Gateway.
func (e *Esewa) Charge(_ context.Context, req domain.ChargeRequest) (*domain.Handoff, error) {
	if e.cfg.SecretKey == "" || e.cfg.ProductCode == "" {
		return nil, fmt.Errorf("esewa merchant is not configured")
	}

	txUUID := e.newUUID()
	total := req.Total.StringFixed(2)

	fields := map[string]string{
		"amount":                  total,
		"tax_amount":              "0",
		"product_service_charge":  "0",
		"product_delivery_charge": "0",
		"total_amount":            total,
		"transaction_uuid":        txUUID,
		"product_code":            e.cfg.ProductCode,
		"success_url":             e.cfg.SuccessURL,
		"failure_url":             e.cfg.FailureURL,
		"signed_field_names":      esewaSignedFields,
	}
	fields["signature"] = EsewaSignature(e.cfg.SecretKey, fields)

	return &domain.Handoff{
		Method:     domain.MethodEsewa,
		Reference:  txUUID,
		FormAction: e.cfg.FormURL,
		FormFields: fields,
	}, nil
}

// EsewaSignature signs the fields named by signed_field_names as
// "name=value" pairs joined by commas, with HMAC-SHA256, base64 encoded.
func EsewaSignature(secret string, fields map[string]string) string {
	names := strings.Split(fields["signed_field_names"], ",")
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + fields[name]
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, ",")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
