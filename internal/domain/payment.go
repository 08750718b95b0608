package domain

import "github.com/shopspring/decimal"

// PaymentMethod identifies how a checkout is paid.
type PaymentMethod string

// Supported payment methods.
const (
	MethodCashOnDelivery PaymentMethod = "cod"
	MethodCard           PaymentMethod = "card"
	MethodEsewa          PaymentMethod = "esewa"
)

// ValidPaymentMethods returns the supported payment methods.
func ValidPaymentMethods() []PaymentMethod {
	return []PaymentMethod{MethodCashOnDelivery, MethodCard, MethodEsewa}
}

// IsValid checks whether the method is supported.
func (m PaymentMethod) IsValid() bool {
	for _, v := range ValidPaymentMethods() {
		if v == m {
			return true
		}
	}
	return false
}

// Finalization status constants.
const (
	FinalizeIdle       = "idle"
	FinalizeConfirming = "confirming"
	FinalizeConfirmed  = "confirmed"
	FinalizeApplied    = "applied"
	FinalizeError      = "error"
	FinalizeAbandoned  = "abandoned"
)

// IsTerminalFinalizeStatus returns true if no further transition can happen.
func IsTerminalFinalizeStatus(status string) bool {
	return status == FinalizeApplied || status == FinalizeError || status == FinalizeAbandoned
}

// ChargeRequest is what a payment gateway needs to start a payment.
type ChargeRequest struct {
	Identity Identity
	Items    []LineItem
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Handoff tells the client how to continue with the external payment.
// Reference is the id the client returns with when finalizing.
type Handoff struct {
	Method      PaymentMethod     `json:"method"`
	Reference   string            `json:"reference,omitempty"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	FormAction  string            `json:"form_action,omitempty"`
	FormFields  map[string]string `json:"form_fields,omitempty"`
}
