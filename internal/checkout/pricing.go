package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// Default coupon rule: a flat 50 off any selection above 50.
var (
	DefaultCouponThreshold = decimal.NewFromInt(50)
	DefaultCouponDiscount  = decimal.NewFromInt(50)
)

// Pricing holds the flat coupon rule.
type Pricing struct {
	Threshold decimal.Decimal
	Discount  decimal.Decimal
}

// DefaultPricing returns the default coupon rule.
func DefaultPricing() Pricing {
	return Pricing{Threshold: DefaultCouponThreshold, Discount: DefaultCouponDiscount}
}

// Quote is the priced view of a checkout selection.
type Quote struct {
	Items     []domain.LineItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Discount  decimal.Decimal   `json:"discount"`
	Total     decimal.Decimal   `json:"total"`
}

// Quote prices the selected items. The discount is fixed, applies only to a
// non-empty selection whose subtotal is strictly above the threshold, and
// never takes the total below zero.
func (p Pricing) Quote(selected []domain.LineItem) Quote {
	raw := domain.TotalAmount(selected)

	discount := decimal.Zero
	if len(selected) > 0 && raw.GreaterThan(p.Threshold) {
		discount = p.Discount
	}

	total := raw.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Quote{
		Items:     selected,
		ItemCount: domain.ItemCount(selected),
		Subtotal:  raw,
		Discount:  discount,
		Total:     total,
	}
}
