package domain

import "github.com/shopspring/decimal"

// Identity is the opaque key of a signed-in principal.
type Identity string

// NoIdentity means nobody is signed in.
const NoIdentity Identity = ""

// IsSet reports whether the identity names a principal.
func (id Identity) IsSet() bool {
	return id != NoIdentity
}

// DefaultStockCeiling is the quantity ceiling used when a line item has no known stock.
const DefaultStockCeiling = 99

// LineItem represents one product held in a cart.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	// Stock is the optional quantity ceiling; zero means unknown.
	Stock int    `json:"stock,omitempty"`
	Image string `json:"image,omitempty"`
}

// Ceiling returns the quantity ceiling for the item.
func (li LineItem) Ceiling() int {
	if li.Stock > 0 {
		return li.Stock
	}
	return DefaultStockCeiling
}

// Subtotal returns price times quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// ClampQuantity clamps qty to [1, stock], falling back to DefaultStockCeiling
// when stock is zero or negative. The cart store never clamps; callers do.
func ClampQuantity(qty, stock int) int {
	ceiling := stock
	if ceiling <= 0 {
		ceiling = DefaultStockCeiling
	}
	if qty < 1 {
		return 1
	}
	if qty > ceiling {
		return ceiling
	}
	return qty
}

// TotalAmount sums the subtotals of the given items.
func TotalAmount(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ItemCount returns the total number of units across the given items.
func ItemCount(items []LineItem) int {
	var count int
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

// IndexOf returns the index of the item with the given product ID, or -1.
func IndexOf(items []LineItem, productID string) int {
	for i := range items {
		if items[i].ProductID == productID {
			return i
		}
	}
	return -1
}
