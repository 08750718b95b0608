package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineRequest struct {
	ProductID string          `json:"product_id" validate:"required,max=64"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	Method    string          `json:"method" validate:"omitempty,oneof=cod card esewa"`
}

type selectionRequest struct {
	ProductIDs []string `json:"product_ids" validate:"min=1,dive,required"`
}

func TestValidate_Success(t *testing.T) {
	err := Validate(lineRequest{ProductID: "p1", Price: decimal.NewFromInt(10), Quantity: 1, Method: "cod"})
	assert.NoError(t, err)
}

func TestValidate_FieldsUseJSONNames(t *testing.T) {
	err := Validate(lineRequest{Price: decimal.NewFromInt(10), Quantity: 0})

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["product_id"])
	assert.Equal(t, "must be greater than or equal to 1", fields["quantity"])
}

func TestValidate_NegativeDecimalRejected(t *testing.T) {
	err := Validate(lineRequest{ProductID: "p1", Price: decimal.RequireFromString("-0.01"), Quantity: 1})

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Contains(t, valErr.Fields(), "price")
}

func TestValidate_OneOf(t *testing.T) {
	err := Validate(lineRequest{ProductID: "p1", Quantity: 1, Method: "bitcoin"})

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "must be one of: cod card esewa", valErr.Fields()["method"])
}

func TestValidate_SliceMin(t *testing.T) {
	err := Validate(selectionRequest{})

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "must contain at least 1 entries", valErr.Fields()["product_ids"])
	assert.Contains(t, valErr.Error(), "field 'product_ids'")
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		valErr  bool
	}{
		{"valid", `{"product_id":"p1","price":"12.50","quantity":2}`, false, false},
		{"numeric price", `{"product_id":"p1","price":12.5,"quantity":2}`, false, false},
		{"malformed json", `{"product_id":`, true, false},
		{"unknown field", `{"product_id":"p1","quantity":1,"discount":5}`, true, false},
		{"fails validation", `{"product_id":"","quantity":1}`, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst lineRequest
			err := DecodeAndValidate(req, &dst)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "12.5", dst.Price.String())
				return
			}
			require.Error(t, err)
			var valErr *ValidationError
			assert.Equal(t, tt.valErr, errors.As(err, &valErr))
		})
	}
}
