package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize_MessageSniffing(t *testing.T) {
	cases := []struct {
		message string
		want    ErrorCategory
	}{
		{"request timeout after 5s", ErrorCategoryTimeout},
		{"connection refused", ErrorCategoryNetwork},
		{"dial tcp: no route to host", ErrorCategoryNetwork},
		{"rate limit exceeded, retry later", ErrorCategoryRateLimit},
		{"order quantity below lot size", ErrorCategoryLotSize},
		{"notional below minimum", ErrorCategoryLotSize},
		{"something else entirely", ErrorCategoryExchange},
	}

	for _, tc := range cases {
		tradeErr := Categorize(errors.New(tc.message), "executor", "place order")
		assert.Equal(t, tc.want, tradeErr.Category, "message %q", tc.message)
	}
}

func TestCategorize_PreservesExistingTradeError(t *testing.T) {
	orig := New(ErrorCategoryLotSize, "executor", "format quantity", "below minimum")
	again := Categorize(orig, "executor", "place order")
	assert.Equal(t, ErrorCategoryLotSize, again.Category)
}

func TestReason_RendersCategoryAndMessage(t *testing.T) {
	err := New(ErrorCategoryValidation, "executor", "execute", "no approved risk assessment")
	reason := Reason(err)
	assert.Contains(t, reason, "VALIDATION")
	assert.Contains(t, reason, "no approved risk assessment")

	assert.NotEmpty(t, Reason(errors.New("plain")))
}

func TestWrap_UnwrapsToUnderlying(t *testing.T) {
	underlying := errors.New("boom")
	wrapped := Wrap(underlying, ErrorCategoryExchange, "gateway", "cancel")
	assert.ErrorIs(t, wrapped, underlying)
}
