package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory classifies failures in the trading pipeline. Policy
// rejections (cooldown, dedup, drawdown, ...) are NOT errors - they are
// returned as structured TradeResult values. Categories here cover the
// remaining taxonomy: validation, computation, and execution faults.
type ErrorCategory string

const (
	ErrorCategoryValidation  ErrorCategory = "VALIDATION"
	ErrorCategoryComputation ErrorCategory = "COMPUTATION"

	// Execution fault sub-causes, kept distinguishable so operators can
	// tell "order too small" from "network error".
	ErrorCategoryLotSize   ErrorCategory = "LOT_SIZE"
	ErrorCategoryExchange  ErrorCategory = "EXCHANGE"
	ErrorCategoryNetwork   ErrorCategory = "NETWORK"
	ErrorCategoryTimeout   ErrorCategory = "TIMEOUT"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
)

// TradeError is a categorized error with component/operation context.
type TradeError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *TradeError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

func (e *TradeError) Unwrap() error {
	return e.Underlying
}

func (e *TradeError) IsRetryable() bool {
	return e.Retryable
}

// New creates a categorized trade error without an underlying cause.
func New(category ErrorCategory, component, operation, message string) *TradeError {
	return &TradeError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: isRetryableCategory(category),
	}
}

// Wrap attaches pipeline context to an existing error.
func Wrap(err error, category ErrorCategory, component, operation string) *TradeError {
	if err == nil {
		return nil
	}
	return &TradeError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  isRetryableCategory(category),
	}
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryRateLimit:
		return true
	default:
		return false
	}
}

// Categorize maps a raw gateway error onto the execution-fault taxonomy
// by sniffing the message. The gateway surfaces reason strings that must
// stay distinguishable at the TradeResult boundary, so the category name
// is preserved in the wrapped error text.
func Categorize(err error, component, operation string) *TradeError {
	if err == nil {
		return nil
	}
	if tradeErr, ok := err.(*TradeError); ok {
		return tradeErr
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") ||
		strings.Contains(msg, "dial") || strings.Contains(msg, "dns"):
		return Wrap(err, ErrorCategoryNetwork, component, operation)
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return Wrap(err, ErrorCategoryRateLimit, component, operation)
	case strings.Contains(msg, "lot size") || strings.Contains(msg, "min_qty") ||
		strings.Contains(msg, "minimum") || strings.Contains(msg, "step size") ||
		strings.Contains(msg, "notional"):
		return Wrap(err, ErrorCategoryLotSize, component, operation)
	default:
		return Wrap(err, ErrorCategoryExchange, component, operation)
	}
}

// Reason renders an error as a TradeResult reason string, keeping the
// underlying cause category visible to operators.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if tradeErr, ok := err.(*TradeError); ok {
		return fmt.Sprintf("%s: %v", tradeErr.Category, err)
	}
	return err.Error()
}
