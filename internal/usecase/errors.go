package usecase

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ecshop/internal/domain/model"
	"ecshop/internal/payment"
	repo "ecshop/internal/repository"
)

type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    defaultCode(status),
		Message: message,
	}
}

func NewCodedError(status int, code string, message string, details map[string]any) *HTTPError {
	return &HTTPError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func defaultCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return "INTERNAL_ERROR"
	}
}

// ドメインエラーをHTTPErrorに変換。知らないエラーは500
func toHTTPError(err error) error {
	if err == nil {
		return nil
	}
	if he, ok := AsHTTPError(err); ok {
		return he
	}

	var it *model.InvalidTransitionError
	if errors.As(err, &it) {
		return NewCodedError(http.StatusBadRequest, "INVALID_TRANSITION", it.Error(), map[string]any{
			"current_status":    it.From,
			"requested_status":  it.To,
			"valid_transitions": it.Valid,
		})
	}

	var pv *payment.ValidationError
	if errors.As(err, &pv) {
		return NewCodedError(http.StatusBadRequest, "INVALID_PAYMENT_DATA", "Invalid payment data", map[string]any{
			"errors": pv.Errors,
		})
	}

	switch {
	case errors.Is(err, model.ErrValidation):
		return NewCodedError(http.StatusBadRequest, "VALIDATION_ERROR", reason(err, model.ErrValidation, "Validation failed"), nil)
	case errors.Is(err, model.ErrEmptyCart):
		return NewCodedError(http.StatusBadRequest, "EMPTY_CART", "Cart is empty", nil)
	case errors.Is(err, model.ErrItemNotFound):
		return NewCodedError(http.StatusNotFound, "ITEM_NOT_FOUND", "Item not found in cart", nil)
	case errors.Is(err, model.ErrProductUnavailable):
		return NewCodedError(http.StatusBadRequest, "PRODUCT_UNAVAILABLE", reason(err, model.ErrProductUnavailable, "Product is not available"), nil)
	case errors.Is(err, model.ErrInsufficientStock):
		return NewCodedError(http.StatusBadRequest, "INSUFFICIENT_STOCK", reason(err, model.ErrInsufficientStock, "Insufficient stock"), nil)
	case errors.Is(err, model.ErrOutOfStock):
		return NewCodedError(http.StatusBadRequest, "OUT_OF_STOCK", reason(err, model.ErrOutOfStock, "Insufficient stock"), nil)
	case errors.Is(err, model.ErrInvalidPaymentData):
		return NewCodedError(http.StatusBadRequest, "INVALID_PAYMENT_DATA", "Invalid payment data", nil)
	case errors.Is(err, model.ErrPaymentFailed):
		return NewCodedError(http.StatusBadRequest, "PAYMENT_FAILED", "Payment failed", nil)
	case errors.Is(err, model.ErrInvalidTransition):
		return NewCodedError(http.StatusBadRequest, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, model.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, repo.ErrStaleState):
		return NewHTTPError(http.StatusConflict, "order was modified concurrently")
	}
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: "db error",
		Details: map[string]any{"cause": err.Error()},
	}
}

// "sentinel: 詳細" の詳細部分だけ取り出す
func reason(err error, sentinel error, fallback string) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return fallback
}
