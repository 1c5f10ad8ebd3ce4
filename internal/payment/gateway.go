package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecshop/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 決済に渡す内容
type Request struct {
	OrderID    int64
	Method     model.PaymentMethod
	Amount     decimal.Decimal
	Currency   string
	CardNumber string
	ExpiryDate string
	CVV        string
}

// 決済成功時の控え
type Receipt struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Message       string          `json:"message"`
	Timestamp     time.Time       `json:"timestamp"`
}

// 決済の窓口。テストでは差し替える。
type Gateway interface {
	Simulate(ctx context.Context, req Request) (Receipt, error)
}

// 決済が通らなかった
type DeclinedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *DeclinedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DeclinedError) Unwrap() []error {
	if e.Cause != nil {
		return []error{model.ErrPaymentFailed, e.Cause}
	}
	return []error{model.ErrPaymentFailed}
}

func IsDeclined(err error) bool {
	var d *DeclinedError
	return errors.As(err, &d)
}
