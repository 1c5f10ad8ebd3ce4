package payment

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"ecshop/internal/domain/model"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	cardNumberRe = regexp.MustCompile(`^\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}$`)
	expiryRe     = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvRe        = regexp.MustCompile(`^\d{3,4}$`)
)

// クライアントから受け取る決済情報
type Data struct {
	Method     model.PaymentMethod `validate:"required,oneof=credit_card debit_card paypal bank_transfer"`
	Amount     decimal.Decimal     `validate:"gt=0"`
	Currency   string              `validate:"omitempty,oneof=USD EUR GBP CAD"`
	CardNumber string              `validate:"omitempty,card_number"`
	ExpiryDate string              `validate:"omitempty,card_expiry"`
	CVV        string              `validate:"omitempty,card_cvv"`
}

// カード払いか
func RequiresCard(m model.PaymentMethod) bool {
	return m == model.PaymentMethodCreditCard || m == model.PaymentMethodDebitCard
}

// 決済データの形式エラー（全項目分）
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid payment data: " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Unwrap() error { return model.ErrInvalidPaymentData }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("card_number", matches(cardNumberRe))
	_ = v.RegisterValidation("card_expiry", matches(expiryRe))
	_ = v.RegisterValidation("card_cvv", matches(cvvRe))

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		d := sl.Current().Interface().(Data)
		if !RequiresCard(d.Method) {
			return
		}
		if d.CardNumber == "" {
			sl.ReportError(d.CardNumber, "CardNumber", "CardNumber", "required", "")
		}
		if d.ExpiryDate == "" {
			sl.ReportError(d.ExpiryDate, "ExpiryDate", "ExpiryDate", "required", "")
		}
		if d.CVV == "" {
			sl.ReportError(d.CVV, "CVV", "CVV", "required", "")
		}
	}, Data{})
	return v
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// 在庫や注文に触る前に呼ぶ
func ValidateData(d Data) error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Errors: []string{err.Error()}}
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, messageFor(fe))
	}
	return &ValidationError{Errors: msgs}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Field() {
	case "Method":
		return "Payment method must be one of: credit_card, debit_card, paypal, bank_transfer"
	case "Amount":
		return "Amount must be positive"
	case "Currency":
		return "Currency must be one of: USD, EUR, GBP, CAD"
	case "CardNumber":
		if fe.Tag() == "required" {
			return "Card number is required for card payments"
		}
		return "Card number must be 16 digits (spaces or dashes allowed)"
	case "ExpiryDate":
		if fe.Tag() == "required" {
			return "Expiry date is required for card payments"
		}
		return "Expiry date must be in format MM/YY"
	case "CVV":
		if fe.Tag() == "required" {
			return "CVV is required for card payments"
		}
		return "CVV must be 3 or 4 digits"
	}
	return fe.Error()
}
