package payment_test

import (
	"testing"

	"ecshop/internal/domain/model"
	"ecshop/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCard() payment.Data {
	return payment.Data{
		Method:     model.PaymentMethodCreditCard,
		Amount:     decimal.RequireFromString("25.00"),
		Currency:   "USD",
		CardNumber: "4111 1111 1111 1111",
		ExpiryDate: "12/30",
		CVV:        "123",
	}
}

func TestValidateData_OK(t *testing.T) {
	assert.NoError(t, payment.ValidateData(validCard()))

	d := validCard()
	d.Method = model.PaymentMethodDebitCard
	d.CardNumber = "4111-1111-1111-1111"
	d.CVV = "1234"
	d.Currency = ""
	assert.NoError(t, payment.ValidateData(d))
}

func TestValidateData_NonCardMethodsSkipCardFields(t *testing.T) {
	for _, m := range []model.PaymentMethod{model.PaymentMethodPayPal, model.PaymentMethodBankTransfer} {
		err := payment.ValidateData(payment.Data{Method: m, Amount: decimal.NewFromInt(10)})
		assert.NoError(t, err, m)
	}
}

func TestValidateData_CardFieldsRequired(t *testing.T) {
	err := payment.ValidateData(payment.Data{
		Method: model.PaymentMethodCreditCard,
		Amount: decimal.NewFromInt(10),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidPaymentData)

	var ve *payment.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ElementsMatch(t, []string{
		"Card number is required for card payments",
		"Expiry date is required for card payments",
		"CVV is required for card payments",
	}, ve.Errors)
}

func TestValidateData_Invalid(t *testing.T) {
	tests := []struct {
		name string
		mod  func(d *payment.Data)
		msg  string
	}{
		{"zero amount", func(d *payment.Data) { d.Amount = decimal.Zero }, "Amount must be positive"},
		{"negative amount", func(d *payment.Data) { d.Amount = decimal.NewFromInt(-1) }, "Amount must be positive"},
		{"currency", func(d *payment.Data) { d.Currency = "JPY" }, "Currency must be one of: USD, EUR, GBP, CAD"},
		{"card number", func(d *payment.Data) { d.CardNumber = "4111" }, "Card number must be 16 digits (spaces or dashes allowed)"},
		{"expiry month", func(d *payment.Data) { d.ExpiryDate = "13/30" }, "Expiry date must be in format MM/YY"},
		{"expiry format", func(d *payment.Data) { d.ExpiryDate = "2030-12" }, "Expiry date must be in format MM/YY"},
		{"cvv", func(d *payment.Data) { d.CVV = "12" }, "CVV must be 3 or 4 digits"},
		{"method", func(d *payment.Data) { d.Method = "cash" }, "Payment method must be one of: credit_card, debit_card, paypal, bank_transfer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validCard()
			tt.mod(&d)

			err := payment.ValidateData(d)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalidPaymentData)

			var ve *payment.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Errors, tt.msg)
		})
	}
}
