package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ecshop/internal/logger"
	"ecshop/internal/usecase"
	reqvalidator "ecshop/internal/validator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteError_CodedErrorFlattensDetails(t *testing.T) {
	c, rec := newTestContext(echo.New(), http.MethodGet, "")

	err := usecase.NewCodedError(http.StatusBadRequest, "INVALID_TRANSITION", "Invalid status transition from delivered to pending", map[string]any{
		"current_status":    "delivered",
		"requested_status":  "pending",
		"valid_transitions": []string{},
	})
	require.NoError(t, writeError(c, err))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
	assert.Equal(t, "Invalid status transition from delivered to pending", body["error"])
	assert.Equal(t, "delivered", body["current_status"])
	assert.Equal(t, "pending", body["requested_status"])
	assert.Equal(t, []any{}, body["valid_transitions"])
}

func TestWriteError_UnknownErrorIs500(t *testing.T) {
	c, rec := newTestContext(echo.New(), http.MethodGet, "")

	require.NoError(t, writeError(c, errors.New("boom")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeBody(t, rec)["error"])
	assert.Equal(t, "boom", c.Get(logger.CtxErrorKey))
}

func TestWriteError_InternalDetailsOnlyInDebug(t *testing.T) {
	internal := &usecase.HTTPError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
		Details: map[string]any{"cause": "pq: relation does not exist"},
	}

	e := echo.New()
	c, rec := newTestContext(e, http.MethodGet, "")
	require.NoError(t, writeError(c, internal))
	body := decodeBody(t, rec)
	assert.Equal(t, "internal error", body["error"])
	assert.NotContains(t, body, "cause")
	//ログには残す
	assert.Equal(t, "pq: relation does not exist", c.Get(logger.CtxErrorKey))

	e.Debug = true
	c, rec = newTestContext(e, http.MethodGet, "")
	require.NoError(t, writeError(c, internal))
	assert.Equal(t, "pq: relation does not exist", decodeBody(t, rec)["cause"])
}

func TestBindAndValidate_CollectsFieldErrors(t *testing.T) {
	e := echo.New()
	e.Validator = reqvalidator.NewRequestValidator()
	c, _ := newTestContext(e, http.MethodPost, `{
		"shipping_address": {"street": "1 Main St", "city": "Springfield", "state": "IL", "zip_code": "ABCDE", "country": "US"},
		"payment_method": "cash"
	}`)

	var req CheckoutRequest
	err := bindAndValidate(c, &req)

	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Equal(t, "VALIDATION_ERROR", he.Code)

	fields := map[string]string{}
	for _, fe := range he.Details["errors"].([]reqvalidator.FieldError) {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "must be a valid ZIP code", fields["shipping_address.zip_code"])
	assert.Equal(t, "must be one of: credit_card, debit_card, paypal, bank_transfer", fields["payment_method"])
}

func TestBindAndValidate_BadJSON(t *testing.T) {
	e := echo.New()
	e.Validator = reqvalidator.NewRequestValidator()
	c, _ := newTestContext(e, http.MethodPost, `{"payment_method":`)

	var req CheckoutRequest
	err := bindAndValidate(c, &req)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid body", he.Message)
}

func TestParamID(t *testing.T) {
	e := echo.New()
	for _, tc := range []struct {
		raw string
		ok  bool
	}{{"12", true}, {"0", false}, {"-3", false}, {"x", false}} {
		c, _ := newTestContext(e, http.MethodGet, "")
		c.SetParamNames("id")
		c.SetParamValues(tc.raw)

		id, err := paramID(c, "id")
		if tc.ok {
			require.NoError(t, err)
			assert.Equal(t, int64(12), id)
		} else {
			assert.Error(t, err, tc.raw)
		}
	}
}
