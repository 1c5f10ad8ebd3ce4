package handler

import (
	"errors"
	"net/http"
	"strconv"

	"ecshop/internal/logger"
	"ecshop/internal/middleware"
	"ecshop/internal/usecase"
	reqvalidator "ecshop/internal/validator"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// OASのSuccess { message: string } の形
type SuccessResponse struct {
	Message string `json:"message"`
}

// {error, code, details...} で返す
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	he, ok := usecase.AsHTTPError(err)
	if !ok {
		c.Set(logger.CtxErrorKey, err.Error())
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}

	body := map[string]any{
		"error": he.Message,
		"code":  he.Code,
	}
	for k, v := range he.Details {
		body[k] = v
	}

	//500の中身は開発環境でだけ見せる
	if he.Status >= http.StatusInternalServerError {
		if cause, ok := he.Details["cause"]; ok {
			c.Set(logger.CtxErrorKey, cause)
		}
		if !c.Echo().Debug {
			body = map[string]any{"error": "internal error", "code": he.Code}
		}
	}

	return c.JSON(he.Status, body)
}

// bind + validate（echo.Validatorが無ければbindだけ）
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return usecase.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	if err := c.Validate(dst); err != nil {
		var ve *reqvalidator.ValidationErrors
		if errors.As(err, &ve) {
			return usecase.NewCodedError(http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", map[string]any{
				"errors": ve.Errors,
			})
		}
		return usecase.NewHTTPError(http.StatusBadRequest, "Validation failed")
	}
	return nil
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	return middleware.UserID(c)
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, usecase.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func paramID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, usecase.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// 認証済みユーザーID。無ければ401
func currentUserID(c echo.Context) (int64, error) {
	id, ok := getUserIDFromContext(c)
	if !ok {
		return 0, usecase.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}
