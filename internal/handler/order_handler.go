package handler

import (
	"net/http"

	"ecshop/internal/config"
	"ecshop/internal/domain/model"
	"ecshop/internal/middleware"
	"ecshop/internal/repository"
	"ecshop/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const headerIdempotencyKey = "X-Idempotency-Key"

type OrderHandler struct {
	orders   *usecase.OrderUsecase
	checkout *usecase.CheckoutUsecase
	admin    *usecase.AdminOrderUsecase
	limiter  *middleware.RateLimiter
}

func NewOrderHandler(
	orders *usecase.OrderUsecase,
	checkout *usecase.CheckoutUsecase,
	admin *usecase.AdminOrderUsecase,
	limiter *middleware.RateLimiter,
) *OrderHandler {
	return &OrderHandler{orders: orders, checkout: checkout, admin: admin, limiter: limiter}
}

type ShippingAddressRequest struct {
	Street  string `json:"street" validate:"required,max=200"`
	City    string `json:"city" validate:"required,max=50"`
	State   string `json:"state" validate:"required,max=50"`
	ZipCode string `json:"zip_code" validate:"required,zip_code"`
	Country string `json:"country" validate:"required,max=50"`
}

type PaymentDataRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	CardNumber string          `json:"card_number"`
	ExpiryDate string          `json:"expiry_date"`
	CVV        string          `json:"cvv"`
}

type CheckoutRequest struct {
	ShippingAddress ShippingAddressRequest `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method" validate:"required,oneof=credit_card debit_card paypal bank_transfer"`
	PaymentData     PaymentDataRequest     `json:"payment_data"`
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))

	g.GET("", h.list)
	g.GET("/:id", h.detail)

	if h.limiter != nil {
		g.POST("/checkout", h.create, h.limiter.Middleware())
	} else {
		g.POST("/checkout", h.create)
	}

	g.PATCH("/:id/status", h.updateStatus, middleware.AdminRoleGuard())
}

func (h *OrderHandler) create(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req CheckoutRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	idemKey := c.Request().Header.Get(headerIdempotencyKey)

	out, err := h.checkout.Checkout(c.Request().Context(), userID, usecase.CheckoutInput{
		ShippingAddress: model.ShippingAddress{
			Street:  req.ShippingAddress.Street,
			City:    req.ShippingAddress.City,
			State:   req.ShippingAddress.State,
			ZipCode: req.ShippingAddress.ZipCode,
			Country: req.ShippingAddress.Country,
		},
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
		PaymentData: usecase.PaymentDataInput{
			Amount:     req.PaymentData.Amount,
			Currency:   req.PaymentData.Currency,
			CardNumber: req.PaymentData.CardNumber,
			ExpiryDate: req.PaymentData.ExpiryDate,
			CVV:        req.PaymentData.CVV,
		},
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return writeError(c, err)
	}

	if idemKey != "" {
		c.Response().Header().Set(headerIdempotencyKey, idemKey)
	}
	if out.Replayed {
		return c.JSON(http.StatusOK, out)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return writeError(c, err)
	}

	page, err := queryInt(c, "page", 1)
	if err != nil {
		return writeError(c, err)
	}
	limit, err := queryInt(c, "limit", 10)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.orders.ListMyOrders(c.Request().Context(), userID, usecase.ListMyOrdersInput{
		Page:   page,
		Limit:  limit,
		Status: c.QueryParam("status"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return writeError(c, err)
	}

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.orders.GetMyOrderDetail(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// /admin/orders/:id/status と同じガードを通す
func (h *OrderHandler) updateStatus(c echo.Context) error {
	return updateOrderStatus(c, h.admin)
}
