package handler

import (
	"net/http"

	"ecshop/internal/config"
	"ecshop/internal/middleware"
	"ecshop/internal/repository"
	"ecshop/internal/usecase"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	uc *usecase.CartUsecase
}

func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type addCartRequest struct {
	ProductID int64 `json:"product_id" validate:"required"`
	Quantity  int64 `json:"quantity"`
}

type updateCartRequest struct {
	Quantity int64 `json:"quantity"`
}

// どの操作もカート全体を200で返す
type cartAction func(c echo.Context, userID int64) (usecase.CartResponse, error)

func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/cart", middleware.AuthJWT(cfg), middleware.TokenVersionGuard(userRepo))

	g.GET("", h.handle(h.get))
	g.POST("/add", h.handle(h.add))
	g.PATCH("/update/:product_id", h.handle(h.update))
	g.DELETE("/remove/:product_id", h.handle(h.remove))
	g.DELETE("/clear", h.handle(h.clear))
}

func (h *CartHandler) handle(fn cartAction) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := currentUserID(c)
		if err != nil {
			return writeError(c, err)
		}
		out, err := fn(c, userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, out)
	}
}

func (h *CartHandler) get(c echo.Context, userID int64) (usecase.CartResponse, error) {
	return h.uc.GetCart(c.Request().Context(), userID)
}

func (h *CartHandler) add(c echo.Context, userID int64) (usecase.CartResponse, error) {
	//quantity省略時は1
	req := addCartRequest{Quantity: 1}
	if err := bindAndValidate(c, &req); err != nil {
		return usecase.CartResponse{}, err
	}
	return h.uc.AddToCart(c.Request().Context(), userID, usecase.AddCartInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
}

func (h *CartHandler) update(c echo.Context, userID int64) (usecase.CartResponse, error) {
	productID, err := paramID(c, "product_id")
	if err != nil {
		return usecase.CartResponse{}, err
	}
	var req updateCartRequest
	if err := bindAndValidate(c, &req); err != nil {
		return usecase.CartResponse{}, err
	}
	return h.uc.UpdateCartItem(c.Request().Context(), userID, productID, req.Quantity)
}

func (h *CartHandler) remove(c echo.Context, userID int64) (usecase.CartResponse, error) {
	productID, err := paramID(c, "product_id")
	if err != nil {
		return usecase.CartResponse{}, err
	}
	return h.uc.RemoveFromCart(c.Request().Context(), userID, productID)
}

func (h *CartHandler) clear(c echo.Context, userID int64) (usecase.CartResponse, error) {
	return h.uc.ClearCart(c.Request().Context(), userID)
}
