package server

import (
	"ecshop/internal/handler"
	"ecshop/internal/infra/repository"
	"ecshop/internal/middleware"
	"ecshop/internal/usecase"
	"ecshop/internal/validator"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, d Deps) {
	cfg := d.Config

	//Repository（GORM実装）
	userRepo := repository.NewUserGormRepository(d.DB)
	productRepo := repository.NewProductGormRepository(d.DB)
	inventoryRepo := repository.NewInventoryGormRepository(d.DB)
	cartRepo := repository.NewCartGormRepository(d.DB)
	orderRepo := repository.NewOrderGormRepository(d.DB)
	auditRepo := repository.NewAuditLogGormRepository(d.DB)
	txm := repository.NewTxManagerGorm(d.DB)

	//Usecase
	authUC := usecase.NewAuthUsecase(cfg, userRepo, auditRepo, validator.NewAuthValidator(userRepo))
	productUC := usecase.NewProductUsecase(productRepo, txm, d.Cache, d.Log)
	cartUC := usecase.NewCartUsecase(txm, cartRepo, productRepo)
	orderUC := usecase.NewOrderUsecase(orderRepo)
	auditUC := usecase.NewAuditUsecase(auditRepo)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, orderRepo, d.Cache, d.Log)
	checkoutUC := usecase.NewCheckoutUsecase(usecase.CheckoutDeps{
		Tx:        txm,
		Carts:     cartRepo,
		Products:  productRepo,
		Inventory: inventoryRepo,
		Orders:    orderRepo,
		Gateway:   d.Gateway,
		Cache:     d.Cache,
		Log:       d.Log,
	})

	//Handler
	handler.RegisterHealth(e)
	handler.NewAuthHandler(authUC).RegisterRoutes(e)
	handler.NewProductHandler(productUC).RegisterRoutes(e)
	handler.NewCartHandler(cartUC).RegisterRoutes(e, cfg, userRepo)
	handler.NewOrderHandler(
		orderUC,
		checkoutUC,
		adminOrderUC,
		middleware.NewRateLimiter(cfg.CheckoutRatePerMin),
	).RegisterRoutes(e, cfg, userRepo)
	handler.NewAdminProductHandler(productUC).RegisterRoutes(e, cfg, userRepo)
	handler.NewAdminOrderHandler(adminOrderUC).RegisterRoutes(e, cfg, userRepo)
	handler.NewAdminAuditHandler(auditUC).RegisterRoutes(e, cfg, userRepo)
	handler.NewAdminUserHandler(cfg, userRepo, authUC).RegisterRoutes(e)
}
