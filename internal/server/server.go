package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ecshop/internal/config"
	"ecshop/internal/infra/cache"
	"ecshop/internal/logger"
	"ecshop/internal/payment"
	"ecshop/internal/validator"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// サーバーが必要とする外部リソース
type Deps struct {
	Config  config.Config
	Log     *zap.Logger
	DB      *gorm.DB
	Cache   cache.ProductCache
	Gateway payment.Gateway
}

// echoを組み立ててルートを全部登録する
func New(d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Cache == nil {
		d.Cache = cache.NoopProductCache{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = d.Config.IsDevelopment()
	e.Validator = validator.NewRequestValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(logger.RequestLogger(d.Log))

	RegisterRoutes(e, d)
	return e
}

// ctxがキャンセルされたら止める
func Start(ctx context.Context, e *echo.Echo, addr string, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	//決済待ちのリクエストが終わるまで待つ
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("server shutting down")
	return e.Shutdown(shutdownCtx)
}
