package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ecshop/internal/config"
	"ecshop/internal/infra/cache"
	"ecshop/internal/infra/db"
	"ecshop/internal/logger"
	"ecshop/internal/payment"
	"ecshop/internal/server"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	//.envは無くても良い（本番は環境変数）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.GoEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := db.Migrate(gormDB); err != nil {
		log.Fatal("db migrate failed", zap.Error(err))
	}

	//REDIS_ADDRがあれば商品キャッシュを使う
	var productCache cache.ProductCache = cache.NoopProductCache{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis unavailable, product cache disabled", zap.Error(err))
		} else {
			productCache = cache.NewRedisProductCache(rdb)
		}
	}

	gateway := payment.NewSimulator(
		payment.WithDelay(cfg.PaymentDelay),
		payment.WithSuccessRate(cfg.PaymentSuccessRate),
	)

	e := server.New(server.Deps{
		Config:  cfg,
		Log:     log,
		DB:      gormDB,
		Cache:   productCache,
		Gateway: gateway,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.Port
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}

	if err := server.Start(ctx, e, addr, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
