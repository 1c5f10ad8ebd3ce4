package cache

import (
	"context"
	"errors"

	"ecshop/internal/domain/model"
)

// 商品詳細のキャッシュ。カート・チェックアウトは使わない
type ProductCache interface {
	Get(ctx context.Context, productID int64) (model.Product, error)
	Set(ctx context.Context, p model.Product) error
	Delete(ctx context.Context, productIDs ...int64) error
}

var ErrCacheMiss = errors.New("cache miss")

// REDIS_ADDR未設定のとき
type NoopProductCache struct{}

func (NoopProductCache) Get(context.Context, int64) (model.Product, error) {
	return model.Product{}, ErrCacheMiss
}

func (NoopProductCache) Set(context.Context, model.Product) error { return nil }

func (NoopProductCache) Delete(context.Context, ...int64) error { return nil }
