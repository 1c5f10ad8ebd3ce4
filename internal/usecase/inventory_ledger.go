package usecase

import (
	"context"
	"errors"
	"fmt"

	"ecshop/internal/domain/model"
	repo "ecshop/internal/repository"
)

// 在庫の確認・確定・戻し。Tx内ではTxReposのリポジトリで作る
type InventoryLedger struct {
	products  repo.ProductRepository
	inventory repo.InventoryRepository
}

func NewInventoryLedger(products repo.ProductRepository, inventory repo.InventoryRepository) *InventoryLedger {
	return &InventoryLedger{products: products, inventory: inventory}
}

// 減らさずに確認だけ。見つかった商品は不足時も返す
func (l *InventoryLedger) Reserve(ctx context.Context, productID int64, qty int64) (model.Product, error) {
	p, err := l.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, fmt.Errorf("%w: product %d no longer exists", model.ErrProductUnavailable, productID)
	}
	if err != nil {
		return model.Product{}, err
	}
	if !p.Purchasable() {
		return p, fmt.Errorf("%w: Product %s is no longer available", model.ErrProductUnavailable, p.Name)
	}
	if p.Stock < qty {
		return p, fmt.Errorf("%w: Insufficient stock for %s. Available: %d, Requested: %d", model.ErrOutOfStock, p.Name, p.Stock, qty)
	}
	return p, nil
}

// 条件付きUPDATE1回で減算。負けたら理由を調べ直す
func (l *InventoryLedger) Commit(ctx context.Context, productID int64, qty int64) error {
	ok, err := l.inventory.DecreaseStockIfAvailable(ctx, productID, qty)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	p, err := l.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: product %d no longer exists", model.ErrProductUnavailable, productID)
	}
	if err != nil {
		return err
	}
	if !p.Purchasable() {
		return fmt.Errorf("%w: Product %s is no longer available", model.ErrProductUnavailable, p.Name)
	}
	return fmt.Errorf("%w: Insufficient stock for %s. Available: %d, Requested: %d", model.ErrOutOfStock, p.Name, p.Stock, qty)
}

// キャンセル時の戻し
func (l *InventoryLedger) Release(ctx context.Context, productID int64, qty int64) error {
	if qty <= 0 {
		return nil
	}
	return l.inventory.IncreaseStock(ctx, productID, qty)
}
