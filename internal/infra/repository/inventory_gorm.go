package repository

import (
	"context"

	"ecshop/internal/domain/model"
	repo "ecshop/internal/repository"

	"gorm.io/gorm"
)

// productsのstock列だけを扱う。減算は条件付きUPDATE1回で行い、読んでから書くことはしない
type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

func (r *InventoryGormRepository) SetStock(ctx context.Context, productID int64, newStock int64) error {
	n, err := r.updateStock(r.db.WithContext(ctx).Where("id = ?", productID), newStock)
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 0行ならfalse（在庫不足か非公開）。理由はInventoryLedgerが調べ直す
func (r *InventoryGormRepository) DecreaseStockIfAvailable(ctx context.Context, productID int64, qty int64) (bool, error) {
	q := r.db.WithContext(ctx).Where("id = ? AND is_active = ? AND stock >= ?", productID, true, qty)
	n, err := r.updateStock(q, gorm.Expr("stock - ?", qty))
	return n == 1, err
}

// 論理削除済みの商品にも戻す
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	q := r.db.WithContext(ctx).Unscoped().Where("id = ?", productID)
	n, err := r.updateStock(q, gorm.Expr("stock + ?", qty))
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	return r.db.WithContext(ctx).Create(&adj).Error
}

func (r *InventoryGormRepository) updateStock(q *gorm.DB, value any) (int64, error) {
	res := q.Model(&model.Product{}).Update("stock", value)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
