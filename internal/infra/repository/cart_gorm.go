package repository

import (
	"context"
	"errors"

	"ecshop/internal/domain/model"
	repo "ecshop/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// INSERT ... ON CONFLICT (user_id) DO NOTHING で作ってから FOR UPDATE で読む。
// Tx内なら同じユーザーのカート更新はここで直列になる
func (r *CartGormRepository) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	empty := model.Cart{UserID: userID, TotalAmount: decimal.Zero}
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&empty).Error
	if err != nil {
		return model.Cart{}, err
	}
	return r.find(ctx, userID, true)
}

func (r *CartGormRepository) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	return r.find(ctx, userID, false)
}

func (r *CartGormRepository) find(ctx context.Context, userID int64, lock bool) (model.Cart, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var cart model.Cart
	err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Take(&cart, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	if cart.Items == nil {
		cart.Items = []model.CartItem{}
	}
	return cart, nil
}

// 合計と明細を丸ごと置き換える
func (r *CartGormRepository) Save(ctx context.Context, cart model.Cart) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setCartTotal(tx, cart.ID, cart.TotalAmount); err != nil {
			return err
		}
		if err := tx.Delete(&model.CartItem{}, "cart_id = ?", cart.ID).Error; err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return nil
		}

		rows := make([]model.CartItem, len(cart.Items))
		for i, it := range cart.Items {
			rows[i] = model.CartItem{CartID: cart.ID, ProductID: it.ProductID, Quantity: it.Quantity, CreatedAt: it.CreatedAt}
		}
		return tx.Create(&rows).Error
	})
}

func (r *CartGormRepository) Clear(ctx context.Context, cartID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setCartTotal(tx, cartID, decimal.Zero); err != nil {
			return err
		}
		return tx.Delete(&model.CartItem{}, "cart_id = ?", cartID).Error
	})
}

func setCartTotal(tx *gorm.DB, cartID int64, total decimal.Decimal) error {
	return affectedOrNotFound(tx.Model(&model.Cart{}).Where("id = ?", cartID).Update("total_amount", total))
}
