package repository

import (
	"context"

	"ecshop/internal/domain/model"
)

type CartRepository interface {
	// 明細込みで返す。無ければ作成
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error)
	FindByUserID(ctx context.Context, userID int64) (model.Cart, error)
	// 明細と合計を丸ごと保存
	Save(ctx context.Context, cart model.Cart) error
	Clear(ctx context.Context, cartID int64) error
}
