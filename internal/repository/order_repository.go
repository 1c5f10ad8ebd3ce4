package repository

import (
	"context"
	"time"

	"ecshop/internal/domain/model"

	"github.com/shopspring/decimal"
)

type UserOrderListFilter struct {
	Page   int
	Limit  int
	Status string
}

type AdminOrderListFilter struct {
	Page          int
	Limit         int
	Status        string
	PaymentStatus string
	UserID        *int64
	From          *time.Time
	To            *time.Time
	SortBy        string
	SortOrder     string
}

// 集計結果
type OrderStats struct {
	TotalOrders            int64                         `json:"total_orders"`
	TotalRevenue           decimal.Decimal               `json:"total_revenue"`
	AverageOrderValue      decimal.Decimal               `json:"average_order_value"`
	StatusBreakdown        map[model.OrderStatus]int64   `json:"status_breakdown"`
	PaymentStatusBreakdown map[model.PaymentStatus]int64 `json:"payment_status_breakdown"`
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	//行ロック付き（Tx内で使う）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, f UserOrderListFilter) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// status/payment_status/transaction_id を更新。statusがexpectedのときだけ
	UpdateState(ctx context.Context, order model.Order, expected model.OrderStatus) error

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
	//since以降の集計（nilなら全件）
	Stats(ctx context.Context, since *time.Time) (OrderStats, error)
}

// 明細は作成後に変更しない（価格・名前はスナップショット）
type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)
}
