package repository

import (
	"context"
	"errors"
	"time"

	"ecshop/internal/domain/model"
	repo "ecshop/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

// 並び替えに使える列
var adminOrderSortColumns = map[string]string{
	"created_at":   "created_at",
	"createdAt":    "created_at",
	"total_amount": "total_amount",
	"totalAmount":  "total_amount",
	"status":       "status",
	"order_number": "order_number",
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("id = ?", orderID).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// 明細は読まない（OrderItemsで別に引く）
func (r *OrderGormRepository) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID int64, f repo.UserOrderListFilter) ([]model.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Order("created_at desc").
		Order("id desc").
		Scopes(paginate(f.Page, f.Limit)).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}

// 明細は OrderItems().CreateBulk で作る
func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) (int64, error) {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&order).Error; err != nil {
		return 0, err
	}
	return order.ID, nil
}

func (r *OrderGormRepository) UpdateState(ctx context.Context, order model.Order, expected model.OrderStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", order.ID, expected).
		Updates(map[string]interface{}{
			"status":         order.Status,
			"payment_status": order.PaymentStatus,
			"transaction_id": order.TransactionID,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrStaleState
	}
	return nil
}

func (r *OrderGormRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&o).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, err
	}
	return o, true, nil
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.Order{})

	//status 絞り込み
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}

	//user_id 絞り込み
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	//期間絞り込み
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	col, ok := adminOrderSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	desc := f.SortOrder != "asc"

	var items []model.Order
	err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: desc}).
		Order("id desc").
		Scopes(paginate(f.Page, f.Limit)).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}

type statusCount struct {
	Key   string
	Count int64
}

func (r *OrderGormRepository) Stats(ctx context.Context, since *time.Time) (repo.OrderStats, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&model.Order{})
		if since != nil {
			q = q.Where("created_at >= ?", *since)
		}
		return q
	}

	var summary struct {
		TotalOrders  int64
		TotalRevenue decimal.Decimal
	}
	if err := base().
		Select("COUNT(*) AS total_orders, COALESCE(SUM(total_amount), 0) AS total_revenue").
		Scan(&summary).Error; err != nil {
		return repo.OrderStats{}, err
	}

	stats := repo.OrderStats{
		TotalOrders:            summary.TotalOrders,
		TotalRevenue:           summary.TotalRevenue,
		AverageOrderValue:      decimal.Zero,
		StatusBreakdown:        map[model.OrderStatus]int64{},
		PaymentStatusBreakdown: map[model.PaymentStatus]int64{},
	}
	if summary.TotalOrders > 0 {
		stats.AverageOrderValue = summary.TotalRevenue.
			Div(decimal.NewFromInt(summary.TotalOrders)).
			Round(2)
	}

	var byStatus []statusCount
	if err := base().
		Select("status AS key, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return repo.OrderStats{}, err
	}
	for _, s := range byStatus {
		stats.StatusBreakdown[model.OrderStatus(s.Key)] = s.Count
	}

	var byPayment []statusCount
	if err := base().
		Select("payment_status AS key, COUNT(*) AS count").
		Group("payment_status").
		Scan(&byPayment).Error; err != nil {
		return repo.OrderStats{}, err
	}
	for _, s := range byPayment {
		stats.PaymentStatusBreakdown[model.PaymentStatus(s.Key)] = s.Count
	}

	return stats, nil
}
