package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ecshop/internal/domain/model"
	"ecshop/internal/infra/cache"
	repo "ecshop/internal/repository"

	"go.uber.org/zap"
)

type AdminOrderUsecase struct {
	tx     repo.TransactionManager
	orders repo.OrderRepository
	cache  cache.ProductCache
	log    *zap.Logger
	now    func() time.Time
}

func NewAdminOrderUsecase(tx repo.TransactionManager, orders repo.OrderRepository, productCache cache.ProductCache, log *zap.Logger) *AdminOrderUsecase {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminOrderUsecase{tx: tx, orders: orders, cache: productCache, log: log, now: time.Now}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

type AdminOrderListInput struct {
	Page          int
	Limit         int
	Status        string
	PaymentStatus string
	UserID        *int64
	From          string
	To            string
	SortBy        string
	SortOrder     string
}

type AdminOrderListOutput struct {
	Items []OrderOutput   `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Stats repo.OrderStats `json:"stats"`
}

type OrderStatsOutput struct {
	Period    string    `json:"period"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	repo.OrderStats
}

// 注文一覧（全体の集計付き）
func (u *AdminOrderUsecase) List(ctx context.Context, in AdminOrderListInput) (AdminOrderListOutput, error) {
	// page/limitの最低限チェック
	if in.Page < 1 {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	f := repo.AdminOrderListFilter{
		Page:      in.Page,
		Limit:     in.Limit,
		UserID:    in.UserID,
		SortBy:    in.SortBy,
		SortOrder: strings.ToLower(strings.TrimSpace(in.SortOrder)),
	}
	if strings.TrimSpace(in.Status) != "" {
		st, err := model.ParseOrderStatus(in.Status)
		if err != nil {
			return AdminOrderListOutput{}, toHTTPError(err)
		}
		f.Status = string(st)
	}
	if ps := strings.ToLower(strings.TrimSpace(in.PaymentStatus)); ps != "" {
		switch model.PaymentStatus(ps) {
		case model.PaymentStatusPending, model.PaymentStatusPaid, model.PaymentStatusFailed, model.PaymentStatusRefunded:
			f.PaymentStatus = ps
		default:
			return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_status")
		}
	}
	if f.SortOrder != "" && f.SortOrder != "asc" && f.SortOrder != "desc" {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort_order")
	}
	if t, ok := parseDateTimeRFC3339(in.From); ok {
		f.From = t
	} else if strings.TrimSpace(in.From) != "" {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid from")
	}
	if t, ok := parseDateTimeRFC3339(in.To); ok {
		f.To = t
	} else if strings.TrimSpace(in.To) != "" {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid to")
	}

	orders, total, err := u.orders.ListAdmin(ctx, f)
	if err != nil {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	stats, err := u.orders.Stats(ctx, nil)
	if err != nil {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		outs = append(outs, toOrderOutput(o))
	}
	return AdminOrderListOutput{
		Items: outs,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
		Stats: stats,
	}, nil
}

// 直近periodDays日の集計
func (u *AdminOrderUsecase) Stats(ctx context.Context, periodDays int) (OrderStatsOutput, error) {
	if periodDays < 1 || periodDays > 365 {
		return OrderStatsOutput{}, NewHTTPError(http.StatusBadRequest, "invalid period")
	}

	end := u.now()
	start := end.AddDate(0, 0, -periodDays)
	stats, err := u.orders.Stats(ctx, &start)
	if err != nil {
		return OrderStatsOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return OrderStatsOutput{
		Period:     fmt.Sprintf("%d days", periodDays),
		StartDate:  start,
		EndDate:    end,
		OrderStats: stats,
	}, nil
}

// ステータス更新。遷移表に無いものは拒否、支払済みのキャンセルは在庫戻し＋返金
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	target, err := model.ParseOrderStatus(in.Status)
	if err != nil {
		return OrderOutput{}, toHTTPError(err)
	}

	var out model.Order
	var released []int64

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 行ロックを取ってから判定
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		o.Items = items

		before := o
		if err := model.Transition(&o, target); err != nil {
			return err
		}

		// 支払済みのキャンセルは在庫を戻して返金
		if target == model.OrderStatusCancelled && before.PaymentStatus == model.PaymentStatusPaid {
			ledger := NewInventoryLedger(r.Products(), r.Inventory())
			for _, it := range items {
				if err := ledger.Release(ctx, it.ProductID, it.Quantity); err != nil {
					return err
				}
				released = append(released, it.ProductID)
			}
			o.PaymentStatus = model.PaymentStatusRefunded
		}

		// ステータス更新
		if err := r.Orders().UpdateState(ctx, o, before.Status); err != nil {
			return err
		}

		//監査ログ（UPDATE_ORDER_STATUS）
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   orderStateJSON(before),
			AfterJSON:    orderStateJSON(o),
			CreatedAt:    time.Now(),
		}); err != nil {
			return err
		}

		o.UpdatedAt = u.now()
		out = o
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			u.log.Error("update order status failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
		return OrderOutput{}, toHTTPError(err)
	}

	if len(released) > 0 {
		if err := u.cache.Delete(ctx, released...); err != nil {
			u.log.Warn("product cache delete failed", zap.Int64s("product_ids", released), zap.Error(err))
		}
	}
	u.log.Info("order status updated",
		zap.Int64("order_id", orderID),
		zap.Int64("admin_user_id", actorAdminUserID),
		zap.String("status", string(out.Status)),
	)
	return toOrderOutput(out), nil
}

func orderStateJSON(o model.Order) string {
	return fmt.Sprintf(`{"status":%q,"payment_status":%q}`, o.Status, o.PaymentStatus)
}

func isDomainError(err error) bool {
	return errors.Is(err, model.ErrInvalidTransition) ||
		errors.Is(err, model.ErrValidation) ||
		errors.Is(err, repo.ErrNotFound) ||
		errors.Is(err, repo.ErrStaleState)
}

// 期間パラメータ（RFC3339）
func parseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	return &t, true
}
