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
	"ecshop/internal/payment"
	repo "ecshop/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// カート→注文→決済→確定 の流れをまとめる
type CheckoutUsecase struct {
	tx        repo.TransactionManager
	carts     repo.CartRepository
	products  repo.ProductRepository
	inventory repo.InventoryRepository
	orders    repo.OrderRepository
	gateway   payment.Gateway
	cache     cache.ProductCache
	log       *zap.Logger
	now       func() time.Time
}

type CheckoutDeps struct {
	Tx        repo.TransactionManager
	Carts     repo.CartRepository
	Products  repo.ProductRepository
	Inventory repo.InventoryRepository
	Orders    repo.OrderRepository
	Gateway   payment.Gateway
	Cache     cache.ProductCache
	Log       *zap.Logger
}

func NewCheckoutUsecase(d CheckoutDeps) *CheckoutUsecase {
	u := &CheckoutUsecase{
		tx:        d.Tx,
		carts:     d.Carts,
		products:  d.Products,
		inventory: d.Inventory,
		orders:    d.Orders,
		gateway:   d.Gateway,
		cache:     d.Cache,
		log:       d.Log,
		now:       time.Now,
	}
	if u.cache == nil {
		u.cache = cache.NoopProductCache{}
	}
	if u.log == nil {
		u.log = zap.NewNop()
	}
	return u
}

type PaymentDataInput struct {
	Amount     decimal.Decimal
	Currency   string
	CardNumber string
	ExpiryDate string
	CVV        string
}

type CheckoutInput struct {
	ShippingAddress model.ShippingAddress
	PaymentMethod   model.PaymentMethod
	PaymentData     PaymentDataInput
	IdempotencyKey  string
}

type CheckoutOutput struct {
	Message string           `json:"message"`
	Order   OrderOutput      `json:"order"`
	Payment *payment.Receipt `json:"payment,omitempty"`
	//同じキーで既に処理済み
	Replayed bool `json:"-"`
}

func (u *CheckoutUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (CheckoutOutput, error) {
	if userID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > 255 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency key")
	}

	// 同じキーなら同じ結果（決済はやり直さない）
	if key != "" {
		if out, found, err := u.replay(ctx, userID, key); err != nil || found {
			return out, err
		}
	}

	cart, err := u.carts.FindByUserID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && cart.IsEmpty()) {
		return CheckoutOutput{}, toHTTPError(model.ErrEmptyCart)
	}
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	pd := payment.Data{
		Method:     in.PaymentMethod,
		Amount:     in.PaymentData.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(in.PaymentData.Currency)),
		CardNumber: strings.TrimSpace(in.PaymentData.CardNumber),
		ExpiryDate: strings.TrimSpace(in.PaymentData.ExpiryDate),
		CVV:        strings.TrimSpace(in.PaymentData.CVV),
	}
	if err := payment.ValidateData(pd); err != nil {
		return CheckoutOutput{}, toHTTPError(err)
	}
	if pd.Currency == "" {
		pd.Currency = payment.DefaultCurrency
	}

	//在庫を読み直してスナップショットを作る（減算はしない）
	ledger := NewInventoryLedger(u.products, u.inventory)
	items := make([]model.OrderItem, 0, len(cart.Items))
	total := decimal.Zero
	for _, ci := range cart.Items {
		p, err := ledger.Reserve(ctx, ci.ProductID, ci.Quantity)
		if err != nil {
			return CheckoutOutput{}, toHTTPError(asInsufficientStock(err))
		}
		it := model.OrderItem{
			ProductID:           p.ID,
			ProductNameSnapshot: p.Name,
			UnitPriceSnapshot:   p.Price,
			Quantity:            ci.Quantity,
		}
		items = append(items, it)
		total = total.Add(it.LineTotal())
	}

	now := u.now()
	order := model.Order{
		OrderNumber:     newOrderNumber(now),
		UserID:          userID,
		TotalAmount:     total,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		Status:          model.OrderStatusPending,
		PaymentStatus:   model.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if key != "" {
		order.IdempotencyKey = &key
	}

	//決済前に pending で確定させる
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		id, err := r.Orders().Create(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		return r.OrderItems().CreateBulk(ctx, id, items)
	})
	if err != nil {
		//同時に同じキーが入った
		if key != "" {
			if out, found, rerr := u.replay(ctx, userID, key); found {
				return out, rerr
			}
		}
		u.log.Error("create order failed", zap.Int64("user_id", userID), zap.Error(err))
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	order.Items = items

	receipt, payErr := u.gateway.Simulate(ctx, payment.Request{
		OrderID:    order.ID,
		Method:     order.PaymentMethod,
		Amount:     total,
		Currency:   pd.Currency,
		CardNumber: pd.CardNumber,
		ExpiryDate: pd.ExpiryDate,
		CVV:        pd.CVV,
	})

	//ここから先はクライアント切断でも書き込みを止めない
	wctx := context.WithoutCancel(ctx)

	if payErr != nil {
		return CheckoutOutput{}, u.paymentFailed(wctx, order, payErr)
	}

	u.log.Info("payment succeeded",
		zap.Int64("order_id", order.ID),
		zap.String("transaction_id", receipt.TransactionID),
		zap.String("amount", total.StringFixed(2)),
	)

	confirmed := order
	err = u.tx.WithinTx(wctx, func(r repo.TxRepos) error {
		next := order
		if err := model.Transition(&next, model.OrderStatusConfirmed); err != nil {
			return err
		}
		next.PaymentStatus = model.PaymentStatusPaid
		next.TransactionID = &receipt.TransactionID
		if err := r.Orders().UpdateState(wctx, next, model.OrderStatusPending); err != nil {
			return err
		}

		committer := NewInventoryLedger(r.Products(), r.Inventory())
		for _, it := range items {
			if err := committer.Commit(wctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		if err := r.Carts().Clear(wctx, cart.ID); err != nil {
			return err
		}
		confirmed = next
		return nil
	})
	if err != nil {
		return CheckoutOutput{}, u.commitFailed(wctx, order, receipt, err)
	}

	u.invalidate(wctx, items)

	return CheckoutOutput{
		Message: "Order placed successfully",
		Order:   toOrderOutput(confirmed),
		Payment: &receipt,
	}, nil
}

// 保存済みの注文の状態で、前回と同じ結果を返す
func (u *CheckoutUsecase) replay(ctx context.Context, userID int64, key string) (CheckoutOutput, bool, error) {
	existing, found, err := u.orders.FindByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return CheckoutOutput{}, false, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !found {
		return CheckoutOutput{}, false, nil
	}

	ref := map[string]any{"order": toOrderRef(existing)}
	switch {
	case existing.PaymentStatus == model.PaymentStatusFailed:
		return CheckoutOutput{}, true, NewCodedError(http.StatusBadRequest, "PAYMENT_FAILED", "Payment failed", ref)
	case existing.Status == model.OrderStatusCancelled && existing.PaymentStatus == model.PaymentStatusRefunded:
		return CheckoutOutput{}, true, NewCodedError(http.StatusConflict, "INSUFFICIENT_STOCK", "Order was cancelled and refunded", ref)
	case existing.Status == model.OrderStatusCancelled:
		return CheckoutOutput{}, true, NewCodedError(http.StatusConflict, "CONFLICT", "Order was cancelled", ref)
	case existing.PaymentStatus == model.PaymentStatusPending:
		//先の要求がまだ決済中
		return CheckoutOutput{}, true, NewCodedError(http.StatusConflict, "CHECKOUT_IN_PROGRESS", "Checkout with this key is still in progress", ref)
	}

	return CheckoutOutput{
		Message:  "Order already processed",
		Order:    toOrderOutput(existing),
		Replayed: true,
	}, true, nil
}

// 決済失敗。注文はpendingのまま、在庫とカートは触らない
func (u *CheckoutUsecase) paymentFailed(ctx context.Context, order model.Order, payErr error) error {
	u.log.Warn("payment failed", zap.Int64("order_id", order.ID), zap.Error(payErr))

	failed := order
	failed.PaymentStatus = model.PaymentStatusFailed
	if err := u.orders.UpdateState(ctx, failed, model.OrderStatusPending); err != nil {
		u.log.Error("mark payment failed", zap.Int64("order_id", order.ID), zap.Error(err))
	} else {
		order = failed
	}

	details := map[string]any{"order": toOrderRef(order)}
	var declined *payment.DeclinedError
	if errors.As(payErr, &declined) {
		details["reason"] = declined.Message
		details["payment_code"] = declined.Code
	}
	return NewCodedError(http.StatusBadRequest, "PAYMENT_FAILED", "Payment failed", details)
}

// 決済後の確定Txが失敗。在庫負けならキャンセル＋返金扱いにする
func (u *CheckoutUsecase) commitFailed(ctx context.Context, order model.Order, receipt payment.Receipt, cause error) error {
	switch {
	case errors.Is(cause, model.ErrOutOfStock), errors.Is(cause, model.ErrProductUnavailable):
		cancelled := order
		if err := model.Transition(&cancelled, model.OrderStatusCancelled); err != nil {
			return toHTTPError(err)
		}
		cancelled.PaymentStatus = model.PaymentStatusRefunded
		cancelled.TransactionID = &receipt.TransactionID
		if err := u.orders.UpdateState(ctx, cancelled, model.OrderStatusPending); err != nil {
			u.log.Error("cancel order after stock loss", zap.Int64("order_id", order.ID), zap.Error(err))
		} else {
			order = cancelled
		}
		u.log.Warn("stock lost after payment, order cancelled",
			zap.Int64("order_id", order.ID),
			zap.String("transaction_id", receipt.TransactionID),
			zap.Error(cause),
		)

		he := toHTTPError(asInsufficientStock(cause)).(*HTTPError)
		he.Status = http.StatusConflict
		he.Details = map[string]any{"order": toOrderRef(order)}
		return he

	case errors.Is(cause, repo.ErrStaleState):
		//決済中に管理者が注文を動かした
		u.log.Warn("order changed during payment", zap.Int64("order_id", order.ID), zap.Error(cause))
		if cur, err := u.orders.FindByID(ctx, order.ID); err == nil {
			if cur.PaymentStatus != model.PaymentStatusPaid {
				refunded := cur
				refunded.PaymentStatus = model.PaymentStatusRefunded
				refunded.TransactionID = &receipt.TransactionID
				if err := u.orders.UpdateState(ctx, refunded, cur.Status); err == nil {
					cur = refunded
				}
			}
			order = cur
		}
		return NewCodedError(http.StatusConflict, "CONFLICT", "order was modified during payment", map[string]any{
			"order": toOrderRef(order),
		})
	}

	u.log.Error("confirm order failed",
		zap.Int64("order_id", order.ID),
		zap.String("transaction_id", receipt.TransactionID),
		zap.Error(cause),
	)
	return NewCodedError(http.StatusInternalServerError, "INTERNAL_ERROR", "db error", map[string]any{
		"order": toOrderRef(order),
		"cause": cause.Error(),
	})
}

func (u *CheckoutUsecase) invalidate(ctx context.Context, items []model.OrderItem) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	if err := u.cache.Delete(ctx, ids...); err != nil {
		u.log.Warn("product cache delete failed", zap.Int64s("product_ids", ids), zap.Error(err))
	}
}

// 在庫不足はチェックアウトではINSUFFICIENT_STOCKで返す
func asInsufficientStock(err error) error {
	if errors.Is(err, model.ErrOutOfStock) {
		return fmt.Errorf("%w: %s", model.ErrInsufficientStock, reason(err, model.ErrOutOfStock, "Insufficient stock"))
	}
	return err
}

// ORD-YYYYMMDD-XXXXXXXX
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
