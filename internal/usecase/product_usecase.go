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

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxQueryLen = 100

var productSorts = map[string]bool{"": true, "new": true, "price_asc": true, "price_desc": true, "name": true}

type ProductUsecase struct {
	products repo.ProductRepository
	tx       repo.TransactionManager
	cache    cache.ProductCache
	log      *zap.Logger
	now      func() time.Time
}

func NewProductUsecase(products repo.ProductRepository, tx repo.TransactionManager, productCache cache.ProductCache, log *zap.Logger) *ProductUsecase {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductUsecase{products: products, tx: tx, cache: productCache, log: log, now: time.Now}
}

// GET /products
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
}

func (in ListProductsInput) validate() error {
	switch {
	case in.Page < 1:
		return invalid("invalid page")
	case in.Limit < 1 || in.Limit > 100:
		return invalid("invalid limit")
	case len(in.Q) > maxQueryLen:
		return invalid("q too long")
	case in.MinPrice != nil && in.MinPrice.IsNegative():
		return invalid("min_price must be >= 0")
	case in.MaxPrice != nil && in.MaxPrice.IsNegative():
		return invalid("max_price must be >= 0")
	case in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice):
		return invalid("min_price must be <= max_price")
	case !productSorts[in.Sort]:
		return invalid("invalid sort")
	}
	return nil
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ProductUsecase) List(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if err := in.validate(); err != nil {
		return ProductListOutput{}, toHTTPError(err)
	}

	items, total, err := u.products.ListPublic(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		Category: strings.TrimSpace(in.Category),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		u.log.Error("list products failed", zap.Error(err))
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return ProductListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

// 公開商品の詳細（cache-aside）
func (u *ProductUsecase) Detail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, toHTTPError(invalid("invalid product id"))
	}

	p, err := u.cache.Get(ctx, productID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		u.log.Warn("product cache get failed", zap.Int64("product_id", productID), zap.Error(err))
	}

	p, err = u.products.FindByID(ctx, productID)
	if err != nil {
		return model.Product{}, u.fail("find product", err)
	}
	//非公開は存在しない扱い
	if !p.Purchasable() {
		return model.Product{}, toHTTPError(repo.ErrNotFound)
	}

	if err := u.cache.Set(ctx, p); err != nil {
		u.log.Warn("product cache set failed", zap.Int64("product_id", productID), zap.Error(err))
	}
	return p, nil
}

type AdminProductInput struct {
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	Stock       int64
	IsActive    bool
}

func (in AdminProductInput) validate() error {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return invalid("name required")
	case len(name) > 255:
		return invalid("name too long")
	case in.Price.IsNegative():
		return invalid("price must be >= 0")
	case in.Stock < 0:
		return invalid("stock must be >= 0")
	}
	return nil
}

// 価格は小数2桁に丸める
func (in AdminProductInput) toModel(id int64) model.Product {
	return model.Product{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
		IsActive:    in.IsActive,
	}
}

func (u *ProductUsecase) Create(ctx context.Context, adminUserID int64, in AdminProductInput) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := in.validate(); err != nil {
		return model.Product{}, toHTTPError(err)
	}

	p, err := u.products.Create(ctx, in.toModel(0))
	if err != nil {
		return model.Product{}, u.fail("create product", err)
	}
	u.log.Info("product created", zap.Int64("product_id", p.ID), zap.Int64("admin_user_id", adminUserID))
	return p, nil
}

// stockは無視する。在庫はSetStockだけが変える
func (u *ProductUsecase) Update(ctx context.Context, adminUserID int64, productID int64, in AdminProductInput) error {
	if err := checkAdminTarget(adminUserID, productID); err != nil {
		return err
	}
	if err := in.validate(); err != nil {
		return toHTTPError(err)
	}

	if err := u.products.Update(ctx, in.toModel(productID)); err != nil {
		return u.fail("update product", err)
	}
	u.invalidate(ctx, productID)
	return nil
}

func (u *ProductUsecase) Delete(ctx context.Context, adminUserID int64, productID int64) error {
	if err := checkAdminTarget(adminUserID, productID); err != nil {
		return err
	}
	if err := u.products.SoftDelete(ctx, productID); err != nil {
		return u.fail("delete product", err)
	}
	u.invalidate(ctx, productID)
	return nil
}

// 在庫を上書きし、調整履歴と監査ログを同じTxで残す
func (u *ProductUsecase) SetStock(ctx context.Context, adminUserID int64, productID int64, newStock int64, reason string) error {
	if err := checkAdminTarget(adminUserID, productID); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if newStock < 0 {
		return toHTTPError(invalid("stock must be >= 0"))
	}
	if reason == "" {
		return toHTTPError(invalid("reason required"))
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if err := r.Inventory().SetStock(ctx, productID, newStock); err != nil {
			return err
		}

		at := u.now()
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: adminUserID,
			Delta:       newStock - p.Stock,
			StockAfter:  newStock,
			Reason:      reason,
			CreatedAt:   at,
		}); err != nil {
			return err
		}
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   fmt.Sprintf(`{"stock":%d}`, p.Stock),
			AfterJSON:    fmt.Sprintf(`{"stock":%d}`, newStock),
			CreatedAt:    at,
		})
	})
	if err != nil {
		return u.fail("set stock", err)
	}

	u.invalidate(ctx, productID)
	return nil
}

// 想定外のエラーだけログに出す
func (u *ProductUsecase) fail(op string, err error) error {
	he := toHTTPError(err).(*HTTPError)
	if he.Status >= http.StatusInternalServerError {
		u.log.Error(op+" failed", zap.Error(err))
	}
	return he
}

func (u *ProductUsecase) invalidate(ctx context.Context, productIDs ...int64) {
	if err := u.cache.Delete(ctx, productIDs...); err != nil {
		u.log.Warn("product cache delete failed", zap.Int64s("product_ids", productIDs), zap.Error(err))
	}
}

func checkAdminTarget(adminUserID, productID int64) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return toHTTPError(invalid("invalid product id"))
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", model.ErrValidation, msg)
}
