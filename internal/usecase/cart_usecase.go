package usecase

import (
	"context"
	"net/http"

	"ecshop/internal/domain/model"
	repo "ecshop/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジックです。
// 数量・在庫のルールは model.Cart が持ち、ここは読み書きだけ。
type CartUsecase struct {
	tx          repo.TransactionManager
	cartRepo    repo.CartRepository
	productRepo repo.ProductRepository
}

func NewCartUsecase(
	tx repo.TransactionManager,
	cartRepo repo.CartRepository,
	productRepo repo.ProductRepository,
) *CartUsecase {
	return &CartUsecase{
		tx:          tx,
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

type CartResponse struct {
	ID          int64            `json:"id"`
	Items       []model.CartLine `json:"items"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	ItemCount   int64            `json:"item_count"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

// 無ければ作って空を返す。買えない商品は表示から外すだけで保存はしない
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	catalog, err := loadCatalog(ctx, u.productRepo, cart.ProductIDs())
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return toCartResponse(cart, catalog), nil
}

// 同一商品は数量加算
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ProductID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}

	return u.mutate(ctx, userID, []int64{in.ProductID}, func(cart *model.Cart, catalog model.Catalog) error {
		return cart.AddItem(catalog, in.ProductID, in.Quantity)
	})
}

// 数量の置き換え。0はRemoveFromCartを使う
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID int64, productID int64, qty int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}

	return u.mutate(ctx, userID, []int64{productID}, func(cart *model.Cart, catalog model.Catalog) error {
		return cart.UpdateQuantity(catalog, productID, qty)
	})
}

func (u *CartUsecase) RemoveFromCart(ctx context.Context, userID int64, productID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}

	return u.mutate(ctx, userID, nil, func(cart *model.Cart, catalog model.Catalog) error {
		return cart.RemoveItem(catalog, productID)
	})
}

func (u *CartUsecase) ClearCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	return u.mutate(ctx, userID, nil, func(cart *model.Cart, _ model.Catalog) error {
		cart.Clear()
		return nil
	})
}

// カート行をFOR UPDATEで取り 読む→集約で変更→保存 を1Txで行う
func (u *CartUsecase) mutate(ctx context.Context, userID int64, extraIDs []int64, fn func(*model.Cart, model.Catalog) error) (CartResponse, error) {
	var out CartResponse

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return err
		}

		ids := append(cart.ProductIDs(), extraIDs...)
		catalog, err := loadCatalog(ctx, r.Products(), ids)
		if err != nil {
			return err
		}

		if err := fn(&cart, catalog); err != nil {
			return err
		}
		if err := r.Carts().Save(ctx, cart); err != nil {
			return err
		}

		out = toCartResponse(cart, catalog)
		return nil
	})
	if err != nil {
		return CartResponse{}, toHTTPError(err)
	}
	return out, nil
}

func loadCatalog(ctx context.Context, products repo.ProductRepository, ids []int64) (model.Catalog, error) {
	catalog := model.Catalog{}
	if len(ids) == 0 {
		return catalog, nil
	}
	list, err := products.FindByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		catalog[p.ID] = p
	}
	return catalog, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toCartResponse(cart model.Cart, catalog model.Catalog) CartResponse {
	lines, total := cart.Visible(catalog)
	var count int64
	for _, l := range lines {
		count += l.Quantity
	}
	return CartResponse{
		ID:          cart.ID,
		Items:       lines,
		TotalAmount: total,
		ItemCount:   count,
	}
}
