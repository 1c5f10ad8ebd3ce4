package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// 1明細あたりの数量上限
const MaxCartItemQuantity int64 = 100

// 1ユーザーにつき1つ
type Cart struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64           `gorm:"not null;uniqueIndex" json:"user_id"`
	Items       []CartItem      `gorm:"foreignKey:CartID" json:"items"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total_amount"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// カートの明細（商品IDで一意）
type CartItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID    int64     `gorm:"not null;uniqueIndex:idx_cart_items_cart_product" json:"cart_id"`
	ProductID int64     `gorm:"not null;uniqueIndex:idx_cart_items_cart_product" json:"product_id"`
	Quantity  int64     `gorm:"not null;check:quantity >= 1 AND quantity <= 100" json:"quantity"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 商品IDから最新の商品を引く
type Catalog map[int64]Product

// 表示用の明細（商品の現在値を反映）
type CartLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

func (c *Cart) indexOf(productID int64) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// 同じ商品なら数量を加算する
func (c *Cart) AddItem(catalog Catalog, productID int64, qty int64) error {
	if err := checkQuantity(qty); err != nil {
		return err
	}
	p, ok := catalog[productID]
	if !ok || !p.Purchasable() {
		return ErrProductUnavailable
	}

	idx := c.indexOf(productID)
	newQty := qty
	if idx >= 0 {
		newQty += c.Items[idx].Quantity
	}
	if newQty > p.Stock {
		if idx >= 0 {
			return fmt.Errorf("%w: cannot add %d more items, only %d more available", ErrOutOfStock, qty, max(p.Stock-c.Items[idx].Quantity, 0))
		}
		return fmt.Errorf("%w: only %d items available in stock", ErrOutOfStock, p.Stock)
	}
	if newQty > MaxCartItemQuantity {
		return fmt.Errorf("%w: quantity cannot exceed %d", ErrValidation, MaxCartItemQuantity)
	}

	if idx >= 0 {
		c.Items[idx].Quantity = newQty
	} else {
		c.Items = append(c.Items, CartItem{CartID: c.ID, ProductID: productID, Quantity: newQty})
	}
	c.Recalculate(catalog)
	return nil
}

// 数量を置き換える。0は削除ではなく不正（削除はRemoveItem）
func (c *Cart) UpdateQuantity(catalog Catalog, productID int64, qty int64) error {
	if err := checkQuantity(qty); err != nil {
		return err
	}
	idx := c.indexOf(productID)
	if idx < 0 {
		return ErrItemNotFound
	}
	p, ok := catalog[productID]
	if !ok || !p.Purchasable() {
		return ErrProductUnavailable
	}
	if qty > p.Stock {
		return fmt.Errorf("%w: only %d items available in stock", ErrOutOfStock, p.Stock)
	}

	c.Items[idx].Quantity = qty
	c.Recalculate(catalog)
	return nil
}

func (c *Cart) RemoveItem(catalog Catalog, productID int64) error {
	idx := c.indexOf(productID)
	if idx < 0 {
		return ErrItemNotFound
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.Recalculate(catalog)
	return nil
}

func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.TotalAmount = decimal.Zero
}

// 合計 = Σ(現在価格 × 数量)。買えない商品は数えない
func (c *Cart) Recalculate(catalog Catalog) {
	total := decimal.Zero
	for _, it := range c.Items {
		p, ok := catalog[it.ProductID]
		if !ok || !p.Purchasable() {
			continue
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(it.Quantity)))
	}
	c.TotalAmount = total
}

// 表示用に非公開商品を除いた明細と合計を返す（保存はしない）
func (c Cart) Visible(catalog Catalog) ([]CartLine, decimal.Decimal) {
	lines := make([]CartLine, 0, len(c.Items))
	total := decimal.Zero
	for _, it := range c.Items {
		p, ok := catalog[it.ProductID]
		if !ok || !p.Purchasable() {
			continue
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(it.Quantity))
		lines = append(lines, CartLine{
			ProductID: it.ProductID,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
			Quantity:  it.Quantity,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return lines, total
}

// 明細の商品ID一覧
func (c Cart) ProductIDs() []int64 {
	ids := make([]int64, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

func checkQuantity(qty int64) error {
	if qty < 1 || qty > MaxCartItemQuantity {
		return fmt.Errorf("%w: quantity must be between 1 and %d", ErrValidation, MaxCartItemQuantity)
	}
	return nil
}
