package usecase_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"ecshop/internal/domain/model"
	"ecshop/internal/payment"
	repo "ecshop/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// テスト用のインメモリDB。WithinTxはエラー時に丸ごと巻き戻す
type memStore struct {
	mu          sync.Mutex
	products    map[int64]model.Product
	carts       map[int64]model.Cart // key: userID
	orders      map[int64]model.Order
	items       map[int64][]model.OrderItem
	audits      []model.AuditLog
	adjustments []model.InventoryAdjustment
	nextID      int64
}

type memState struct {
	products    map[int64]model.Product
	carts       map[int64]model.Cart
	orders      map[int64]model.Order
	items       map[int64][]model.OrderItem
	audits      []model.AuditLog
	adjustments []model.InventoryAdjustment
}

func newMemStore() *memStore {
	return &memStore{
		products: map[int64]model.Product{},
		carts:    map[int64]model.Cart{},
		orders:   map[int64]model.Order{},
		items:    map[int64][]model.OrderItem{},
		nextID:   100,
	}
}

func (s *memStore) newID() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addProduct(p model.Product) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.newID()
	}
	s.products[p.ID] = p
	return p
}

func (s *memStore) putCart(userID int64, lines map[int64]int64) model.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := model.Cart{ID: s.newID(), UserID: userID}
	ids := make([]int64, 0, len(lines))
	for pid := range lines {
		ids = append(ids, pid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, pid := range ids {
		c.Items = append(c.Items, model.CartItem{ID: s.newID(), CartID: c.ID, ProductID: pid, Quantity: lines[pid]})
	}
	s.carts[userID] = c
	return c
}

func (s *memStore) stock(productID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func (s *memStore) setStock(productID int64, stock int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[productID]
	p.Stock = stock
	s.products[productID] = p
}

func (s *memStore) cart(userID int64) (model.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	return c, ok
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) onlyOrder() model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		o.Items = append([]model.OrderItem(nil), s.items[o.ID]...)
		return o
	}
	return model.Order{}
}

func (s *memStore) snapshot() memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := memState{
		products:    map[int64]model.Product{},
		carts:       map[int64]model.Cart{},
		orders:      map[int64]model.Order{},
		items:       map[int64][]model.OrderItem{},
		audits:      append([]model.AuditLog(nil), s.audits...),
		adjustments: append([]model.InventoryAdjustment(nil), s.adjustments...),
	}
	for k, v := range s.products {
		st.products[k] = v
	}
	for k, v := range s.carts {
		v.Items = append([]model.CartItem(nil), v.Items...)
		st.carts[k] = v
	}
	for k, v := range s.orders {
		st.orders[k] = v
	}
	for k, v := range s.items {
		st.items[k] = append([]model.OrderItem(nil), v...)
	}
	return st
}

func (s *memStore) restore(st memState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = st.products
	s.carts = st.carts
	s.orders = st.orders
	s.items = st.items
	s.audits = st.audits
	s.adjustments = st.adjustments
}

// =====================
// TransactionManager
// =====================

type memTx struct {
	s     *memStore
	calls int
}

func (t *memTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	t.calls++
	snap := t.s.snapshot()
	if err := fn(memRepos{s: t.s}); err != nil {
		t.s.restore(snap)
		return err
	}
	return nil
}

type memRepos struct{ s *memStore }

func (r memRepos) Orders() repo.OrderRepository         { return memOrders{r.s} }
func (r memRepos) OrderItems() repo.OrderItemRepository { return memOrderItems{r.s} }
func (r memRepos) Carts() repo.CartRepository           { return memCarts{r.s} }
func (r memRepos) Inventory() repo.InventoryRepository  { return memInventory{r.s} }
func (r memRepos) Products() repo.ProductRepository     { return memProducts{r.s} }
func (r memRepos) AuditLogs() repo.AuditLogRepository   { return memAudit{r.s} }

// =====================
// Products
// =====================

type memProducts struct{ s *memStore }

func (m memProducts) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []model.Product{}
	for _, p := range m.s.products {
		if !p.Purchasable() {
			continue
		}
		if q.Q != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Q)) {
			continue
		}
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	start := (q.Page - 1) * q.Limit
	if start > len(out) {
		start = len(out)
	}
	end := start + q.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (m memProducts) FindByID(ctx context.Context, id int64) (model.Product, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.products[id]
	if !ok || p.DeletedAt.Valid {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (m memProducts) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []model.Product{}
	for _, id := range ids {
		if p, ok := m.s.products[id]; ok && !p.DeletedAt.Valid {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m memProducts) Create(ctx context.Context, p model.Product) (model.Product, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p.ID = m.s.newID()
	m.s.products[p.ID] = p
	return p, nil
}

func (m memProducts) Update(ctx context.Context, p model.Product) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cur, ok := m.s.products[p.ID]
	if !ok || cur.DeletedAt.Valid {
		return repo.ErrNotFound
	}
	//在庫はSetStockでしか変えない
	cur.Name = p.Name
	cur.Description = p.Description
	cur.Category = p.Category
	cur.Price = p.Price
	cur.IsActive = p.IsActive
	m.s.products[p.ID] = cur
	return nil
}

func (m memProducts) SoftDelete(ctx context.Context, id int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.products[id]
	if !ok || p.DeletedAt.Valid {
		return repo.ErrNotFound
	}
	p.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	m.s.products[id] = p
	return nil
}

// =====================
// Inventory
// =====================

type memInventory struct{ s *memStore }

func (m memInventory) SetStock(ctx context.Context, productID int64, newStock int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.products[productID]
	if !ok || p.DeletedAt.Valid {
		return repo.ErrNotFound
	}
	p.Stock = newStock
	m.s.products[productID] = p
	return nil
}

func (m memInventory) DecreaseStockIfAvailable(ctx context.Context, productID int64, qty int64) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.products[productID]
	if !ok || !p.Purchasable() || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	m.s.products[productID] = p
	return true, nil
}

func (m memInventory) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	p.Stock += qty
	m.s.products[productID] = p
	return nil
}

func (m memInventory) CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.adjustments = append(m.s.adjustments, adjustment)
	return nil
}

// =====================
// Carts
// =====================

type memCarts struct{ s *memStore }

func (m memCarts) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.carts[userID]
	if !ok {
		c = model.Cart{ID: m.s.newID(), UserID: userID, Items: []model.CartItem{}}
		m.s.carts[userID] = c
	}
	c.Items = append([]model.CartItem{}, c.Items...)
	return c, nil
}

func (m memCarts) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.carts[userID]
	if !ok {
		return model.Cart{}, repo.ErrNotFound
	}
	c.Items = append([]model.CartItem{}, c.Items...)
	return c, nil
}

func (m memCarts) Save(ctx context.Context, cart model.Cart) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cart.Items = append([]model.CartItem{}, cart.Items...)
	m.s.carts[cart.UserID] = cart
	return nil
}

func (m memCarts) Clear(ctx context.Context, cartID int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for uid, c := range m.s.carts {
		if c.ID == cartID {
			c.Items = []model.CartItem{}
			c.TotalAmount = decimal.Zero
			m.s.carts[uid] = c
			return nil
		}
	}
	return repo.ErrNotFound
}

// =====================
// Orders
// =====================

type memOrders struct{ s *memStore }

var errDuplicateKey = errors.New("duplicate key value violates unique constraint")

func (m memOrders) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	o.Items = append([]model.OrderItem{}, m.s.items[orderID]...)
	return o, nil
}

func (m memOrders) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (m memOrders) ListByUserID(ctx context.Context, userID int64, f repo.UserOrderListFilter) ([]model.Order, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []model.Order{}
	for _, o := range m.s.orders {
		if o.UserID != userID {
			continue
		}
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		o.Items = append([]model.OrderItem{}, m.s.items[o.ID]...)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, int64(len(out)), nil
}

func (m memOrders) Create(ctx context.Context, order model.Order) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if order.IdempotencyKey != nil {
		for _, o := range m.s.orders {
			if o.UserID == order.UserID && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return 0, errDuplicateKey
			}
		}
	}
	order.ID = m.s.newID()
	order.Items = nil
	m.s.orders[order.ID] = order
	return order.ID, nil
}

func (m memOrders) UpdateState(ctx context.Context, order model.Order, expected model.OrderStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cur, ok := m.s.orders[order.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if cur.Status != expected {
		return repo.ErrStaleState
	}
	cur.Status = order.Status
	cur.PaymentStatus = order.PaymentStatus
	cur.TransactionID = order.TransactionID
	cur.UpdatedAt = time.Now()
	m.s.orders[order.ID] = cur
	return nil
}

func (m memOrders) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, o := range m.s.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			o.Items = append([]model.OrderItem{}, m.s.items[o.ID]...)
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (m memOrders) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []model.Order{}
	for _, o := range m.s.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (m memOrders) Stats(ctx context.Context, since *time.Time) (repo.OrderStats, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	st := repo.OrderStats{
		TotalRevenue:           decimal.Zero,
		AverageOrderValue:      decimal.Zero,
		StatusBreakdown:        map[model.OrderStatus]int64{},
		PaymentStatusBreakdown: map[model.PaymentStatus]int64{},
	}
	for _, o := range m.s.orders {
		if since != nil && o.CreatedAt.Before(*since) {
			continue
		}
		st.TotalOrders++
		st.TotalRevenue = st.TotalRevenue.Add(o.TotalAmount)
		st.StatusBreakdown[o.Status]++
		st.PaymentStatusBreakdown[o.PaymentStatus]++
	}
	if st.TotalOrders > 0 {
		st.AverageOrderValue = st.TotalRevenue.Div(decimal.NewFromInt(st.TotalOrders)).Round(2)
	}
	return st, nil
}

type memOrderItems struct{ s *memStore }

func (m memOrderItems) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, it := range items {
		it.ID = m.s.newID()
		it.OrderID = orderID
		m.s.items[orderID] = append(m.s.items[orderID], it)
	}
	return nil
}

func (m memOrderItems) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]model.OrderItem{}, m.s.items[orderID]...), nil
}

type memAudit struct{ s *memStore }

func (m memAudit) Create(ctx context.Context, log model.AuditLog) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.audits = append(m.s.audits, log)
	return nil
}

func (m memAudit) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []model.AuditLog{}
	for i := len(m.s.audits) - 1; i >= 0; i-- {
		l := m.s.audits[i]
		if f.Action != "" && l.Action != f.Action {
			continue
		}
		if f.ResourceType != "" && l.ResourceType != f.ResourceType {
			continue
		}
		if f.ResourceID != nil && l.ResourceID != *f.ResourceID {
			continue
		}
		if f.ActorUserID != nil && l.ActorUserID != *f.ActorUserID {
			continue
		}
		out = append(out, l)
	}
	total := int64(len(out))
	start := min((f.Page-1)*f.Limit, len(out))
	end := min(start+f.Limit, len(out))
	return out[start:end], total, nil
}

// =====================
// Gateway
// =====================

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	last  payment.Request
	fn    func(ctx context.Context, req payment.Request) (payment.Receipt, error)
}

func (g *fakeGateway) Simulate(ctx context.Context, req payment.Request) (payment.Receipt, error) {
	g.mu.Lock()
	g.calls++
	g.last = req
	fn := g.fn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return payment.Receipt{
		TransactionID: "TXN_1700000000000_abcdef012",
		Amount:        req.Amount,
		Currency:      req.Currency,
		Message:       "Payment processed successfully",
		Timestamp:     time.Now().UTC(),
	}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
