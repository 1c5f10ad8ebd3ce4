package repository

import "context"

// WithinTxの中でだけ使えるリポジトリ群。外のリポジトリを混ぜるとTx外で書いてしまう
type TxRepos interface {
	Products() ProductRepository
	Inventory() InventoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	AuditLogs() AuditLogRepository
}

type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
