package model

import "errors"

// ドメイン層のエラー。usecaseでHTTPErrorに変換する。
var (
	//入力不正
	ErrValidation = errors.New("validation error")
	//対象が存在しない
	ErrNotFound = errors.New("not found")

	//カートが空
	ErrEmptyCart = errors.New("cart is empty")
	//カートに明細がない
	ErrItemNotFound = errors.New("item not found in cart")

	//非公開・削除済みの商品
	ErrProductUnavailable = errors.New("product unavailable")
	//在庫不足（カート操作・確定時）
	ErrOutOfStock = errors.New("out of stock")
	//在庫不足（チェックアウト時の再チェック）
	ErrInsufficientStock = errors.New("insufficient stock")

	//決済データの形式不正
	ErrInvalidPaymentData = errors.New("invalid payment data")
	//決済失敗
	ErrPaymentFailed = errors.New("payment failed")

	//許可されていないステータス遷移
	ErrInvalidTransition = errors.New("invalid status transition")
)
