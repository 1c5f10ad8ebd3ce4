package repository

import (
	"context"
	"time"

	"ecshop/internal/domain/model"
)

// GET /admin/audit-logs の絞り込み。空の項目は条件に入れない
type AuditLogFilter struct {
	Page         int
	Limit        int
	ActorUserID  *int64
	Action       model.AuditAction
	ResourceType model.AuditResourceType
	ResourceID   *int64
	From         *time.Time
	To           *time.Time
}

// 監査ログは追記のみ。更新・削除は持たない
type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	//新しい順。totalはページング前の件数
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, int64, error)
}
