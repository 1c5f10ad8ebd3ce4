package usecase

import (
	"context"
	"net/http"
	"strings"

	"ecshop/internal/domain/model"
	repo "ecshop/internal/repository"
)

// 管理者向けの監査ログ閲覧
type AuditUsecase struct {
	audit repo.AuditLogRepository
}

func NewAuditUsecase(audit repo.AuditLogRepository) *AuditUsecase {
	return &AuditUsecase{audit: audit}
}

type AuditLogListInput struct {
	Page         int
	Limit        int
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   *int64
	From         string
	To           string
}

type AuditLogListOutput struct {
	Items []model.AuditLog `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func (u *AuditUsecase) List(ctx context.Context, in AuditLogListInput) (AuditLogListOutput, error) {
	if in.Page < 1 {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	f := repo.AuditLogFilter{
		Page:        in.Page,
		Limit:       in.Limit,
		ActorUserID: in.ActorUserID,
		ResourceID:  in.ResourceID,
	}
	if a := strings.ToUpper(strings.TrimSpace(in.Action)); a != "" {
		if !model.AuditAction(a).Valid() {
			return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid action")
		}
		f.Action = model.AuditAction(a)
	}
	if rt := strings.ToLower(strings.TrimSpace(in.ResourceType)); rt != "" {
		if !model.AuditResourceType(rt).Valid() {
			return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid resource_type")
		}
		f.ResourceType = model.AuditResourceType(rt)
	}
	if t, ok := parseDateTimeRFC3339(in.From); ok {
		f.From = t
	} else if strings.TrimSpace(in.From) != "" {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid from")
	}
	if t, ok := parseDateTimeRFC3339(in.To); ok {
		f.To = t
	} else if strings.TrimSpace(in.To) != "" {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid to")
	}

	logs, total, err := u.audit.List(ctx, f)
	if err != nil {
		return AuditLogListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return AuditLogListOutput{Items: logs, Total: total, Page: in.Page, Limit: in.Limit}, nil
}
