package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ecshop/internal/config"
	"ecshop/internal/domain/model"
	"ecshop/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	//401
	ErrUnauthorized = errors.New("unauthorized")
	//403
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	//500
	ErrInternal = errors.New("internal error")
)

const accessTokenTTL = 24 * time.Hour

type AuthValidator interface {
	ValidateRegister(ctx context.Context, name string, email string, password string) error
	ValidateLogin(ctx context.Context, email string, password string) error
	ValidateForceLogout(ctx context.Context, targetUserID int64) error
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}

type UserOutput struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
	IsActive     bool   `json:"is_active"`
}

type AccessTokenOutput struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

// register/loginの共通レスポンス
type AuthSession struct {
	User  UserOutput        `json:"user"`
	Token AccessTokenOutput `json:"token"`
}

type ForceLogoutOutput struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

// middleware.AuthJWTが読む形と揃える
type accessTokenClaims struct {
	Role string `json:"role"`
	TV   int    `json:"tv"`
	jwt.RegisteredClaims
}

type AuthUsecase struct {
	secret    []byte
	users     repository.UserRepository
	audit     repository.AuditLogRepository
	validator AuthValidator
	now       func() time.Time
}

func NewAuthUsecase(cfg config.Config, users repository.UserRepository, audit repository.AuditLogRepository, validator AuthValidator) *AuthUsecase {
	return &AuthUsecase{
		secret:    []byte(cfg.JWTSecret),
		users:     users,
		audit:     audit,
		validator: validator,
		now:       time.Now,
	}
}

func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (*AuthSession, error) {
	if err := u.validator.ValidateRegister(ctx, in.Name, in.Email, in.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrInternal
	}

	user := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		IsActive:     true,
	}
	//同時登録はunique制約で落ちる
	if err := u.users.Create(ctx, user); err != nil {
		return nil, ErrConflict
	}
	return u.newSession(user)
}

func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (*AuthSession, error) {
	if err := u.validator.ValidateLogin(ctx, in.Email, in.Password); err != nil {
		return nil, err
	}

	user, err := u.users.FindByEmail(ctx, in.Email)
	if err != nil || user == nil {
		return nil, ErrUnauthorized
	}
	if !user.IsActive {
		return nil, ErrForbidden
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return nil, ErrUnauthorized
	}

	//last_login_atの失敗でログインは止めない
	user.RecordLogin(u.now())
	_ = u.users.Update(ctx, user)

	return u.newSession(user)
}

// token_versionを上げて発行済みJWTを全部無効にする
func (u *AuthUsecase) ForceLogout(ctx context.Context, actorAdminUserID int64, targetUserID int64) (*ForceLogoutOutput, error) {
	if err := u.validator.ValidateForceLogout(ctx, targetUserID); err != nil {
		return nil, err
	}

	before, err := u.users.FindByID(ctx, targetUserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	if err != nil || before == nil {
		return nil, ErrInternal
	}

	if err := u.users.IncrementTokenVersion(ctx, targetUserID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		return nil, ErrInternal
	}
	after, err := u.users.FindByID(ctx, targetUserID)
	if err != nil || after == nil {
		return nil, ErrInternal
	}

	entry := model.AuditLog{
		ActorUserID:  actorAdminUserID,
		Action:       model.AuditActionForceLogout,
		ResourceType: model.AuditResourceUser,
		ResourceID:   targetUserID,
		BeforeJSON:   fmt.Sprintf(`{"token_version":%d}`, before.TokenVersion),
		AfterJSON:    fmt.Sprintf(`{"token_version":%d}`, after.TokenVersion),
		CreatedAt:    u.now(),
	}
	if err := u.audit.Create(ctx, entry); err != nil {
		return nil, ErrInternal
	}

	return &ForceLogoutOutput{UserID: after.ID, NewTokenVersion: after.TokenVersion}, nil
}

func (u *AuthUsecase) newSession(user *model.User) (*AuthSession, error) {
	now := u.now()
	claims := accessTokenClaims{
		Role: string(user.Role),
		TV:   user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.secret)
	if err != nil {
		return nil, ErrInternal
	}

	return &AuthSession{
		User: UserOutput{
			ID:           user.ID,
			Name:         user.Name,
			Email:        user.Email,
			Role:         string(user.Role),
			TokenVersion: user.TokenVersion,
			IsActive:     user.IsActive,
		},
		Token: AccessTokenOutput{
			AccessToken:  signed,
			ExpiresIn:    int(accessTokenTTL.Seconds()),
			TokenVersion: user.TokenVersion,
		},
	}, nil
}
