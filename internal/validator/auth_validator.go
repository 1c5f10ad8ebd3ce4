package validator

import (
	"context"
	"errors"
	"strings"

	"ecshop/internal/repository"
	"ecshop/internal/usecase"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmailAlreadyUsed = errors.New("email already used")
)

// bcryptは72byteまで
type registerForm struct {
	Name     string `validate:"required,max=100"`
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,min=8,max=72"`
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type authValidator struct {
	users repository.UserRepository
	v     *validator.Validate
}

func NewAuthValidator(users repository.UserRepository) usecase.AuthValidator {
	return &authValidator{users: users, v: validator.New()}
}

func (a *authValidator) ValidateRegister(ctx context.Context, name string, email string, password string) error {
	form := registerForm{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email), Password: password}
	if a.v.StructCtx(ctx, form) != nil {
		return ErrInvalidInput
	}

	//重複はDBで確認（同時登録はunique制約で落ちる）
	if u, err := a.users.FindByEmail(ctx, form.Email); err == nil && u != nil {
		return ErrEmailAlreadyUsed
	}
	return nil
}

func (a *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	if a.v.StructCtx(ctx, loginForm{Email: strings.TrimSpace(email), Password: password}) != nil {
		return ErrInvalidInput
	}
	return nil
}

func (a *authValidator) ValidateForceLogout(_ context.Context, targetUserID int64) error {
	if targetUserID <= 0 {
		return ErrInvalidInput
	}
	return nil
}
