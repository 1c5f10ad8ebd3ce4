package validator_test

import (
	"context"
	"strings"
	"testing"

	"ecshop/internal/domain/model"
	"ecshop/internal/repository"
	"ecshop/internal/validator"

	"github.com/stretchr/testify/assert"
)

// FindByEmailだけ使う
type emailLookup map[string]*model.User

func (m emailLookup) Create(context.Context, *model.User) error { panic("not used in validator tests") }
func (m emailLookup) FindByID(context.Context, int64) (*model.User, error) {
	panic("not used in validator tests")
}
func (m emailLookup) Update(context.Context, *model.User) error { panic("not used in validator tests") }
func (m emailLookup) IncrementTokenVersion(context.Context, int64) error {
	panic("not used in validator tests")
}

func (m emailLookup) FindByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := m[email]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func TestAuthValidator_Register(t *testing.T) {
	v := validator.NewAuthValidator(emailLookup{"taken@test.com": {ID: 1}})
	ctx := context.Background()

	cases := []struct {
		name     string
		userName string
		email    string
		password string
		want     error
	}{
		{"ok", "Taro", " new@test.com ", "password1", nil},
		{"blank name", "  ", "new@test.com", "password1", validator.ErrInvalidInput},
		{"long name", strings.Repeat("a", 101), "new@test.com", "password1", validator.ErrInvalidInput},
		{"bad email", "Taro", "not-an-email", "password1", validator.ErrInvalidInput},
		{"short password", "Taro", "new@test.com", "short", validator.ErrInvalidInput},
		{"password over bcrypt limit", "Taro", "new@test.com", strings.Repeat("p", 73), validator.ErrInvalidInput},
		{"taken", "Hanako", "taken@test.com", "password1", validator.ErrEmailAlreadyUsed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateRegister(ctx, tc.userName, tc.email, tc.password)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthValidator_Login(t *testing.T) {
	v := validator.NewAuthValidator(emailLookup{})
	ctx := context.Background()

	assert.NoError(t, v.ValidateLogin(ctx, "user@test.com", "x"))
	assert.ErrorIs(t, v.ValidateLogin(ctx, "", "x"), validator.ErrInvalidInput)
	assert.ErrorIs(t, v.ValidateLogin(ctx, "user@test.com", ""), validator.ErrInvalidInput)
	assert.ErrorIs(t, v.ValidateLogin(ctx, "user", "x"), validator.ErrInvalidInput)
}

func TestAuthValidator_ForceLogout(t *testing.T) {
	v := validator.NewAuthValidator(emailLookup{})

	assert.NoError(t, v.ValidateForceLogout(context.Background(), 3))
	assert.ErrorIs(t, v.ValidateForceLogout(context.Background(), 0), validator.ErrInvalidInput)
}
