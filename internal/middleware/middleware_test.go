package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"ecshop/internal/config"
	"ecshop/internal/domain/model"
	"ecshop/internal/middleware"
	"ecshop/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type mwErrorResponse struct {
	Error string `json:"error"`
}

type mwOKResponse struct {
	UserID       int64  `json:"user_id"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
}

// =====================
// UserRepository モック
// =====================

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, user *model.User) error {
	panic("not used in middleware tests")
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	panic("not used in middleware tests")
}

func (m *MockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *MockUserRepo) Update(ctx context.Context, user *model.User) error {
	panic("not used in middleware tests")
}

func (m *MockUserRepo) IncrementTokenVersion(ctx context.Context, id int64) error {
	panic("not used in middleware tests")
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

// =====================
// helper
// =====================

func mustMakeJWT(t *testing.T, secret string, sub interface{}, role string, tv int, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"tv":   tv,
		"iat":  1,
		"exp":  9999999999,
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func whoAmI(c echo.Context) error {
	return c.JSON(http.StatusOK, mwOKResponse{
		UserID:       c.Get(middleware.CtxUserIDKey).(int64),
		Role:         c.Get(middleware.CtxUserRoleKey).(string),
		TokenVersion: c.Get(middleware.CtxTokenVersionKey).(int),
	})
}

func runRequest(t *testing.T, e *echo.Echo, path string, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var r mwErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	return r.Error
}

func newProtected(repo repository.UserRepository, admin bool) *echo.Echo {
	e := echo.New()
	mws := []echo.MiddlewareFunc{
		middleware.AuthJWT(config.Config{JWTSecret: testSecret}),
	}
	if repo != nil {
		mws = append(mws, middleware.TokenVersionGuard(repo))
	}
	if admin {
		mws = append(mws, middleware.AdminRoleGuard())
	}
	e.GET("/protected", whoAmI, mws...)
	return e
}

// =====================
// AuthJWT
// =====================

func TestAuthJWT_Rejects(t *testing.T) {
	e := newProtected(nil, false)

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"bad scheme", "Token abc.def.ghi"},
		{"empty token", "Bearer  "},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + mustMakeJWT(t, "other-secret", "1", "USER", 0, jwt.SigningMethodHS256)},
		{"wrong alg", "Bearer " + mustMakeJWT(t, testSecret, "1", "USER", 0, jwt.SigningMethodHS512)},
		{"bad sub", "Bearer " + mustMakeJWT(t, testSecret, "abc", "USER", 0, jwt.SigningMethodHS256)},
		{"no role", "Bearer " + mustMakeJWT(t, testSecret, "1", "", 0, jwt.SigningMethodHS256)},
		{"numeric sub", "Bearer " + mustMakeJWT(t, testSecret, 1, "USER", 0, jwt.SigningMethodHS256)},
		{"negative tv", "Bearer " + mustMakeJWT(t, testSecret, "1", "USER", -1, jwt.SigningMethodHS256)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := runRequest(t, e, "/protected", tc.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", decodeError(t, rec))
		})
	}
}

func TestAuthJWT_Expired(t *testing.T) {
	e := newProtected(nil, false)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "role": "USER", "tv": 0, "iat": 1, "exp": 2,
	})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := runRequest(t, e, "/protected", "Bearer "+s)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthJWT_SetsContext(t *testing.T) {
	e := newProtected(nil, false)

	rec := runRequest(t, e, "/protected", "Bearer "+mustMakeJWT(t, testSecret, "42", "USER", 3, jwt.SigningMethodHS256))
	require.Equal(t, http.StatusOK, rec.Code)

	var body mwOKResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, mwOKResponse{UserID: 42, Role: "USER", TokenVersion: 3}, body)
}

// tvが無いトークンは古い形式として拒否
func TestAuthJWT_MissingTokenVersion(t *testing.T) {
	e := newProtected(nil, false)
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "role": "USER", "exp": 9999999999,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := runRequest(t, e, "/protected", "Bearer "+s)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =====================
// TokenVersionGuard
// =====================

func TestTokenVersionGuard(t *testing.T) {
	cases := []struct {
		name    string
		user    *model.User
		findErr error
		status  int
		msg     string
	}{
		{"match", &model.User{ID: 1, TokenVersion: 2, IsActive: true}, nil, http.StatusOK, ""},
		{"stale token", &model.User{ID: 1, TokenVersion: 3, IsActive: true}, nil, http.StatusUnauthorized, "unauthorized"},
		{"user gone", nil, repository.ErrUserNotFound, http.StatusUnauthorized, "unauthorized"},
		{"disabled", &model.User{ID: 1, TokenVersion: 2, IsActive: false}, nil, http.StatusForbidden, "account disabled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(MockUserRepo)
			repo.On("FindByID", mock.Anything, int64(1)).Return(tc.user, tc.findErr)
			e := newProtected(repo, false)

			rec := runRequest(t, e, "/protected", "Bearer "+mustMakeJWT(t, testSecret, "1", "USER", 2, jwt.SigningMethodHS256))
			assert.Equal(t, tc.status, rec.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decodeError(t, rec))
			}
			repo.AssertExpectations(t)
		})
	}
}

// AuthJWTを通っていなければDBを見ない
func TestTokenVersionGuard_NoContext(t *testing.T) {
	repo := new(MockUserRepo)
	e := echo.New()
	e.GET("/protected", whoAmI, middleware.TokenVersionGuard(repo))

	rec := runRequest(t, e, "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

// =====================
// AdminRoleGuard
// =====================

func TestAdminRoleGuard(t *testing.T) {
	e := newProtected(nil, true)

	rec := runRequest(t, e, "/protected", "Bearer "+mustMakeJWT(t, testSecret, "1", "USER", 0, jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin only", decodeError(t, rec))

	rec = runRequest(t, e, "/protected", "Bearer "+mustMakeJWT(t, testSecret, "1", "ADMIN", 0, jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoleGuard_NoRole(t *testing.T) {
	e := echo.New()
	e.GET("/protected", whoAmI, middleware.AdminRoleGuard())

	rec := runRequest(t, e, "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =====================
// RateLimiter
// =====================

func TestRateLimiter_AllowPerKey(t *testing.T) {
	rl := middleware.NewRateLimiter(2)

	assert.True(t, rl.Allow("user:1"))
	assert.True(t, rl.Allow("user:1"))
	assert.False(t, rl.Allow("user:1"))

	//別キーは独立
	assert.True(t, rl.Allow("user:2"))
}

func TestRateLimiter_SweepDropsIdleKeys(t *testing.T) {
	rl := middleware.NewRateLimiter(5)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("ip:10.0.0."+strconv.Itoa(i)))
	}
	assert.Equal(t, 100, rl.Sweep(time.Now()))

	//10分使われなければ全部消える
	assert.Equal(t, 0, rl.Sweep(time.Now().Add(11*time.Minute)))

	//消えた後のキーは満タンのバケットからやり直し
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("ip:10.0.0.1"))
	}
	assert.False(t, rl.Allow("ip:10.0.0.1"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := middleware.NewRateLimiter(1)
	e := echo.New()
	e.GET("/checkout", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get("X-Test-User"); uid == "7" {
				c.Set(middleware.CtxUserIDKey, int64(7))
			}
			return next(c)
		}
	}, rl.Middleware())

	call := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/checkout", nil)
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("7").Code)
	rec := call("7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "too many requests", decodeError(t, rec))

	//未認証はIP単位
	assert.Equal(t, http.StatusNoContent, call("").Code)
	assert.Equal(t, http.StatusTooManyRequests, call("").Code)
}
