package middleware

import (
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey       = "user_id"       // int64
	CtxUserRoleKey     = "user_role"     // string
	CtxTokenVersionKey = "token_version" // int
)

// AuthJWTが入れたuser_id
func UserID(c echo.Context) (int64, bool) {
	id, ok := c.Get(CtxUserIDKey).(int64)
	return id, ok && id > 0
}

func UserRole(c echo.Context) (string, bool) {
	role, ok := c.Get(CtxUserRoleKey).(string)
	return role, ok && role != ""
}

func TokenVersion(c echo.Context) (int, bool) {
	tv, ok := c.Get(CtxTokenVersionKey).(int)
	return tv, ok && tv >= 0
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
