package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// Context keys written by JWTAuth and OptionalJWT.
const (
    CtxUserID = "user_id"
    CtxRole   = "role"
)

// UserID returns the authenticated user id from the context.  The second
// result is false for guests.
func UserID(c echo.Context) (uint64, bool) {
    switch v := c.Get(CtxUserID).(type) {
    case uint64:
        return v, v != 0
    case float64:
        return uint64(v), v > 0
    case string:
        n, err := strconv.ParseUint(v, 10, 64)
        return n, err == nil && n != 0
    }
    return 0, false
}

// identityKey is the user part of rate limit keys.
func identityKey(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "guest"
}
