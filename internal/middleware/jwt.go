package middleware

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-booking/internal/utils"
)

// Context keys set by the auth middlewares.
const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// JWTAuth validates a Bearer access token and stores the caller's id
// (uint64) and role in the request context under "user_id" and "role".
// Requests without a valid token are rejected with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw, ok := bearer(c)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            c.Set(ctxUserID, claims.UserID)
            c.Set(ctxRole, claims.Role)
            return next(c)
        }
    }
}

// OptionalJWT lets anonymous requests through as guests.  A request that
// does present a token must present a valid one.
func OptionalJWT(secret string) echo.MiddlewareFunc {
    auth := JWTAuth(secret)
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        withAuth := auth(next)
        return func(c echo.Context) error {
            if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
                return next(c)
            }
            return withAuth(c)
        }
    }
}

func bearer(c echo.Context) (string, bool) {
    h := c.Request().Header.Get(echo.HeaderAuthorization)
    if !strings.HasPrefix(h, "Bearer ") {
        return "", false
    }
    raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
    return raw, raw != ""
}
