// Package handler holds the HTTP handlers.  Handlers bind and validate
// input, call a service or repository and map errors to {"error": "..."}
// JSON bodies.
package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-booking/internal/middleware"
)

// dbTimeout bounds the storage work of one request.
const dbTimeout = 5 * time.Second

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the authenticated caller set by middleware.JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
    id, ok := middleware.UserID(c)
    if !ok {
        return 0, errNoUser
    }
    return id, nil
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), dbTimeout)
}

func errorJSON(c echo.Context, status int, msg string) error {
    return c.JSON(status, echo.Map{"error": msg})
}

// internalError logs err and answers 500 with a generic message.
func internalError(c echo.Context, msg string, err error) error {
    c.Logger().Errorf("%s %s: %s: %v", c.Request().Method, c.Path(), msg, err)
    return errorJSON(c, http.StatusInternalServerError, msg)
}
