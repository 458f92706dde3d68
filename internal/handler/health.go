package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Health reports liveness.  With a database it also reports whether the
// database answers, and fails with 503 when it does not.
func Health(db Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if db == nil {
            return c.String(http.StatusOK, "ok")
        }
        ctx, cancel := requestCtx(c)
        defer cancel()
        if err := db.PingContext(ctx); err != nil {
            c.Logger().Warnf("healthz: database ping: %v", err)
            return c.String(http.StatusServiceUnavailable, "database unavailable")
        }
        return c.String(http.StatusOK, "ok")
    }
}
