package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/sessionpulse/internal/platform/correlation"
)

// correlationMiddleware assigns every request a correlation ID so log lines
// across handler, service, and repository can be stitched together.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := correlation.WithID(req.Context(), correlation.NewID())
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
