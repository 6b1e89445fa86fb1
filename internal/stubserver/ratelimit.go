package stubserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"golang.org/x/time/rate"
)

// newWriteLimitStore allows limit requests per caller per period, with a
// burst of limit.
func newWriteLimitStore(limit int, period time.Duration) middleware.RateLimiterStore {
	return middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      float64(rate.Every(period / time.Duration(limit))),
		Burst:     limit,
		ExpiresIn: 3 * period,
	})
}

// limitWrites keys by user when authenticated, else by client IP.
func (s *Server) limitWrites() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: s.limiter,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if id := currentUser(c); id != 0 {
				return fmt.Sprintf("user:%d", id), nil
			}
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return detail(c, http.StatusForbidden, "Could not identify caller")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return detail(c, http.StatusTooManyRequests, "Too many requests")
		},
	})
}
