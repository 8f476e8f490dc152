package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/logging"
)

// RequestLogger logs one line per request and puts a request-scoped logger
// into the request context for logging.FromContext.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			reqID := req.Header.Get(echo.HeaderXRequestID)
			if reqID == "" {
				reqID = c.Response().Header().Get(echo.HeaderXRequestID)
			}
			l := log.With(zap.String("request_id", reqID))
			c.SetRequest(req.WithContext(logging.WithLogger(req.Context(), l)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("user_id", userID(c)),
				zap.String("remote_ip", c.RealIP()),
			}
			switch status := c.Response().Status; {
			case status >= 500:
				l.Error("request", append(fields, zap.Error(err))...)
			case status >= 400:
				l.Warn("request", fields...)
			default:
				l.Info("request", fields...)
			}
			return nil
		}
	}
}
