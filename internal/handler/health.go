package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name string
	// Required checks turn the response into 503 when they fail.  Optional
	// ones (Redis, which the server degrades without) only report.
	Required bool
	Check    func(ctx context.Context) error
}

// Health returns the handler for GET /healthz.  Each check gets its own
// timeout; the body lists every result.
func Health(checks ...HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, chk := range checks {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			err := chk.Check(ctx)
			cancel()
			if err == nil {
				results[chk.Name] = "ok"
				continue
			}
			results[chk.Name] = err.Error()
			if chk.Required {
				status = http.StatusServiceUnavailable
			}
		}
		state := "ok"
		if status != http.StatusOK {
			state = "unavailable"
		}
		return c.JSON(status, echo.Map{"status": state, "checks": results})
	}
}
