package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

const secret = "test-secret"

func bearer(t *testing.T, userID uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, userID, role, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func whoami(c echo.Context) error {
	a, _ := ActorFrom(c)
	return c.JSON(http.StatusOK, echo.Map{"user_id": a.UserID, "role": a.Role})
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	rec := serve(e, http.MethodGet, "/me", bearer(t, 7, model.RoleCustomer))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":7,"role":"CUSTOMER"}`, rec.Body.String())

	for name, auth := range map[string]string{
		"missing": "",
		"garbage": "Bearer nope",
		"basic":   "Basic dXNlcjpwYXNz",
		"system":  bearer(t, 1, model.RoleSystem),
	} {
		t.Run(name, func(t *testing.T) {
			rec := serve(e, http.MethodGet, "/me", auth)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"UNAUTHENTICATED"`)
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/staff", whoami, JWTAuth(secret), RequireRole(model.RoleStaff))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/staff", bearer(t, 50, model.RoleStaff)).Code)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/staff", bearer(t, 7, model.RoleCustomer)).Code)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/showtimes/10/bookings", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/showtimes/:id/bookings")
	SetActor(c, model.Actor{UserID: 7, Role: model.RoleCustomer})

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}
	assert.Equal(t, "rl:user:7:route:POST /v1/showtimes/:id/bookings", buildRateKey(cfg, c))
	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.1", buildRateKey(cfg, c))
}

func TestTokenBucket(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	now := time.UnixMilli(1_700_000_000_000)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: 6 * time.Second,
		TTL: time.Minute, KeyStrategy: "user", Prefix: "rl",
	}
	tb := &tokenBucket{cfg: cfg, rdb: rdb, log: zap.NewNop(), now: func() time.Time { return now }}

	e := echo.New()
	e.POST("/book", func(c echo.Context) error { return c.NoContent(http.StatusCreated) }, JWTAuth(secret), tb.middleware)
	auth := bearer(t, 7, model.RoleCustomer)
	args := []any{now.UnixMilli(), 2, 1, int64(6000), int64(60)}

	mock.ExpectEvalSha(limiterScript.Hash(), []string{"rl:user:7"}, args...).SetVal([]any{int64(1), int64(1), int64(0)})
	rec := serve(e, http.MethodPost, "/book", auth)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	mock.ExpectEvalSha(limiterScript.Hash(), []string{"rl:user:7"}, args...).SetVal([]any{int64(0), int64(0), int64(4500)})
	rec = serve(e, http.MethodPost, "/book", auth)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))

	mock.ExpectEvalSha(limiterScript.Hash(), []string{"rl:user:7"}, args...).SetErr(errors.New("connection refused"))
	rec = serve(e, http.MethodPost, "/book", auth)
	assert.Equal(t, http.StatusCreated, rec.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatMapCache(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewSeatMapCache(config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: 10 * time.Second, Prefix: "cache",
	}, rdb, nil)

	calls := 0
	e := echo.New()
	e.GET("/v1/showtimes/:id/seats", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"seats": 6})
	}, cache.Middleware())

	mock.ExpectGet("cache:seats:10").RedisNil()
	mock.ExpectSet("cache:seats:10", []byte("{\"seats\":6}\n"), 10*time.Second).SetVal("OK")
	rec := serve(e, http.MethodGet, "/v1/showtimes/10/seats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	mock.ExpectGet("cache:seats:10").SetVal(`{"seats":5}`)
	rec = serve(e, http.MethodGet, "/v1/showtimes/10/seats", "")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"seats":5}`, rec.Body.String())
	assert.Equal(t, 1, calls)

	mock.ExpectDel("cache:seats:10").SetVal(1)
	require.NoError(t, cache.Invalidate(t.Context(), 10))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatMapCacheDisabled(t *testing.T) {
	cache := NewSeatMapCache(config.CacheConfig{Enabled: false}, nil, nil)
	assert.NoError(t, cache.Invalidate(t.Context(), 10))

	e := echo.New()
	e.GET("/v1/showtimes/:id/seats", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, cache.Middleware())
	rec := serve(e, http.MethodGet, "/v1/showtimes/10/seats", "")
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error {
		logging.FromContext(c.Request().Context()).Info("inside")
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })

	serve(e, http.MethodGet, "/ok", "")
	rec := serve(e, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	assert.Equal(t, 1, logs.FilterMessage("inside").Len())
	reqs := logs.FilterMessage("request").All()
	require.Len(t, reqs, 2)
	assert.Equal(t, zapcore.InfoLevel, reqs[0].Level)
	assert.Equal(t, "/ok", reqs[0].ContextMap()["route"])
	assert.Equal(t, zapcore.ErrorLevel, reqs[1].Level)
}
