package middleware

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/config"
)

// captureWriter copies the response body while forwarding it to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	limit  int
	over   bool
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.over {
		if cw.limit > 0 && cw.buf.Len()+len(b) > cw.limit {
			cw.over = true
			cw.buf.Reset()
		} else {
			cw.buf.Write(b)
		}
	}
	return cw.ResponseWriter.Write(b)
}

// SeatMapCache caches seat-map responses in Redis per showtime.  Entries
// are dropped by Invalidate whenever a booking changes the showtime's
// occupancy; the TTL bounds staleness when an invalidation is lost.
type SeatMapCache struct {
	cfg config.CacheConfig
	rdb redis.Cmdable
	log *zap.Logger
}

// NewSeatMapCache returns the cache.  A nil client or a disabled config
// makes Middleware a pass-through and Invalidate a no-op.
func NewSeatMapCache(cfg config.CacheConfig, rdb redis.Cmdable, log *zap.Logger) *SeatMapCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "cache"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SeatMapCache{cfg: cfg, rdb: rdb, log: log.Named("cache")}
}

func (s *SeatMapCache) enabled() bool { return s != nil && s.cfg.Enabled && s.rdb != nil }

// Key is the Redis key of a showtime's seat map.
func (s *SeatMapCache) Key(showtimeID uint64) string {
	return s.cfg.Prefix + ":seats:" + strconv.FormatUint(showtimeID, 10)
}

// Middleware serves cached seat maps.  The route must carry the showtime id
// as the ":id" parameter.
func (s *SeatMapCache) Middleware() echo.MiddlewareFunc {
	if !s.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.cfg.Methods[c.Request().Method] {
				return next(c)
			}
			id, err := strconv.ParseUint(c.Param("id"), 10, 64)
			if err != nil {
				return next(c)
			}
			ctx := c.Request().Context()
			key := s.Key(id)

			if body, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
				c.Response().Header().Set("X-Cache", "HIT")
				return c.JSONBlob(http.StatusOK, body)
			} else if err != redis.Nil {
				s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: s.cfg.MaxBodyBytes}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if cw.status == http.StatusOK && !cw.over && cw.buf.Len() > 0 {
				if err := s.rdb.Set(context.WithoutCancel(ctx), key, cw.buf.Bytes(), s.cfg.TTL).Err(); err != nil {
					s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
				}
			}
			return nil
		}
	}
}

// Invalidate drops the cached seat map of showtimeID.
func (s *SeatMapCache) Invalidate(ctx context.Context, showtimeID uint64) error {
	if !s.enabled() {
		return nil
	}
	return s.rdb.Del(ctx, s.Key(showtimeID)).Err()
}
