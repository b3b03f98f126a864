package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	charmlog "github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/items-api/internal/config"
	"github.com/iliyamo/items-api/internal/logger"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func serve(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestNewRedisCache(t *testing.T) {
	rdb, mr := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20}

	version := 1
	e := echo.New()
	g := e.Group("/items", NewRedisCache(cfg, rdb))
	g.GET("/:item_id", func(c echo.Context) error {
		if c.Param("item_id") == "404" {
			return echo.ErrNotFound
		}
		return c.JSON(http.StatusOK, map[string]int{"version": version})
	})
	g.PUT("/:item_id", func(c echo.Context) error {
		version++
		return c.JSON(http.StatusOK, map[string]int{"version": version})
	})
	// a read that loses the race: the row changes while it is being served
	g.GET("/racing/:item_id", func(c echo.Context) error {
		stale := version
		invalidate(c.Request().Context(), rdb, cfg, c.Request().URL.Path)
		return c.JSON(http.StatusOK, map[string]int{"version": stale})
	})

	t.Run("Should miss then hit", func(t *testing.T) {
		first := serve(e, http.MethodGet, "/items/1")
		assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
		version = 99
		second := serve(e, http.MethodGet, "/items/1")
		assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
		assert.Equal(t, first.Body.String(), second.Body.String())
		assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
		version = 1
	})

	t.Run("Should invalidate the path after a successful mutation", func(t *testing.T) {
		require.True(t, mr.Exists(cacheKey("cache", http.MethodGet, "/items/1")))
		put := serve(e, http.MethodPut, "/items/1")
		assert.Equal(t, http.StatusOK, put.Code)
		assert.False(t, mr.Exists(cacheKey("cache", http.MethodGet, "/items/1")))
		after := serve(e, http.MethodGet, "/items/1")
		assert.Equal(t, "MISS", after.Header().Get("X-Cache"))
		assert.JSONEq(t, `{"version":2}`, after.Body.String())
	})

	t.Run("Should drop a fill that raced with a mutation", func(t *testing.T) {
		first := serve(e, http.MethodGet, "/items/racing/7")
		assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
		assert.False(t, mr.Exists(cacheKey("cache", http.MethodGet, "/items/racing/7")))
		assert.True(t, mr.Exists(versionKey("cache", "/items/racing/7")))
		second := serve(e, http.MethodGet, "/items/racing/7")
		assert.Equal(t, "MISS", second.Header().Get("X-Cache"))
	})

	t.Run("Should not cache errors", func(t *testing.T) {
		serve(e, http.MethodGet, "/items/404")
		assert.False(t, mr.Exists(cacheKey("cache", http.MethodGet, "/items/404")))
	})

	t.Run("Should pass through when disabled", func(t *testing.T) {
		off := echo.New()
		off.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "x") }, NewRedisCache(config.CacheConfig{}, rdb))
		rec := serve(off, http.MethodGet, "/x")
		assert.Empty(t, rec.Header().Get("X-Cache"))
	})
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"id":1}`))
	require.NoError(t, err)
	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, gotHdr)
	assert.Equal(t, `{"id":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestNewTokenBucket(t *testing.T) {
	rdb, _ := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "route",
		Prefix:         "rl",
	}
	e := echo.New()
	e.GET("/items/:item_id", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb))

	t.Run("Should allow up to capacity then reject", func(t *testing.T) {
		first := serve(e, http.MethodGet, "/items/1")
		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/items/2").Code)

		blocked := serve(e, http.MethodGet, "/items/3")
		assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
		secs, err := strconv.Atoi(blocked.Header().Get("Retry-After"))
		require.NoError(t, err)
		assert.Positive(t, secs)
	})

	t.Run("Should fail open when redis is unavailable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		down := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer down.Close()
		mr.Close()
		e := echo.New()
		e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, down))
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x").Code)
	})
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/items/7", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/items/:item_id")

	assert.Equal(t, "rl:ip:10.0.0.1", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c))
	assert.Equal(t, "rl:route:GET /items/:item_id", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "route"}, c))
	assert.Equal(t, "rl:ip:10.0.0.1:route:GET /items/:item_id", buildRateKey(config.RateLimitConfig{Prefix: "rl"}, c))
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := charmlog.NewWithOptions(&buf, charmlog.Options{Formatter: charmlog.JSONFormatter})
	var seen *charmlog.Logger

	e := echo.New()
	e.Use(echomw.RequestID(), ContextLogger(log), RequestLogger(log))
	e.GET("/items/:item_id", func(c echo.Context) error {
		seen = logger.FromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	rec := serve(e, http.MethodGet, "/items/1")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.NotSame(t, charmlog.Default(), seen)
	assert.Contains(t, buf.String(), `"uri":"/items/1"`)
	assert.Contains(t, buf.String(), `"request_id":"`+rec.Header().Get(echo.HeaderXRequestID)+`"`)
}
