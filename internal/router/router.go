package router // package router defines how HTTP routes are registered for the API

import (
	"net/http" // http.Handler is the metrics exposition handler type

	charmlog "github.com/charmbracelet/log"         // charm logger shared by middleware and error handler
	"github.com/labstack/echo/v4"                   // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware" // echo's stock request id and recover middleware
	"github.com/redis/go-redis/v9"                  // optional Redis client for cache and rate limiting

	"github.com/iliyamo/items-api/internal/config"     // cache and rate limit settings
	"github.com/iliyamo/items-api/internal/database"   // store handed to the item handler
	"github.com/iliyamo/items-api/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/items-api/internal/middleware" // logging, cache and rate limiting middleware
	"github.com/iliyamo/items-api/internal/service"    // item event publisher
)

// Options carries everything the HTTP layer depends on.  Store and Metrics
// are required; a nil Redis client disables cache and rate limiting.
type Options struct {
	Store     *database.Store
	Publisher service.Publisher
	Metrics   http.Handler
	Logger    *charmlog.Logger
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
}

// New builds the Echo instance: error rendering, validation, the middleware
// chain and all routes.
func New(o Options) *echo.Echo {
	if o.Logger == nil {
		o.Logger = charmlog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(o.Logger)

	// Recover sits innermost so a panic is logged with the 500 it produced.
	e.Use(
		echomw.RequestID(),
		middleware.ContextLogger(o.Logger),
		middleware.RequestLogger(o.Logger),
		echomw.Recover(),
	)

	RegisterRoutes(e)
	RegisterItems(e, handler.NewItemHandler(o.Store, o.Publisher),
		middleware.NewTokenBucket(o.RateLimit, o.Redis),
		middleware.NewRedisCache(o.Cache, o.Redis),
	)
	RegisterMetrics(e, o.Metrics)
	return e
}

// RegisterRoutes registers routes that carry no business logic.  Currently it
// exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterItems maps the four item operations.  mw is applied to the item
// routes only.
func RegisterItems(e *echo.Echo, h *handler.ItemHandler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/items", mw...)
	g.POST("", h.CreateItem)
	g.GET("/:item_id", h.GetItem)
	g.PUT("/:item_id", h.UpdateItem)
	g.DELETE("/:item_id", h.DeleteItem)
}

// RegisterMetrics exposes the Prometheus registry at /metrics.
func RegisterMetrics(e *echo.Echo, metrics http.Handler) {
	if metrics == nil {
		return
	}
	e.GET("/metrics", echo.WrapHandler(metrics))
}
