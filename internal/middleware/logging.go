package middleware

import (
	charmlog "github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/items-api/internal/logger"
)

// ContextLogger stores a request-scoped logger, tagged with the request id,
// on the request context.  It must run after echo's RequestID middleware.
func ContextLogger(log *charmlog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := log
			if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
				l = log.With("request_id", rid)
			}
			req := c.Request()
			c.SetRequest(req.WithContext(logger.ContextWithLogger(req.Context(), l)))
			return next(c)
		}
	}
}

// RequestLogger writes one line per request.  Errors are handed to the echo
// error handler first so the logged status is the one the client saw.
func RequestLogger(log *charmlog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			kv := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.RequestID != "" {
				kv = append(kv, "request_id", v.RequestID)
			}
			if v.Status >= 500 {
				log.Error("request", kv...)
				return nil
			}
			log.Info("request", kv...)
			return nil
		},
	})
}
