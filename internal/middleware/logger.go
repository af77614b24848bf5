package middleware

import (
	"chui/internal/utils"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestLogger logs one zerolog line per request and counts it in metrics.
// Requests that passed AuthMiddleware carry the caller's username.
func RequestLogger(metrics *utils.MetricsCollector) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if metrics != nil {
				metrics.IncrementRequests()
			}

			var event *zerolog.Event
			switch {
			case v.Status >= 500:
				event = log.Error().Err(v.Error)
			case v.Status >= 400:
				event = log.Warn().Str("code", utils.ErrorCode(v.Error))
			default:
				event = log.Debug()
			}
			if sess := GetSession(c); !sess.IsZero() {
				event = event.Str("user", sess.Username)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
