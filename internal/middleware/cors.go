package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// DefaultCORSConfig returns the CORS settings for the given origins. An empty
// list allows every origin.
func DefaultCORSConfig(allowedOrigins []string) echomw.CORSConfig {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return echomw.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderContentType,
			echo.HeaderAuthorization,
			echo.HeaderAccept,
			echo.HeaderOrigin,
			echo.HeaderXRequestedWith,
		},
		ExposeHeaders: []string{echo.HeaderContentLength, echo.HeaderContentType},
		MaxAge:        86400, // 24 hours
	}
}

// CORSMiddleware configures CORS for all requests
func CORSMiddleware(allowedOrigins []string) echo.MiddlewareFunc {
	return echomw.CORSWithConfig(DefaultCORSConfig(allowedOrigins))
}
