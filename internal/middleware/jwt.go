// internal/middleware/jwt.go
package middleware

import (
	"context"
	"strings"

	"chui/internal/messaging"
	"chui/internal/utils"

	"github.com/labstack/echo/v4"
)

// UnprotectedRoutes defines routes that don't require a session
var UnprotectedRoutes = map[string]bool{
	"/health":        true,
	"/metrics":       true,
	"/user/register": true,
	"/user/login":    true,
}

// SessionResolver maps a bearer token to a session.
type SessionResolver func(ctx context.Context, token string) (messaging.Session, error)

const sessionKey = "session"

// AuthMiddleware resolves the bearer token of every protected route and
// stores the session on the echo context.
func AuthMiddleware(resolve SessionResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UnprotectedRoutes[c.Path()] {
				return next(c)
			}

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return utils.NewUnauthorizedError("authorization header required")
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return utils.NewUnauthorizedError("invalid authorization format")
			}

			sess, err := resolve(c.Request().Context(), strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				return err
			}

			c.Set(sessionKey, sess)
			return next(c)
		}
	}
}

// GetSession returns the session stored by AuthMiddleware, or the zero
// session.
func GetSession(c echo.Context) messaging.Session {
	sess, _ := c.Get(sessionKey).(messaging.Session)
	return sess
}
