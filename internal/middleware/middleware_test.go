package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chui/internal/messaging"
	"chui/internal/utils"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func newEcho(resolve SessionResolver) *echo.Echo {
	e := echo.New()
	e.Use(RequestLogger(nil))
	e.Use(AuthMiddleware(resolve))
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/user/me", func(c echo.Context) error {
		return c.String(http.StatusOK, GetSession(c).Username)
	})
	return e
}

func TestRequestLoggerNamesAuthenticatedUser(t *testing.T) {
	buf := captureLog(t)
	alice := messaging.Session{UserID: uuid.New(), Username: "alice"}
	e := newEcho(func(ctx context.Context, token string) (messaging.Session, error) {
		if token != "tok" {
			return messaging.Session{}, utils.NewAppError(utils.ErrInvalidToken, "bad token", nil)
		}
		return alice, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/user/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer tok")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "alice", line["user"])
	assert.Equal(t, "/user/me", line["uri"])
}

func TestRequestLoggerAnonymous(t *testing.T) {
	buf := captureLog(t)
	e := newEcho(func(ctx context.Context, token string) (messaging.Session, error) {
		return messaging.Session{}, utils.NewAppError(utils.ErrInvalidToken, "bad token", nil)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "user")
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	captureLog(t)
	e := newEcho(func(ctx context.Context, token string) (messaging.Session, error) {
		t.Fatal("resolver must not run without a header")
		return messaging.Session{}, nil
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/me", nil))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
