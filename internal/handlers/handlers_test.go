package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chui/internal/api"
	"chui/internal/auth"
	"chui/internal/database"
	"chui/internal/engine"
	"chui/internal/messaging"
	"chui/internal/models"
	"chui/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestRouter(t *testing.T) *echo.Echo {
	t.Helper()
	store := database.NewMemoryStore()
	messenger := messaging.NewMessenger(store, messaging.Options{})
	authService := auth.NewService(store, messenger.Registry, auth.NewTokenIssuer("secret", time.Hour)).
		WithHashCost(bcrypt.MinCost)
	metrics := utils.NewMetricsCollector()

	system := actor.NewActorSystem()
	t.Cleanup(system.Shutdown)
	eng := engine.NewEngine(system, messenger, authService, metrics, 2, 5*time.Second)
	return NewServer(eng, metrics, nil, true).Router()
}

func do(t *testing.T, e *echo.Echo, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func register(t *testing.T, e *echo.Echo, username string) api.LoginResponse {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/user/register", "", api.RegisterRequest{Username: username, Password: "password123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.LoginResponse](t, rec)
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	e := newTestRouter(t)

	rec := do(t, e, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = do(t, e, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chui_requests_total")
}

func TestFailedRequestCountsOneError(t *testing.T) {
	e := newTestRouter(t)
	register(t, e, "alice")

	rec := do(t, e, http.MethodPost, "/user/login", "", api.LoginRequest{Login: "alice", Password: "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())

	rec = do(t, e, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chui_errors_total{code="INVALID_CREDENTIALS"} 1`+"\n")
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	e := newTestRouter(t)

	rec := do(t, e, http.MethodGet, "/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, utils.ErrUnauthorized, decode[api.ErrorResponse](t, rec).Code)

	rec = do(t, e, http.MethodGet, "/users", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, utils.ErrInvalidToken, decode[api.ErrorResponse](t, rec).Code)
}

func TestRegisterLoginAndMe(t *testing.T) {
	e := newTestRouter(t)
	alice := register(t, e, "Alice")
	assert.Equal(t, "alice", alice.Username)

	rec := do(t, e, http.MethodPost, "/user/register", "", api.RegisterRequest{Username: "alice", Password: "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, utils.ErrUsernameTaken, decode[api.ErrorResponse](t, rec).Code)

	rec = do(t, e, http.MethodPost, "/user/login", "", api.LoginRequest{Login: "alice", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, e, http.MethodPost, "/user/login", "", api.LoginRequest{Login: "alice", Password: "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[api.LoginResponse](t, rec)
	assert.Equal(t, alice.UserID, login.UserID)

	rec = do(t, e, http.MethodGet, "/user/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[models.Profile](t, rec)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "alice@users.chui.local", me.Email)
}

func TestMessagingEndpoints(t *testing.T) {
	e := newTestRouter(t)
	alice := register(t, e, "alice")
	bob := register(t, e, "bob")

	rec := do(t, e, http.MethodPost, "/messages", alice.Token, api.SendMessageRequest{To: "bob", Body: "hello bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[messaging.SendResult](t, rec)

	rec = do(t, e, http.MethodPost, "/messages", bob.Token, api.SendMessageRequest{To: "alice", Body: "hi alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, sent.ConversationID, decode[messaging.SendResult](t, rec).ConversationID)

	rec = do(t, e, http.MethodGet, "/conversations", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.ConversationSummary](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].OtherUser.Username)
	assert.Equal(t, "hi alice", list[0].LastMessagePreview)

	rec = do(t, e, http.MethodGet, "/conversations/"+sent.ConversationID.String()+"/messages?limit=500", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]models.MessageView](t, rec)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello bob", msgs[0].Body)
	assert.Equal(t, "hi alice", msgs[1].Body)

	rec = do(t, e, http.MethodGet, "/users", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Profile](t, rec), 2)
}

func TestMessagingErrors(t *testing.T) {
	e := newTestRouter(t)
	alice := register(t, e, "alice")
	register(t, e, "bob")
	mallory := register(t, e, "mallory")

	tests := []struct {
		name   string
		body   api.SendMessageRequest
		status int
		code   string
	}{
		{"empty body", api.SendMessageRequest{To: "bob", Body: "  "}, http.StatusBadRequest, utils.ErrEmptyMessageBody},
		{"self", api.SendMessageRequest{To: "alice", Body: "hi"}, http.StatusBadRequest, utils.ErrSelfConversation},
		{"unknown", api.SendMessageRequest{To: "ghost", Body: "hi"}, http.StatusNotFound, utils.ErrRecipientNotFound},
		{"invalid name", api.SendMessageRequest{To: "x", Body: "hi"}, http.StatusBadRequest, utils.ErrInvalidUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, http.MethodPost, "/messages", alice.Token, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[api.ErrorResponse](t, rec).Code)
		})
	}

	rec := do(t, e, http.MethodPost, "/messages", alice.Token, api.SendMessageRequest{To: "bob", Body: "private"})
	require.Equal(t, http.StatusCreated, rec.Code)
	sent := decode[messaging.SendResult](t, rec)

	rec = do(t, e, http.MethodGet, "/conversations/"+sent.ConversationID.String()+"/messages", mallory.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, utils.ErrConversationNotFound, decode[api.ErrorResponse](t, rec).Code)

	rec = do(t, e, http.MethodGet, "/conversations?limit=abc", alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
