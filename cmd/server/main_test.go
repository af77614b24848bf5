package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chui/internal/api"
	"chui/internal/config"
	"chui/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(dbType, uri string) *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 8080, MetricsEnabled: true},
		Database: config.DatabaseConfig{Type: dbType, URI: uri, Name: "chui"},
		Auth:     config.AuthConfig{Secret: "integration", TokenTTL: time.Hour},
		Actors:   config.ActorConfig{PoolSize: 2, Timeout: 5 * time.Second},
	}
}

func post(t *testing.T, srv *httptest.Server, path, token string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestIntegrationFlow(t *testing.T) {
	for _, backend := range []struct{ dbType, uri string }{
		{"memory", ""},
		{"sqlite", ":memory:"},
	} {
		t.Run(backend.dbType, func(t *testing.T) {
			ctx := context.Background()
			app, err := newApp(ctx, testConfig(backend.dbType, backend.uri))
			require.NoError(t, err)
			defer app.Close(ctx)

			srv := httptest.NewServer(app.Echo)
			defer srv.Close()

			tokens := map[string]string{}
			for _, name := range []string{"alice", "bob"} {
				resp := post(t, srv, "/user/register", "", api.RegisterRequest{Username: name, Password: "password123"})
				require.Equal(t, http.StatusCreated, resp.StatusCode)
				var login api.LoginResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
				resp.Body.Close()
				tokens[name] = login.Token
			}

			resp := post(t, srv, "/messages", tokens["alice"], api.SendMessageRequest{To: "bob", Body: "hello bob"})
			require.Equal(t, http.StatusCreated, resp.StatusCode)
			resp.Body.Close()

			req, err := http.NewRequest(http.MethodGet, srv.URL+"/conversations", nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+tokens["bob"])
			resp, err = http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var list []models.ConversationSummary
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
			require.Len(t, list, 1)
			assert.Equal(t, "alice", list[0].OtherUser.Username)
			assert.Equal(t, "hello bob", list[0].LastMessagePreview)
		})
	}
}
