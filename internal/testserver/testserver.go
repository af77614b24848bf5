// Package testserver runs the full HTTP stack on an in-memory store for
// tests of packages that sit in front of the API.
package testserver

import (
	"net/http/httptest"
	"testing"
	"time"

	"chui/internal/auth"
	"chui/internal/database"
	"chui/internal/engine"
	"chui/internal/handlers"
	"chui/internal/messaging"
	"chui/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"golang.org/x/crypto/bcrypt"
)

// New starts a server backed by a fresh memory store. It is closed when
// the test ends.
func New(t testing.TB) *httptest.Server {
	t.Helper()
	store := database.NewMemoryStore()
	messenger := messaging.NewMessenger(store, messaging.Options{})
	authService := auth.NewService(store, messenger.Registry, auth.NewTokenIssuer("test-secret", time.Hour)).
		WithHashCost(bcrypt.MinCost)

	system := actor.NewActorSystem()
	metrics := utils.NewMetricsCollector()
	eng := engine.NewEngine(system, messenger, authService, metrics, 2, 5*time.Second)

	srv := httptest.NewServer(handlers.NewServer(eng, metrics, nil, false).Router())
	t.Cleanup(func() {
		srv.Close()
		system.Shutdown()
	})
	return srv
}
