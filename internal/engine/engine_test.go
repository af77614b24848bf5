package engine

import (
	"testing"
	"time"

	"chui/internal/auth"
	"chui/internal/database"
	"chui/internal/engine/actors"
	"chui/internal/messaging"
	"chui/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := database.NewMemoryStore()
	messenger := messaging.NewMessenger(store, messaging.Options{})
	authService := auth.NewService(store, messenger.Registry, auth.NewTokenIssuer("secret", time.Hour)).
		WithHashCost(bcrypt.MinCost)

	system := actor.NewActorSystem()
	t.Cleanup(system.Shutdown)
	return NewEngine(system, messenger, authService, utils.NewMetricsCollector(), 4, 5*time.Second)
}

func TestEnginePoolsServeRequests(t *testing.T) {
	e := newTestEngine(t)

	var sessions []messaging.Session
	for _, name := range []string{"alice", "bob", "carol"} {
		res, err := Ask[*auth.Result](e, e.GetUserActor(), &actors.RegisterUserMsg{Username: name, Password: "password123"})
		require.NoError(t, err)
		sessions = append(sessions, res.Session)
	}

	// Enough requests to reach every pool member.
	for i := 0; i < 8; i++ {
		sent, err := Ask[*messaging.SendResult](e, e.GetMessageActor(), &actors.SendDirectMessageMsg{
			Session: sessions[i%2],
			To:      "carol",
			Body:    "ping",
		})
		require.NoError(t, err)
		assert.False(t, sent.SummaryStale)
	}

	sess, err := Ask[messaging.Session](e, e.GetUserActor(), &actors.ResolveSessionMsg{Token: "bogus"})
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidToken))
	assert.True(t, sess.IsZero())
}

func TestEngineRequestTimesOut(t *testing.T) {
	system := actor.NewActorSystem()
	t.Cleanup(system.Shutdown)
	silent := system.Root.Spawn(actor.PropsFromFunc(func(actor.Context) {}))

	e := &Engine{root: system.Root, timeout: 50 * time.Millisecond}
	_, err := e.Request(silent, "anything")
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrActorTimeout))
	assert.Contains(t, err.Error(), silent.Id)
}
