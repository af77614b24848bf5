package actors

import (
	stdctx "context"
	"time"

	"chui/internal/auth"
	"chui/internal/messaging"
	"chui/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// Message types for UserActor
type (
	RegisterUserMsg struct {
		Username string
		Email    string
		Password string
	}

	LoginMsg struct {
		Login    string
		Password string
	}

	// ResolveSessionMsg is answered with a messaging.Session.
	ResolveSessionMsg struct {
		Token string
	}

	GetUserProfileMsg struct {
		Session messaging.Session
	}

	ListProfilesMsg struct {
		Session messaging.Session
	}
)

// UserActor handles sign-up, sign-in, session resolution and the user
// directory.
type UserActor struct {
	auth      *auth.Service
	messenger *messaging.Messenger
	metrics   *utils.MetricsCollector
	timeout   time.Duration
}

func NewUserActor(authService *auth.Service, messenger *messaging.Messenger, metrics *utils.MetricsCollector, timeout time.Duration) actor.Actor {
	return &UserActor{auth: authService, messenger: messenger, metrics: metrics, timeout: timeout}
}

func (a *UserActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *RegisterUserMsg:
		a.serve(context, "register", func(ctx stdctx.Context) (interface{}, error) {
			return a.auth.SignUp(ctx, msg.Username, msg.Email, msg.Password)
		})
	case *LoginMsg:
		a.serve(context, "login", func(ctx stdctx.Context) (interface{}, error) {
			return a.auth.SignIn(ctx, msg.Login, msg.Password)
		})
	case *ResolveSessionMsg:
		a.serve(context, "resolve_session", func(ctx stdctx.Context) (interface{}, error) {
			return a.auth.ResolveSession(ctx, msg.Token)
		})
	case *GetUserProfileMsg:
		a.serve(context, "get_profile", func(ctx stdctx.Context) (interface{}, error) {
			return a.messenger.MyProfile(ctx, msg.Session)
		})
	case *ListProfilesMsg:
		a.serve(context, "list_profiles", func(ctx stdctx.Context) (interface{}, error) {
			return a.messenger.ListProfiles(ctx, msg.Session)
		})
	}
}

func (a *UserActor) serve(context actor.Context, op string, fn func(stdctx.Context) (interface{}, error)) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()
	startTime := time.Now()

	result, err := fn(ctx)
	if a.metrics != nil {
		a.metrics.AddOperationLatency(op, time.Since(startTime))
	}
	if err != nil {
		respondError(context, err)
		return
	}
	context.Respond(result)
}
