package engine

import (
	"time"

	"chui/internal/auth"
	"chui/internal/engine/actors"
	"chui/internal/messaging"
	"chui/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/router"
)

// Engine coordinates communication between the HTTP layer and the actor
// pools.
type Engine struct {
	root        *actor.RootContext
	messagePool *actor.PID
	userPool    *actor.PID
	timeout     time.Duration
}

// NewEngine spawns a round-robin pool of poolSize actors for each concern.
func NewEngine(system *actor.ActorSystem, messenger *messaging.Messenger, authService *auth.Service,
	metrics *utils.MetricsCollector, poolSize int, timeout time.Duration) *Engine {
	if poolSize < 1 {
		poolSize = 1
	}
	context := system.Root

	// Spawn direct message pool
	messageProps := router.NewRoundRobinPool(poolSize, actor.WithProducer(func() actor.Actor {
		return actors.NewDirectMessageActor(messenger, metrics, timeout)
	}))
	messagePID := context.Spawn(messageProps)

	// Spawn user pool
	userProps := router.NewRoundRobinPool(poolSize, actor.WithProducer(func() actor.Actor {
		return actors.NewUserActor(authService, messenger, metrics, timeout)
	}))
	userPID := context.Spawn(userProps)

	return &Engine{
		root:        context,
		messagePool: messagePID,
		userPool:    userPID,
		timeout:     timeout,
	}
}

// GetMessageActor returns the PID of the direct message pool
func (e *Engine) GetMessageActor() *actor.PID {
	return e.messagePool
}

// GetUserActor returns the PID of the user pool
func (e *Engine) GetUserActor() *actor.PID {
	return e.userPool
}

// Request sends msg to pid and waits for the answer. An *utils.AppError
// answer is returned as the error; a missing answer becomes ActorTimeout.
func (e *Engine) Request(pid *actor.PID, msg interface{}) (interface{}, error) {
	result, err := e.root.RequestFuture(pid, msg, e.timeout).Result()
	if err != nil {
		return nil, utils.NewActorTimeoutError(pid.Id, err)
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}

// Ask is Request with the answer asserted to T.
func Ask[T any](e *Engine, pid *actor.PID, msg interface{}) (T, error) {
	var zero T
	result, err := e.Request(pid, msg)
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, utils.NewAppError(utils.ErrActorTimeout, "Unexpected response from actor", nil)
	}
	return typed, nil
}
