package actors

import (
	stdctx "context"
	"errors"
	"time"

	"chui/internal/messaging"
	"chui/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog/log"
)

// Message types for DirectMessageActor
type (
	SendDirectMessageMsg struct {
		Session messaging.Session
		To      string
		Body    string
	}

	ListConversationsMsg struct {
		Session messaging.Session
		Limit   int
	}

	ListMessagesMsg struct {
		Session        messaging.Session
		ConversationID string
		Limit          int
	}
)

// DirectMessageActor serves the messaging operations. Several instances run
// behind a round-robin router; each handles one request at a time and keeps
// no state of its own.
type DirectMessageActor struct {
	messenger *messaging.Messenger
	metrics   *utils.MetricsCollector
	timeout   time.Duration
}

func NewDirectMessageActor(messenger *messaging.Messenger, metrics *utils.MetricsCollector, timeout time.Duration) actor.Actor {
	return &DirectMessageActor{messenger: messenger, metrics: metrics, timeout: timeout}
}

func (a *DirectMessageActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *SendDirectMessageMsg:
		a.handleSendMessage(context, msg)
	case *ListConversationsMsg:
		a.handleListConversations(context, msg)
	case *ListMessagesMsg:
		a.handleListMessages(context, msg)
	}
}

func (a *DirectMessageActor) handleSendMessage(context actor.Context, msg *SendDirectMessageMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()
	startTime := time.Now()

	result, err := a.messenger.SendDirectMessage(ctx, msg.Session, msg.To, msg.Body)
	a.observe("send_direct_message", startTime, err)
	if err != nil {
		respondError(context, err)
		return
	}

	log.Debug().
		Str("conversation_id", result.ConversationID.String()).
		Str("from", msg.Session.Username).
		Msg("direct message sent")
	context.Respond(result)
}

func (a *DirectMessageActor) handleListConversations(context actor.Context, msg *ListConversationsMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()
	startTime := time.Now()

	summaries, err := a.messenger.ListMyConversations(ctx, msg.Session, msg.Limit)
	a.observe("list_conversations", startTime, err)
	if err != nil {
		respondError(context, err)
		return
	}
	context.Respond(summaries)
}

func (a *DirectMessageActor) handleListMessages(context actor.Context, msg *ListMessagesMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()
	startTime := time.Now()

	messages, err := a.messenger.ListConversationMessages(ctx, msg.Session, msg.ConversationID, msg.Limit)
	a.observe("list_messages", startTime, err)
	if err != nil {
		respondError(context, err)
		return
	}
	context.Respond(messages)
}

func (a *DirectMessageActor) observe(op string, startTime time.Time, err error) {
	if a.metrics == nil {
		return
	}
	a.metrics.AddOperationLatency(op, time.Since(startTime))
}

// respondError always answers with an *utils.AppError so callers can switch
// on the response type.
func respondError(context actor.Context, err error) {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		context.Respond(appErr)
		return
	}
	context.Respond(utils.NewStorageError("request", err))
}
