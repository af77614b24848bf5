package messaging

import (
	"context"
	"strings"
	"time"

	"chui/internal/database"
	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session identifies the caller of a Messenger operation. It is owned by the
// caller and passed explicitly on every call.
type Session struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

func (s Session) IsZero() bool {
	return s.UserID == uuid.Nil
}

// SendResult describes a delivered message. SummaryStale is set when the
// message was stored but the conversation summary could not be updated; the
// next send to the same pair repairs it.
type SendResult struct {
	ConversationID uuid.UUID          `json:"conversationId"`
	Message        models.MessageView `json:"message"`
	SummaryStale   bool               `json:"summaryStale,omitempty"`
}

type Options struct {
	AllowUnderscore bool
	Now             func() time.Time
}

// Messenger is the read/send surface offered to clients.
type Messenger struct {
	Registry   *Registry
	Directory  *Directory
	Ledger     *Ledger
	Projection *Projection

	now func() time.Time
}

func NewMessenger(store database.Store, opts Options) *Messenger {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Messenger{
		Registry:   NewRegistry(store, opts.AllowUnderscore, now),
		Directory:  NewDirectory(store, now),
		Ledger:     NewLedger(store),
		Projection: NewProjection(store),
		now:        now,
	}
}

func requireSession(sess Session) error {
	if sess.IsZero() {
		return utils.NewUnauthorizedError("sign in first")
	}
	return nil
}

// SendDirectMessage delivers body to toUsername, opening the conversation on
// first contact.
func (m *Messenger) SendDirectMessage(ctx context.Context, sess Session, toUsername, body string) (*SendResult, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if err := ValidateBody(body); err != nil {
		return nil, err
	}
	to, err := m.Registry.ParseUsername(toUsername)
	if err != nil {
		return nil, err
	}
	if to == sess.Username {
		return nil, utils.NewAppError(utils.ErrSelfConversation,
			"You cannot message yourself", nil)
	}

	recipient, err := m.Registry.Lookup(ctx, to)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, utils.NewAppError(utils.ErrRecipientNotFound, "No user named "+to, nil)
	}

	convID, err := m.Directory.GetOrCreateDirectConversation(ctx, sess.UserID, recipient.ID)
	if err != nil {
		return nil, err
	}

	msg, err := m.Ledger.Append(ctx, convID, sess.UserID, body, m.now())
	if err != nil {
		return nil, err
	}

	result := &SendResult{
		ConversationID: convID,
		Message:        models.MessageView{Message: *msg, SenderUsername: sess.Username},
	}
	if err := m.Directory.TouchSummary(ctx, convID, sess.UserID, body, msg.CreatedAt); err != nil {
		log.Error().Err(err).
			Str("conversation_id", convID.String()).
			Str("message_id", msg.ID.String()).
			Msg("message stored but summary update failed")
		result.SummaryStale = true
	}
	return result, nil
}

// ListMyConversations returns the caller's conversations, most recent first.
func (m *Messenger) ListMyConversations(ctx context.Context, sess Session, limit int) ([]models.ConversationSummary, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return m.Projection.ListForUser(ctx, sess.UserID, limit)
}

// ListConversationMessages returns the newest limit messages of a
// conversation the caller belongs to, oldest first.
func (m *Messenger) ListConversationMessages(ctx context.Context, sess Session, conversationID string, limit int) ([]models.MessageView, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	convID, err := uuid.Parse(strings.TrimSpace(conversationID))
	if err != nil {
		return nil, conversationNotFound(err)
	}

	conv, err := m.Directory.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, conversationNotFound(nil)
	}
	member, err := m.Directory.IsMember(ctx, convID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, conversationNotFound(nil)
	}

	page, err := m.Ledger.Page(ctx, convID, limit, models.NewestFirst)
	if err != nil {
		return nil, err
	}

	usernames := map[uuid.UUID]string{sess.UserID: sess.Username}
	views := make([]models.MessageView, len(page))
	for i, msg := range page {
		name, ok := usernames[msg.SenderID]
		if !ok {
			sender, err := m.Registry.Get(ctx, msg.SenderID)
			if err != nil {
				return nil, err
			}
			if sender != nil {
				name = sender.Username
			}
			usernames[msg.SenderID] = name
		}
		// Reverse the newest-first page into reading order.
		views[len(page)-1-i] = models.MessageView{Message: *msg, SenderUsername: name}
	}
	return views, nil
}

// ListProfiles returns every user's public profile ordered by username.
func (m *Messenger) ListProfiles(ctx context.Context, sess Session) ([]models.Profile, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	users, err := m.Registry.List(ctx)
	if err != nil {
		return nil, err
	}
	profiles := make([]models.Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	return profiles, nil
}

// MyProfile returns the caller's own profile.
func (m *Messenger) MyProfile(ctx context.Context, sess Session) (*models.Profile, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	user, err := m.Registry.Get(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, utils.NewAppError(utils.ErrProfileNotFound, "Your profile could not be found", nil)
	}
	profile := user.Profile()
	return &profile, nil
}

func conversationNotFound(origin error) error {
	return utils.NewAppError(utils.ErrConversationNotFound, "Conversation not found", origin)
}
