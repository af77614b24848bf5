package messaging

import (
	"context"
	"strings"
	"time"

	"chui/internal/database"
	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// LedgerStore is the storage the ledger needs.
type LedgerStore interface {
	database.MessageStore
	database.MembershipStore
}

// Ledger appends and pages the immutable messages of a conversation.
type Ledger struct {
	store LedgerStore
}

func NewLedger(store LedgerStore) *Ledger {
	return &Ledger{store: store}
}

// ClampPageLimit clamps limit into 1..MaxPageLimit. A limit of 0 means the
// caller gave none and maps to DefaultPageLimit.
func ClampPageLimit(limit int) int {
	return clamp(limit, DefaultPageLimit, MaxPageLimit)
}

func clamp(limit, def, max int) int {
	switch {
	case limit == 0:
		return def
	case limit < 1:
		return 1
	case limit > max:
		return max
	}
	return limit
}

// ValidateBody rejects bodies that are empty once trimmed.
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return utils.NewAppError(utils.ErrEmptyMessageBody, "Message cannot be empty", nil)
	}
	return nil
}

// Append stores a message. It does not update the conversation summary;
// callers follow it with Directory.TouchSummary.
func (l *Ledger) Append(ctx context.Context, convID, senderID uuid.UUID, body string, at time.Time) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if err := ValidateBody(body); err != nil {
		return nil, err
	}

	if _, err := l.store.GetMembership(ctx, convID, senderID); err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return nil, utils.NewAppError(utils.ErrNotAMember,
				"You are not a member of this conversation", err)
		}
		return nil, storageFailure("membership lookup", err)
	}

	msg := &models.Message{
		ConversationID: convID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      at,
	}
	id, err := l.store.InsertMessage(ctx, msg)
	if err != nil {
		return nil, storageFailure("message insert", err)
	}
	msg.ID = id
	return msg, nil
}

// Page reads up to limit messages in the given direction. NewestFirst
// returns the tail of the conversation, OldestFirst its head.
func (l *Ledger) Page(ctx context.Context, convID uuid.UUID, limit int, dir models.Direction) ([]*models.Message, error) {
	if dir != models.OldestFirst {
		dir = models.NewestFirst
	}
	messages, err := l.store.GetMessages(ctx, convID, ClampPageLimit(limit), dir)
	if err != nil {
		return nil, storageFailure("message page", err)
	}
	return messages, nil
}
