package messaging

import (
	"context"
	"time"

	"chui/internal/database"
	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PreviewLimit caps lastMessagePreview, counted in runes.
const PreviewLimit = 140

// DirectoryStore is the storage the directory needs.
type DirectoryStore interface {
	database.ConversationStore
	database.MembershipStore
}

// Directory owns conversation identity, memberships and the denormalized
// last-message summary.
type Directory struct {
	store DirectoryStore
	now   func() time.Time
}

func NewDirectory(store DirectoryStore, now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{store: store, now: now}
}

// PairKey is the same for (a, b) and (b, a).
func PairKey(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if second < first {
		first, second = second, first
	}
	return first + "|" + second
}

// Preview truncates body to PreviewLimit runes.
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= PreviewLimit {
		return body
	}
	return string(runes[:PreviewLimit])
}

// GetOrCreateDirectConversation returns the conversation between a and b,
// creating it with a as creator on first contact. Both memberships are
// ensured on every call so an interrupted creation heals itself.
func (d *Directory) GetOrCreateDirectConversation(ctx context.Context, a, b uuid.UUID) (uuid.UUID, error) {
	if a == b {
		return uuid.Nil, utils.NewAppError(utils.ErrSelfConversation,
			"You cannot start a conversation with yourself", nil)
	}

	key := PairKey(a, b)
	conv, err := d.store.GetConversationByPairKey(ctx, key)
	if err != nil && !utils.IsErrorCode(err, utils.ErrNotFound) {
		return uuid.Nil, storageFailure("conversation lookup", err)
	}

	var convID uuid.UUID
	if conv != nil {
		convID = conv.ID
	} else {
		convID, err = d.create(ctx, key, a)
		if err != nil {
			return uuid.Nil, err
		}
	}

	for _, userID := range []uuid.UUID{a, b} {
		if err := d.ensureMembership(ctx, convID, userID); err != nil {
			return uuid.Nil, err
		}
	}
	return convID, nil
}

func (d *Directory) create(ctx context.Context, key string, creator uuid.UUID) (uuid.UUID, error) {
	now := d.now()
	id, err := d.store.InsertConversation(ctx, &models.Conversation{
		Kind:      models.ConversationKindDirect,
		PairKey:   key,
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err == nil {
		log.Info().Str("conversation_id", id.String()).Str("pair_key", key).Msg("created direct conversation")
		return id, nil
	}
	if !utils.IsErrorCode(err, utils.ErrDuplicate) {
		return uuid.Nil, storageFailure("conversation insert", err)
	}

	// A concurrent first contact won the insert.
	winner, err := d.store.GetConversationByPairKey(ctx, key)
	if err != nil {
		return uuid.Nil, storageFailure("conversation lookup", err)
	}
	log.Debug().Str("conversation_id", winner.ID.String()).Msg("reused conversation after insert race")
	return winner.ID, nil
}

func (d *Directory) ensureMembership(ctx context.Context, convID, userID uuid.UUID) error {
	_, err := d.store.GetMembership(ctx, convID, userID)
	if err == nil {
		return nil
	}
	if !utils.IsErrorCode(err, utils.ErrNotFound) {
		return storageFailure("membership lookup", err)
	}

	_, err = d.store.InsertMembership(ctx, &models.Membership{
		ConversationID: convID,
		UserID:         userID,
		JoinedAt:       d.now(),
	})
	if err != nil && !utils.IsErrorCode(err, utils.ErrDuplicate) {
		return storageFailure("membership insert", err)
	}
	return nil
}

// TouchSummary copies the newest message's metadata onto the conversation.
// Repeating a call is harmless and an older at never replaces a newer tail.
func (d *Directory) TouchSummary(ctx context.Context, convID, senderID uuid.UUID, body string, at time.Time) error {
	err := d.store.PatchConversationSummary(ctx, convID, models.SummaryPatch{
		UpdatedAt:     d.now(),
		LastMessageAt: at,
		Preview:       Preview(body),
		SenderID:      senderID,
	})
	switch {
	case err == nil:
		return nil
	case utils.IsErrorCode(err, utils.ErrNotFound):
		return utils.NewAppError(utils.ErrConversationNotFound, "Conversation not found", err)
	default:
		return storageFailure("summary update", err)
	}
}

// IsMember reports whether userID holds a membership in convID.
func (d *Directory) IsMember(ctx context.Context, convID, userID uuid.UUID) (bool, error) {
	_, err := d.store.GetMembership(ctx, convID, userID)
	if err == nil {
		return true, nil
	}
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return false, nil
	}
	return false, storageFailure("membership lookup", err)
}

// Members lists the user ids of a conversation in join order.
func (d *Directory) Members(ctx context.Context, convID uuid.UUID) ([]uuid.UUID, error) {
	memberships, err := d.store.GetMembershipsByConversation(ctx, convID)
	if err != nil {
		return nil, storageFailure("membership scan", err)
	}
	ids := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// Get loads a conversation, or nil, nil when it does not exist.
func (d *Directory) Get(ctx context.Context, convID uuid.UUID) (*models.Conversation, error) {
	conv, err := d.store.GetConversation(ctx, convID)
	return optional(conv, err, "conversation lookup")
}
