package messaging

import (
	"context"
	"sort"

	"chui/internal/database"
	"chui/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultListLimit = 30
	MaxListLimit     = 100
)

// ProjectionStore is the storage the conversation list reads from.
type ProjectionStore interface {
	database.UserStore
	database.ConversationStore
	database.MembershipStore
}

// Projection builds a user's conversation list.
type Projection struct {
	store ProjectionStore
}

func NewProjection(store ProjectionStore) *Projection {
	return &Projection{store: store}
}

// ClampListLimit clamps limit into 1..MaxListLimit. A limit of 0 means the
// caller gave none and maps to DefaultListLimit.
func ClampListLimit(limit int) int {
	return clamp(limit, DefaultListLimit, MaxListLimit)
}

// ListForUser returns the user's conversations, most recent first. Rows whose
// conversation or counterpart no longer loads are skipped.
func (p *Projection) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.ConversationSummary, error) {
	memberships, err := p.store.GetMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, storageFailure("membership scan", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(memberships))
	for _, m := range memberships {
		summary, err := p.summarize(ctx, m.ConversationID, userID)
		if err != nil {
			return nil, err
		}
		if summary != nil {
			summaries = append(summaries, *summary)
		}
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].SortTime().After(summaries[j].SortTime())
	})
	if limit = ClampListLimit(limit); len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (p *Projection) summarize(ctx context.Context, convID, userID uuid.UUID) (*models.ConversationSummary, error) {
	logger := log.With().Str("conversation_id", convID.String()).Str("user_id", userID.String()).Logger()

	conv, err := p.store.GetConversation(ctx, convID)
	if conv, err = optional(conv, err, "conversation lookup"); err != nil {
		return nil, err
	}
	if conv == nil {
		logger.Warn().Msg("membership references a missing conversation")
		return nil, nil
	}

	members, err := p.store.GetMembershipsByConversation(ctx, convID)
	if err != nil {
		return nil, storageFailure("membership scan", err)
	}
	otherID := uuid.Nil
	for _, m := range members {
		if m.UserID != userID {
			otherID = m.UserID
			break
		}
	}
	if otherID == uuid.Nil {
		logger.Warn().Msg("conversation has no counterpart membership")
		return nil, nil
	}

	other, err := p.store.GetUser(ctx, otherID)
	if other, err = optional(other, err, "user lookup"); err != nil {
		return nil, err
	}
	if other == nil {
		logger.Warn().Str("other_user_id", otherID.String()).Msg("counterpart user is missing")
		return nil, nil
	}

	return &models.ConversationSummary{
		ConversationID:      conv.ID,
		UpdatedAt:           conv.UpdatedAt,
		LastMessageAt:       conv.LastMessageAt,
		LastMessagePreview:  conv.LastMessagePreview,
		LastMessageSenderID: conv.LastMessageSenderID,
		OtherUser:           other.Profile(),
	}, nil
}
