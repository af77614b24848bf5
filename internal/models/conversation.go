package models

import (
	"time"

	"github.com/google/uuid"
)

const ConversationKindDirect = "direct"

// Conversation is a direct channel between exactly two users. The LastMessage*
// fields are a denormalized copy of the ledger tail.
type Conversation struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	Kind                string     `json:"kind" db:"kind"`
	PairKey             string     `json:"pairKey" db:"pair_key"`
	CreatedBy           uuid.UUID  `json:"createdBy" db:"created_by"`
	CreatedAt           time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time  `json:"updatedAt" db:"updated_at"`
	LastMessageAt       *time.Time `json:"lastMessageAt,omitempty" db:"last_message_at"`
	LastMessagePreview  string     `json:"lastMessagePreview" db:"last_message_preview"`
	LastMessageSenderID *uuid.UUID `json:"lastMessageSenderId,omitempty" db:"last_message_sender_id"`
}

// SummaryPatch carries one TouchSummary update.
type SummaryPatch struct {
	UpdatedAt     time.Time
	LastMessageAt time.Time
	Preview       string
	SenderID      uuid.UUID
}

// Membership links one user to one conversation.
type Membership struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ConversationID uuid.UUID  `json:"conversationId" db:"conversation_id"`
	UserID         uuid.UUID  `json:"userId" db:"user_id"`
	JoinedAt       time.Time  `json:"joinedAt" db:"joined_at"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty" db:"last_read_at"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ConversationID      uuid.UUID  `json:"conversationId"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	LastMessageAt       *time.Time `json:"lastMessageAt,omitempty"`
	LastMessagePreview  string     `json:"lastMessagePreview"`
	LastMessageSenderID *uuid.UUID `json:"lastMessageSenderId,omitempty"`
	OtherUser           Profile    `json:"otherUser"`
}

// SortTime is the recency key used to order conversation lists.
func (s ConversationSummary) SortTime() time.Time {
	if s.LastMessageAt != nil {
		return *s.LastMessageAt
	}
	return s.UpdatedAt
}
