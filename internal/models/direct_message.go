package models

import (
	"time"

	"github.com/google/uuid"
)

// Direction selects the time order of a message page.
type Direction string

const (
	NewestFirst Direction = "desc"
	OldestFirst Direction = "asc"
)

// Message is an immutable entry in a conversation's ledger.
type Message struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConversationID uuid.UUID `json:"conversationId" db:"conversation_id"`
	SenderID       uuid.UUID `json:"senderId" db:"sender_id"`
	Body           string    `json:"body" db:"body"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// MessageView is a Message joined with its sender's username.
type MessageView struct {
	Message
	SenderUsername string `json:"senderUsername"`
}
