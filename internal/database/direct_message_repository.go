package database

import (
	"context"
	"fmt"
	"time"

	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DirectMessageDocument represents the MongoDB document structure for direct messages
type DirectMessageDocument struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversationId"`
	SenderID       string    `bson:"senderId"`
	Body           string    `bson:"body"`
	CreatedAt      time.Time `bson:"createdAt"`
}

// InsertMessage appends a message to the ledger
func (m *MongoDB) InsertMessage(ctx context.Context, message *models.Message) (uuid.UUID, error) {
	id := message.ID
	if id == uuid.Nil {
		id = newID()
	}
	doc := DirectMessageDocument{
		ID:             id.String(),
		ConversationID: message.ConversationID.String(),
		SenderID:       message.SenderID.String(),
		Body:           message.Body,
		CreatedAt:      message.CreatedAt,
	}

	if _, err := m.Messages.InsertOne(ctx, doc); err != nil {
		return uuid.Nil, utils.NewStorageError("message insert", err)
	}
	return id, nil
}

// GetMessages pages through a conversation using the
// (conversationId, createdAt, _id) index. BSON dates only keep milliseconds,
// so the time-ordered _id breaks ties.
func (m *MongoDB) GetMessages(ctx context.Context, conversationID uuid.UUID, limit int, dir models.Direction) ([]*models.Message, error) {
	opts := options.Find().
		SetSort(messageSort(dir)).
		SetLimit(int64(limit))

	cursor, err := m.Messages.Find(ctx, bson.M{"conversationId": conversationID.String()}, opts)
	if err != nil {
		return nil, utils.NewStorageError("message page", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*models.Message, 0, limit)
	for cursor.Next(ctx) {
		var doc DirectMessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}

		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid message ID in database: %w", err)
		}
		senderID, err := uuid.Parse(doc.SenderID)
		if err != nil {
			return nil, fmt.Errorf("invalid sender ID in database: %w", err)
		}

		messages = append(messages, &models.Message{
			ID:             id,
			ConversationID: conversationID,
			SenderID:       senderID,
			Body:           doc.Body,
			CreatedAt:      doc.CreatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewStorageError("message page", err)
	}

	return messages, nil
}

// messageSort orders by (createdAt, _id), both ascending or both descending.
func messageSort(dir models.Direction) bson.D {
	order := 1
	if dir == models.NewestFirst {
		order = -1
	}
	return bson.D{{Key: "createdAt", Value: order}, {Key: "_id", Value: order}}
}
