// internal/database/conversation_repository.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ConversationDocument represents the MongoDB schema for a direct conversation
type ConversationDocument struct {
	ID                  string     `bson:"_id"`
	Kind                string     `bson:"kind"`
	PairKey             string     `bson:"pairKey"`
	CreatedBy           string     `bson:"createdBy"`
	CreatedAt           time.Time  `bson:"createdAt"`
	UpdatedAt           time.Time  `bson:"updatedAt"`
	LastMessageAt       *time.Time `bson:"lastMessageAt,omitempty"`
	LastMessagePreview  string     `bson:"lastMessagePreview"`
	LastMessageSenderID *string    `bson:"lastMessageSenderId,omitempty"`
}

// MembershipDocument represents one (conversation, user) pair
type MembershipDocument struct {
	ID             string     `bson:"_id"`
	ConversationID string     `bson:"conversationId"`
	UserID         string     `bson:"userId"`
	JoinedAt       time.Time  `bson:"joinedAt"`
	LastReadAt     *time.Time `bson:"lastReadAt,omitempty"`
}

func (doc *ConversationDocument) toModel() (*models.Conversation, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation ID in database: %w", err)
	}
	createdBy, err := uuid.Parse(doc.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("invalid creator ID in database: %w", err)
	}
	conv := &models.Conversation{
		ID:                 id,
		Kind:               doc.Kind,
		PairKey:            doc.PairKey,
		CreatedBy:          createdBy,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
		LastMessageAt:      doc.LastMessageAt,
		LastMessagePreview: doc.LastMessagePreview,
	}
	if doc.LastMessageSenderID != nil {
		senderID, err := uuid.Parse(*doc.LastMessageSenderID)
		if err != nil {
			return nil, fmt.Errorf("invalid sender ID in database: %w", err)
		}
		conv.LastMessageSenderID = &senderID
	}
	return conv, nil
}

func (doc *MembershipDocument) toModel() (*models.Membership, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid membership ID in database: %w", err)
	}
	convID, err := uuid.Parse(doc.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation ID in database: %w", err)
	}
	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in database: %w", err)
	}
	return &models.Membership{
		ID:             id,
		ConversationID: convID,
		UserID:         userID,
		JoinedAt:       doc.JoinedAt,
		LastReadAt:     doc.LastReadAt,
	}, nil
}

func (m *MongoDB) findConversation(ctx context.Context, filter bson.M) (*models.Conversation, error) {
	var doc ConversationDocument
	err := m.Conversations.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("conversation", err)
	}
	if err != nil {
		return nil, utils.NewStorageError("conversation lookup", err)
	}
	return doc.toModel()
}

func (m *MongoDB) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return m.findConversation(ctx, bson.M{"_id": id.String()})
}

func (m *MongoDB) GetConversationByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	return m.findConversation(ctx, bson.M{"pairKey": pairKey})
}

// InsertConversation relies on the unique pairKey index to reject a second
// conversation for the same pair
func (m *MongoDB) InsertConversation(ctx context.Context, conv *models.Conversation) (uuid.UUID, error) {
	id := conv.ID
	if id == uuid.Nil {
		id = newID()
	}
	doc := ConversationDocument{
		ID:                 id.String(),
		Kind:               conv.Kind,
		PairKey:            conv.PairKey,
		CreatedBy:          conv.CreatedBy.String(),
		CreatedAt:          conv.CreatedAt,
		UpdatedAt:          conv.UpdatedAt,
		LastMessageAt:      conv.LastMessageAt,
		LastMessagePreview: conv.LastMessagePreview,
	}
	if conv.LastMessageSenderID != nil {
		sender := conv.LastMessageSenderID.String()
		doc.LastMessageSenderID = &sender
	}
	if _, err := m.Conversations.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return uuid.Nil, duplicate("conversation", err)
		}
		return uuid.Nil, utils.NewStorageError("conversation insert", err)
	}
	return id, nil
}

// PatchConversationSummary only matches when the stored tail is not newer
// than the patch, so retries and late writers never move it backwards
func (m *MongoDB) PatchConversationSummary(ctx context.Context, id uuid.UUID, patch models.SummaryPatch) error {
	filter := summaryPatchFilter(id, patch.LastMessageAt)
	update := bson.M{"$set": bson.M{
		"updatedAt":           patch.UpdatedAt,
		"lastMessageAt":       patch.LastMessageAt,
		"lastMessagePreview":  patch.Preview,
		"lastMessageSenderId": patch.SenderID.String(),
	}}

	result, err := m.Conversations.UpdateOne(ctx, filter, update)
	if err != nil {
		return utils.NewStorageError("conversation summary patch", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	count, err := m.Conversations.CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return utils.NewStorageError("conversation summary patch", err)
	}
	if count == 0 {
		return notFound("conversation", nil)
	}
	return nil
}

func (m *MongoDB) GetMembership(ctx context.Context, conversationID, userID uuid.UUID) (*models.Membership, error) {
	var doc MembershipDocument
	err := m.Memberships.FindOne(ctx, bson.M{
		"conversationId": conversationID.String(),
		"userId":         userID.String(),
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("membership", err)
	}
	if err != nil {
		return nil, utils.NewStorageError("membership lookup", err)
	}
	return doc.toModel()
}

func (m *MongoDB) InsertMembership(ctx context.Context, membership *models.Membership) (uuid.UUID, error) {
	id := membership.ID
	if id == uuid.Nil {
		id = newID()
	}
	doc := MembershipDocument{
		ID:             id.String(),
		ConversationID: membership.ConversationID.String(),
		UserID:         membership.UserID.String(),
		JoinedAt:       membership.JoinedAt,
		LastReadAt:     membership.LastReadAt,
	}
	if _, err := m.Memberships.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return uuid.Nil, duplicate("membership", err)
		}
		return uuid.Nil, utils.NewStorageError("membership insert", err)
	}
	return id, nil
}

func (m *MongoDB) GetMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error) {
	return m.findMemberships(ctx, bson.M{"userId": userID.String()})
}

func (m *MongoDB) GetMembershipsByConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.Membership, error) {
	return m.findMemberships(ctx, bson.M{"conversationId": conversationID.String()})
}

func (m *MongoDB) findMemberships(ctx context.Context, filter bson.M) ([]*models.Membership, error) {
	cursor, err := m.Memberships.Find(ctx, filter)
	if err != nil {
		return nil, utils.NewStorageError("membership scan", err)
	}
	defer cursor.Close(ctx)

	var docs []MembershipDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, utils.NewStorageError("membership scan", err)
	}

	memberships := make([]*models.Membership, 0, len(docs))
	for i := range docs {
		mm, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, mm)
	}
	return memberships, nil
}

// summaryPatchFilter matches conversation id while its tail is empty or not
// newer than at.
func summaryPatchFilter(id uuid.UUID, at time.Time) bson.M {
	return bson.M{
		"_id": id.String(),
		"$or": []bson.M{
			{"lastMessageAt": bson.M{"$exists": false}},
			{"lastMessageAt": nil},
			{"lastMessageAt": bson.M{"$lte": at}},
		},
	}
}
