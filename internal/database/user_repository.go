// internal/database/user_repository.go
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
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserDocument represents the MongoDB schema for a user
type UserDocument struct {
	ID        string    `bson:"_id"`               // MongoDB primary key
	Username  string    `bson:"username"`          // Normalized username
	Email     *string   `bson:"email,omitempty"`   // Optional email address
	AuthRef   *string   `bson:"authRef,omitempty"` // Credential subject
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (doc *UserDocument) toModel() (*models.User, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in database: %w", err)
	}
	return &models.User{
		ID:        id,
		Username:  doc.Username,
		Email:     doc.Email,
		AuthRef:   doc.AuthRef,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (m *MongoDB) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc UserDocument
	err := m.Users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("user", err)
	}
	if err != nil {
		return nil, utils.NewStorageError("user lookup", err)
	}
	return doc.toModel()
}

// GetUser retrieves a user from MongoDB by their ID
func (m *MongoDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id.String()})
}

// GetUserByUsername uses the unique username index
func (m *MongoDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"username": username})
}

func (m *MongoDB) GetUserByAuthRef(ctx context.Context, authRef string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"authRef": authRef})
}

// InsertUser creates a user document and returns its generated ID
func (m *MongoDB) InsertUser(ctx context.Context, user *models.User) (uuid.UUID, error) {
	id := user.ID
	if id == uuid.Nil {
		id = newID()
	}
	doc := UserDocument{
		ID:        id.String(),
		Username:  user.Username,
		Email:     user.Email,
		AuthRef:   user.AuthRef,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	if _, err := m.Users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return uuid.Nil, duplicate("user", err)
		}
		return uuid.Nil, utils.NewStorageError("user insert", err)
	}
	return id, nil
}

// PatchUser sets updatedAt and any non-nil optional field
func (m *MongoDB) PatchUser(ctx context.Context, id uuid.UUID, patch models.UserPatch) error {
	set := bson.M{"updatedAt": patch.UpdatedAt}
	if patch.AuthRef != nil {
		set["authRef"] = *patch.AuthRef
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}

	result, err := m.Users.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicate("auth reference", err)
		}
		return utils.NewStorageError("user patch", err)
	}
	if result.MatchedCount == 0 {
		return notFound("user", nil)
	}
	return nil
}

// GetAllUsers lists every user ordered by username
func (m *MongoDB) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	cursor, err := m.Users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, utils.NewStorageError("user list", err)
	}
	defer cursor.Close(ctx)

	var docs []UserDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, utils.NewStorageError("user list", err)
	}

	users := make([]*models.User, 0, len(docs))
	for i := range docs {
		u, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
