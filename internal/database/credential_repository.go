package database

import (
	"context"
	"errors"
	"time"

	"chui/internal/models"
	"chui/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CredentialDocument stores a password login, keyed by the auth reference
type CredentialDocument struct {
	AuthRef      string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func (m *MongoDB) SaveCredential(ctx context.Context, cred *models.Credential) error {
	doc := CredentialDocument{
		AuthRef:      cred.AuthRef,
		Username:     cred.Username,
		Email:        cred.Email,
		PasswordHash: cred.PasswordHash,
		CreatedAt:    cred.CreatedAt,
	}
	if _, err := m.Credentials.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicate("credential", err)
		}
		return utils.NewStorageError("credential insert", err)
	}
	return nil
}

func (m *MongoDB) GetCredentialByEmail(ctx context.Context, email string) (*models.Credential, error) {
	var doc CredentialDocument
	err := m.Credentials.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("credential", err)
	}
	if err != nil {
		return nil, utils.NewStorageError("credential lookup", err)
	}
	return &models.Credential{
		AuthRef:      doc.AuthRef,
		Username:     doc.Username,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
	}, nil
}
