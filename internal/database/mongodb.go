// internal/database/mongodb.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoDatabase = "chui"

type MongoDB struct {
	Client        *mongo.Client
	Users         *mongo.Collection
	Conversations *mongo.Collection
	Memberships   *mongo.Collection
	Messages      *mongo.Collection
	Credentials   *mongo.Collection
}

func NewMongoDB(ctx context.Context, uri, name string) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if name == "" {
		name = defaultMongoDatabase
	}
	log.Info().Str("database", name).Msg("connected to MongoDB")

	db := client.Database(name)
	return &MongoDB{
		Client:        client,
		Users:         db.Collection("users"),
		Conversations: db.Collection("conversations"),
		Memberships:   db.Collection("memberships"),
		Messages:      db.Collection("messages"),
		Credentials:   db.Collection("credentials"),
	}, nil
}

// EnsureIndexes creates the unique and scan indexes every lookup relies on.
// The unique ones are what make concurrent find-or-create converge.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	sparseUnique := options.Index().SetUnique(true).SetSparse(true)

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		m.Users: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "authRef", Value: 1}}, Options: sparseUnique},
		},
		m.Conversations: {
			{Keys: bson.D{{Key: "pairKey", Value: 1}}, Options: unique},
		},
		m.Memberships: {
			{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "userId", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "userId", Value: 1}}},
		},
		m.Messages: {
			{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		},
		m.Credentials: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		},
	}

	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
