// internal/database/database.go
package database

import (
	"context"
	"fmt"

	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
)

// UserStore is the storage capability behind the identity registry.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByAuthRef(ctx context.Context, authRef string) (*models.User, error)
	InsertUser(ctx context.Context, user *models.User) (uuid.UUID, error)
	PatchUser(ctx context.Context, id uuid.UUID, patch models.UserPatch) error
	GetAllUsers(ctx context.Context) ([]*models.User, error)
}

// ConversationStore holds conversation records, unique on PairKey.
type ConversationStore interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetConversationByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error)
	InsertConversation(ctx context.Context, conv *models.Conversation) (uuid.UUID, error)
	// PatchConversationSummary applies patch unless the stored lastMessageAt
	// is already later than patch.LastMessageAt.
	PatchConversationSummary(ctx context.Context, id uuid.UUID, patch models.SummaryPatch) error
}

// MembershipStore holds membership rows, unique on (conversationId, userId).
type MembershipStore interface {
	GetMembership(ctx context.Context, conversationID, userID uuid.UUID) (*models.Membership, error)
	InsertMembership(ctx context.Context, m *models.Membership) (uuid.UUID, error)
	GetMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error)
	GetMembershipsByConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.Membership, error)
}

// MessageStore is the append-only ledger storage.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) (uuid.UUID, error)
	// GetMessages returns at most limit messages of a conversation ordered by
	// (createdAt, id) in the given direction.
	GetMessages(ctx context.Context, conversationID uuid.UUID, limit int, dir models.Direction) ([]*models.Message, error)
}

// CredentialStore is used only by the authentication collaborator.
type CredentialStore interface {
	SaveCredential(ctx context.Context, cred *models.Credential) error
	GetCredentialByEmail(ctx context.Context, email string) (*models.Credential, error)
}

// Store bundles every capability a backend must offer. Point lookups return
// an AppError with code utils.ErrNotFound on a miss; inserts that collide
// with a unique key return utils.ErrDuplicate. Everything else is reported as
// utils.ErrStorageUnavailable.
type Store interface {
	UserStore
	ConversationStore
	MembershipStore
	MessageStore
	CredentialStore

	Close(ctx context.Context) error
}

const (
	TypeMongo    = "mongo"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
	TypeMemory   = "memory"
)

// Open connects to the backend named by dbType and prepares its indexes or
// tables.
func Open(ctx context.Context, dbType, uri, name string) (Store, error) {
	switch dbType {
	case TypeMongo:
		db, err := NewMongoDB(ctx, uri, name)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case TypePostgres:
		return NewSQLStore(ctx, "postgres", uri)
	case TypeSQLite:
		return NewSQLStore(ctx, "sqlite3", uri)
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}

// newID generates record ids. Version 7 ids sort by creation time, which
// gives messages a stable tie-break when timestamps collide.
func newID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

func notFound(what string, origin error) error {
	return utils.NewNotFoundError(what, origin)
}

func duplicate(what string, origin error) error {
	return utils.NewAppError(utils.ErrDuplicate, what+" already exists", origin)
}
