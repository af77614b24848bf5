// internal/database/sqlstore.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLStore implements Store on PostgreSQL ("postgres") or SQLite ("sqlite3").
type SQLStore struct {
	DB     *sqlx.DB
	driver string
}

// NewSQLStore connects and creates the schema if it does not exist yet.
func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	switch {
	case driver == "sqlite3" && (dsn == ":memory:" || strings.Contains(dsn, "mode=memory")):
		// Each in-memory connection is its own database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case driver == "sqlite3":
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	store := &SQLStore{DB: db, driver: driver}
	if err := store.InitializeTables(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", driver).Msg("connected to SQL database")
	return store, nil
}

// Close closes the database connection
func (s *SQLStore) Close(ctx context.Context) error {
	return s.DB.Close()
}

// InitializeTables creates all necessary tables and indexes if they don't exist
func (s *SQLStore) InitializeTables(ctx context.Context) error {
	idType, tsType := "UUID", "TIMESTAMPTZ"
	if s.driver == "sqlite3" {
		idType, tsType = "TEXT", "DATETIME"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id %[1]s PRIMARY KEY,
			username VARCHAR(20) NOT NULL UNIQUE,
			email TEXT,
			auth_ref TEXT UNIQUE,
			created_at %[2]s NOT NULL,
			updated_at %[2]s NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id %[1]s PRIMARY KEY,
			kind VARCHAR(16) NOT NULL,
			pair_key TEXT NOT NULL UNIQUE,
			created_by %[1]s NOT NULL REFERENCES users(id),
			created_at %[2]s NOT NULL,
			updated_at %[2]s NOT NULL,
			last_message_at %[2]s,
			last_message_preview TEXT NOT NULL DEFAULT '',
			last_message_sender_id %[1]s
		)`,
		`CREATE TABLE IF NOT EXISTS memberships (
			id %[1]s PRIMARY KEY,
			conversation_id %[1]s NOT NULL REFERENCES conversations(id),
			user_id %[1]s NOT NULL REFERENCES users(id),
			joined_at %[2]s NOT NULL,
			last_read_at %[2]s,
			UNIQUE (conversation_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id %[1]s PRIMARY KEY,
			conversation_id %[1]s NOT NULL REFERENCES conversations(id),
			sender_id %[1]s NOT NULL REFERENCES users(id),
			body TEXT NOT NULL,
			created_at %[2]s NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			auth_ref TEXT PRIMARY KEY,
			username VARCHAR(20) NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at %[2]s NOT NULL
		)`,
	}

	// Column types differ per driver; index statements carry no placeholders.
	types := strings.NewReplacer("%[1]s", idType, "%[2]s", tsType)
	for _, stmt := range statements {
		if _, err := s.DB.ExecContext(ctx, types.Replace(stmt)); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (s *SQLStore) get(ctx context.Context, what string, dest interface{}, query string, args ...interface{}) error {
	err := s.DB.GetContext(ctx, dest, s.DB.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(what, err)
	}
	if err != nil {
		return utils.NewStorageError(what+" lookup", err)
	}
	return nil
}

func (s *SQLStore) insert(ctx context.Context, what, query string, arg interface{}) error {
	if _, err := s.DB.NamedExecContext(ctx, query, arg); err != nil {
		if isUniqueViolation(err) {
			return duplicate(what, err)
		}
		return utils.NewStorageError(what+" insert", err)
	}
	return nil
}

// --- Users ---

const userColumns = `id, username, email, auth_ref, created_at, updated_at`

func (s *SQLStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.get(ctx, "user", &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.get(ctx, "user", &user, `SELECT `+userColumns+` FROM users WHERE username = ?`, username); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) GetUserByAuthRef(ctx context.Context, authRef string) (*models.User, error) {
	var user models.User
	if err := s.get(ctx, "user", &user, `SELECT `+userColumns+` FROM users WHERE auth_ref = ?`, authRef); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) InsertUser(ctx context.Context, user *models.User) (uuid.UUID, error) {
	row := *user
	if row.ID == uuid.Nil {
		row.ID = newID()
	}
	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = row.UpdatedAt.UTC()
	err := s.insert(ctx, "user", `
		INSERT INTO users (id, username, email, auth_ref, created_at, updated_at)
		VALUES (:id, :username, :email, :auth_ref, :created_at, :updated_at)
	`, &row)
	if err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

func (s *SQLStore) PatchUser(ctx context.Context, id uuid.UUID, patch models.UserPatch) error {
	query := `UPDATE users SET updated_at = ?, auth_ref = COALESCE(?, auth_ref), email = COALESCE(?, email) WHERE id = ?`
	result, err := s.DB.ExecContext(ctx, s.DB.Rebind(query), patch.UpdatedAt.UTC(), patch.AuthRef, patch.Email, id)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicate("auth reference", err)
		}
		return utils.NewStorageError("user patch", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notFound("user", nil)
	}
	return nil
}

func (s *SQLStore) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	users := make([]*models.User, 0)
	if err := s.DB.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY username`); err != nil {
		return nil, utils.NewStorageError("user list", err)
	}
	return users, nil
}

// --- Conversations ---

const conversationColumns = `id, kind, pair_key, created_by, created_at, updated_at,
	last_message_at, last_message_preview, last_message_sender_id`

func (s *SQLStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.get(ctx, "conversation", &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *SQLStore) GetConversationByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.get(ctx, "conversation", &conv, `SELECT `+conversationColumns+` FROM conversations WHERE pair_key = ?`, pairKey); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *SQLStore) InsertConversation(ctx context.Context, conv *models.Conversation) (uuid.UUID, error) {
	row := *conv
	if row.ID == uuid.Nil {
		row.ID = newID()
	}
	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = row.UpdatedAt.UTC()
	err := s.insert(ctx, "conversation", `
		INSERT INTO conversations (id, kind, pair_key, created_by, created_at, updated_at,
			last_message_at, last_message_preview, last_message_sender_id)
		VALUES (:id, :kind, :pair_key, :created_by, :created_at, :updated_at,
			:last_message_at, :last_message_preview, :last_message_sender_id)
	`, &row)
	if err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

func (s *SQLStore) PatchConversationSummary(ctx context.Context, id uuid.UUID, patch models.SummaryPatch) error {
	at := patch.LastMessageAt.UTC()
	query := `
		UPDATE conversations
		SET updated_at = ?, last_message_at = ?, last_message_preview = ?, last_message_sender_id = ?
		WHERE id = ? AND (last_message_at IS NULL OR last_message_at <= ?)
	`
	result, err := s.DB.ExecContext(ctx, s.DB.Rebind(query),
		patch.UpdatedAt.UTC(), at, patch.Preview, patch.SenderID, id, at)
	if err != nil {
		return utils.NewStorageError("conversation summary patch", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}

	// Nothing matched: either the conversation is gone or it already holds a newer tail.
	var exists int
	return s.get(ctx, "conversation", &exists, `SELECT 1 FROM conversations WHERE id = ?`, id)
}

// --- Memberships ---

const membershipColumns = `id, conversation_id, user_id, joined_at, last_read_at`

func (s *SQLStore) GetMembership(ctx context.Context, conversationID, userID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := s.get(ctx, "membership", &m,
		`SELECT `+membershipColumns+` FROM memberships WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLStore) InsertMembership(ctx context.Context, m *models.Membership) (uuid.UUID, error) {
	row := *m
	if row.ID == uuid.Nil {
		row.ID = newID()
	}
	row.JoinedAt = row.JoinedAt.UTC()
	err := s.insert(ctx, "membership", `
		INSERT INTO memberships (id, conversation_id, user_id, joined_at, last_read_at)
		VALUES (:id, :conversation_id, :user_id, :joined_at, :last_read_at)
	`, &row)
	if err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

func (s *SQLStore) GetMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error) {
	return s.selectMemberships(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE user_id = ? ORDER BY id`, userID)
}

func (s *SQLStore) GetMembershipsByConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.Membership, error) {
	return s.selectMemberships(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE conversation_id = ? ORDER BY id`, conversationID)
}

func (s *SQLStore) selectMemberships(ctx context.Context, query string, arg uuid.UUID) ([]*models.Membership, error) {
	memberships := make([]*models.Membership, 0)
	if err := s.DB.SelectContext(ctx, &memberships, s.DB.Rebind(query), arg); err != nil {
		return nil, utils.NewStorageError("membership scan", err)
	}
	return memberships, nil
}

// --- Messages ---

func (s *SQLStore) InsertMessage(ctx context.Context, msg *models.Message) (uuid.UUID, error) {
	row := *msg
	if row.ID == uuid.Nil {
		row.ID = newID()
	}
	row.CreatedAt = row.CreatedAt.UTC()
	err := s.insert(ctx, "message", `
		INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
		VALUES (:id, :conversation_id, :sender_id, :body, :created_at)
	`, &row)
	if err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

func (s *SQLStore) GetMessages(ctx context.Context, conversationID uuid.UUID, limit int, dir models.Direction) ([]*models.Message, error) {
	order := "ASC"
	if dir == models.NewestFirst {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT id, conversation_id, sender_id, body, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at %[1]s, id %[1]s
		LIMIT ?
	`, order)

	messages := make([]*models.Message, 0, limit)
	if err := s.DB.SelectContext(ctx, &messages, s.DB.Rebind(query), conversationID, limit); err != nil {
		return nil, utils.NewStorageError("message page", err)
	}
	return messages, nil
}

// --- Credentials ---

func (s *SQLStore) SaveCredential(ctx context.Context, cred *models.Credential) error {
	row := *cred
	row.CreatedAt = row.CreatedAt.UTC()
	return s.insert(ctx, "credential", `
		INSERT INTO credentials (auth_ref, username, email, password_hash, created_at)
		VALUES (:auth_ref, :username, :email, :password_hash, :created_at)
	`, &row)
}

func (s *SQLStore) GetCredentialByEmail(ctx context.Context, email string) (*models.Credential, error) {
	var cred models.Credential
	err := s.get(ctx, "credential", &cred,
		`SELECT auth_ref, username, email, password_hash, created_at FROM credentials WHERE email = ?`, email)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}
