package messaging

import (
	"context"
	"sort"
	"strings"
	"time"

	"chui/internal/database"
	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 20
)

// Registry maps usernames to user records and keeps them linked to the
// authentication collaborator.
type Registry struct {
	store           database.UserStore
	allowUnderscore bool
	now             func() time.Time
}

func NewRegistry(store database.UserStore, allowUnderscore bool, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, allowUnderscore: allowUnderscore, now: now}
}

// NormalizeUsername trims surrounding whitespace and lowercases.
func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ParseUsername normalizes raw and checks it against the username alphabet.
func ParseUsername(raw string, allowUnderscore bool) (string, error) {
	name := NormalizeUsername(raw)
	if len(name) < minUsernameLength || len(name) > maxUsernameLength {
		return "", utils.NewAppError(utils.ErrInvalidUsername,
			"Username must be 3-20 characters", nil)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '_' && allowUnderscore:
		default:
			msg := "Username may only contain lowercase letters and digits"
			if allowUnderscore {
				msg = "Username may only contain lowercase letters, digits and underscores"
			}
			return "", utils.NewAppError(utils.ErrInvalidUsername, msg, nil)
		}
	}
	return name, nil
}

// ParseUsername validates raw with the registry's alphabet.
func (r *Registry) ParseUsername(raw string) (string, error) {
	return ParseUsername(raw, r.allowUnderscore)
}

// ResolveOrCreate returns the id of the user named username, creating the
// record when absent. A supplied authRef or email is written onto an existing
// record; an existing authRef is never cleared.
func (r *Registry) ResolveOrCreate(ctx context.Context, username string, authRef, email *string) (uuid.UUID, error) {
	name, err := r.ParseUsername(username)
	if err != nil {
		return uuid.Nil, err
	}

	existing, err := r.store.GetUserByUsername(ctx, name)
	switch {
	case err == nil:
		return r.refresh(ctx, existing, authRef, email)
	case !utils.IsErrorCode(err, utils.ErrNotFound):
		return uuid.Nil, storageFailure("username lookup", err)
	}

	now := r.now()
	id, err := r.store.InsertUser(ctx, &models.User{
		Username:  name,
		Email:     email,
		AuthRef:   authRef,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err == nil {
		log.Info().Str("user_id", id.String()).Str("username", name).Msg("registered user")
		return id, nil
	}
	if !utils.IsErrorCode(err, utils.ErrDuplicate) {
		return uuid.Nil, storageFailure("user insert", err)
	}

	// Lost a race on the username: converge on the winner's record.
	winner, err := r.store.GetUserByUsername(ctx, name)
	if err != nil {
		return uuid.Nil, storageFailure("username lookup", err)
	}
	return r.refresh(ctx, winner, authRef, email)
}

func (r *Registry) refresh(ctx context.Context, user *models.User, authRef, email *string) (uuid.UUID, error) {
	patch := models.UserPatch{UpdatedAt: r.now(), AuthRef: authRef, Email: email}
	if err := r.store.PatchUser(ctx, user.ID, patch); err != nil {
		if utils.IsErrorCode(err, utils.ErrDuplicate) {
			return uuid.Nil, utils.NewAppError(utils.ErrUsernameTaken,
				"That username is linked to another account", err)
		}
		return uuid.Nil, storageFailure("user update", err)
	}
	return user.ID, nil
}

// Lookup is a pure read. It returns nil, nil when no user has the name.
func (r *Registry) Lookup(ctx context.Context, username string) (*models.User, error) {
	user, err := r.store.GetUserByUsername(ctx, NormalizeUsername(username))
	return optional(user, err, "username lookup")
}

// LookupByAuthRef finds the user linked to an authentication reference, or
// nil, nil.
func (r *Registry) LookupByAuthRef(ctx context.Context, authRef string) (*models.User, error) {
	user, err := r.store.GetUserByAuthRef(ctx, authRef)
	return optional(user, err, "auth reference lookup")
}

// Get returns the user with id, or nil, nil.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := r.store.GetUser(ctx, id)
	return optional(user, err, "user lookup")
}

// List returns every registered user ordered by username.
func (r *Registry) List(ctx context.Context) ([]*models.User, error) {
	users, err := r.store.GetAllUsers(ctx)
	if err != nil {
		return nil, storageFailure("user list", err)
	}
	sortUsersByName(users)
	return users, nil
}

func optional[T any](value *T, err error, op string) (*T, error) {
	if err == nil {
		return value, nil
	}
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return nil, nil
	}
	return nil, storageFailure(op, err)
}

// storageFailure keeps an existing StorageUnavailable error and wraps
// anything else into one.
func storageFailure(op string, err error) error {
	if utils.IsErrorCode(err, utils.ErrStorageUnavailable) {
		return err
	}
	return utils.NewStorageError(op, err)
}

func sortUsersByName(users []*models.User) {
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
}
