package auth

import (
	"context"
	"strings"
	"time"

	"chui/internal/database"
	"chui/internal/messaging"
	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultEmailDomain = "users.chui.local"
	minPasswordLength  = 6
)

// Result is returned by a successful sign-up or sign-in.
type Result struct {
	Session   messaging.Session `json:"session"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Service issues credentials and sessions and keeps user records linked to
// them through the identity registry.
type Service struct {
	credentials database.CredentialStore
	registry    *messaging.Registry
	tokens      *TokenIssuer
	cost        int
	now         func() time.Time
}

func NewService(credentials database.CredentialStore, registry *messaging.Registry, tokens *TokenIssuer) *Service {
	return &Service{
		credentials: credentials,
		registry:    registry,
		tokens:      tokens,
		cost:        bcrypt.DefaultCost,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// DefaultEmail is the address given to accounts registered without one.
func DefaultEmail(username string) string {
	return username + "@" + defaultEmailDomain
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// SignUp creates a credential and its user record, then opens a session.
func (s *Service) SignUp(ctx context.Context, username, email, password string) (*Result, error) {
	name, err := s.registry.ParseUsername(username)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, utils.NewAppError(utils.ErrInvalidInput,
			"Password must be at least 6 characters", nil)
	}
	email = normalizeEmail(email)
	if email == "" {
		email = DefaultEmail(name)
	}
	if !strings.Contains(email, "@") {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "Email address is not valid", nil)
	}

	existing, err := s.registry.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, utils.NewAppError(utils.ErrUsernameTaken, "Username "+name+" is already taken", nil)
	}
	if _, err := s.credentials.GetCredentialByEmail(ctx, email); err == nil {
		return nil, utils.NewAppError(utils.ErrEmailTaken, "Email "+email+" is already registered", nil)
	} else if !utils.IsErrorCode(err, utils.ErrNotFound) {
		return nil, utils.NewStorageError("credential lookup", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "Password could not be processed", err)
	}

	cred := &models.Credential{
		AuthRef:      uuid.NewString(),
		Username:     name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.credentials.SaveCredential(ctx, cred); err != nil {
		if utils.IsErrorCode(err, utils.ErrDuplicate) {
			return nil, utils.NewAppError(utils.ErrUsernameTaken,
				"Username or email is already registered", err)
		}
		return nil, utils.NewStorageError("credential insert", err)
	}

	log.Info().Str("username", name).Msg("credential created")
	return s.open(ctx, cred)
}

// SignIn checks a password for an email address or username.
func (s *Service) SignIn(ctx context.Context, login, password string) (*Result, error) {
	invalid := utils.NewAppError(utils.ErrInvalidCredentials, "Invalid credentials", nil)

	email := normalizeEmail(login)
	if !strings.Contains(email, "@") {
		user, err := s.registry.Lookup(ctx, email)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, invalid
		}
		email = DefaultEmail(user.Username)
		if user.Email != nil {
			email = *user.Email
		}
	}

	cred, err := s.credentials.GetCredentialByEmail(ctx, email)
	if err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return nil, invalid
		}
		return nil, utils.NewStorageError("credential lookup", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}
	return s.open(ctx, cred)
}

// open refreshes the user record's link to cred and issues a token.
func (s *Service) open(ctx context.Context, cred *models.Credential) (*Result, error) {
	email := cred.Email
	userID, err := s.registry.ResolveOrCreate(ctx, cred.Username, &cred.AuthRef, &email)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.GenerateToken(cred.AuthRef, cred.Username)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrUnauthorized, "Could not create a session", err)
	}
	return &Result{
		Session:   messaging.Session{UserID: userID, Username: cred.Username},
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveSession maps a bearer token to the session of its user.
func (s *Service) ResolveSession(ctx context.Context, token string) (messaging.Session, error) {
	if strings.TrimSpace(token) == "" {
		return messaging.Session{}, utils.NewUnauthorizedError("no session")
	}
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return messaging.Session{}, err
	}
	user, err := s.registry.LookupByAuthRef(ctx, claims.Subject)
	if err != nil {
		return messaging.Session{}, err
	}
	if user == nil {
		return messaging.Session{}, utils.NewUnauthorizedError("account no longer exists")
	}
	return messaging.Session{UserID: user.ID, Username: user.Username}, nil
}
