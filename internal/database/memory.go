package database

import (
	"context"
	"sort"
	"sync"

	"chui/internal/models"

	"github.com/google/uuid"
)

type membershipKey struct {
	conversationID uuid.UUID
	userID         uuid.UUID
}

// MemoryStore keeps every record in process memory. It enforces the same
// unique keys as the persistent backends and keeps messages in insertion
// order so equal timestamps keep their append order.
type MemoryStore struct {
	mu sync.RWMutex

	users           map[uuid.UUID]*models.User
	usersByName     map[string]uuid.UUID
	usersByAuthRef  map[string]uuid.UUID
	userOrder       []uuid.UUID
	conversations   map[uuid.UUID]*models.Conversation
	conversationKey map[string]uuid.UUID
	memberships     map[membershipKey]*models.Membership
	membershipOrder []membershipKey
	messages        map[uuid.UUID][]*models.Message // ConversationID -> insertion order
	credentials     map[string]*models.Credential   // Email -> Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:           make(map[uuid.UUID]*models.User),
		usersByName:     make(map[string]uuid.UUID),
		usersByAuthRef:  make(map[string]uuid.UUID),
		conversations:   make(map[uuid.UUID]*models.Conversation),
		conversationKey: make(map[string]uuid.UUID),
		memberships:     make(map[membershipKey]*models.Membership),
		messages:        make(map[uuid.UUID][]*models.Message),
		credentials:     make(map[string]*models.Credential),
	}
}

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// --- Users ---

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user", nil)
	}
	return copyUser(u), nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByName[username]
	if !ok {
		return nil, notFound("user", nil)
	}
	return copyUser(s.users[id]), nil
}

func (s *MemoryStore) GetUserByAuthRef(ctx context.Context, authRef string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByAuthRef[authRef]
	if !ok {
		return nil, notFound("user", nil)
	}
	return copyUser(s.users[id]), nil
}

func (s *MemoryStore) InsertUser(ctx context.Context, user *models.User) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByName[user.Username]; exists {
		return uuid.Nil, duplicate("username", nil)
	}
	if user.AuthRef != nil {
		if _, exists := s.usersByAuthRef[*user.AuthRef]; exists {
			return uuid.Nil, duplicate("auth reference", nil)
		}
	}
	u := copyUser(user)
	if u.ID == uuid.Nil {
		u.ID = newID()
	}
	s.users[u.ID] = u
	s.usersByName[u.Username] = u.ID
	if u.AuthRef != nil {
		s.usersByAuthRef[*u.AuthRef] = u.ID
	}
	s.userOrder = append(s.userOrder, u.ID)
	return u.ID, nil
}

func (s *MemoryStore) PatchUser(ctx context.Context, id uuid.UUID, patch models.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return notFound("user", nil)
	}
	if patch.AuthRef != nil {
		if owner, exists := s.usersByAuthRef[*patch.AuthRef]; exists && owner != id {
			return duplicate("auth reference", nil)
		}
		if u.AuthRef != nil {
			delete(s.usersByAuthRef, *u.AuthRef)
		}
		ref := *patch.AuthRef
		u.AuthRef = &ref
		s.usersByAuthRef[ref] = id
	}
	if patch.Email != nil {
		email := *patch.Email
		u.Email = &email
	}
	u.UpdatedAt = patch.UpdatedAt
	return nil
}

func (s *MemoryStore) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*models.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		users = append(users, copyUser(s.users[id]))
	}
	return users, nil
}

// --- Conversations ---

func (s *MemoryStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, notFound("conversation", nil)
	}
	return copyConversation(c), nil
}

func (s *MemoryStore) GetConversationByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.conversationKey[pairKey]
	if !ok {
		return nil, notFound("conversation", nil)
	}
	return copyConversation(s.conversations[id]), nil
}

func (s *MemoryStore) InsertConversation(ctx context.Context, conv *models.Conversation) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversationKey[conv.PairKey]; exists {
		return uuid.Nil, duplicate("conversation", nil)
	}
	c := copyConversation(conv)
	if c.ID == uuid.Nil {
		c.ID = newID()
	}
	s.conversations[c.ID] = c
	s.conversationKey[c.PairKey] = c.ID
	return c.ID, nil
}

func (s *MemoryStore) PatchConversationSummary(ctx context.Context, id uuid.UUID, patch models.SummaryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return notFound("conversation", nil)
	}
	if c.LastMessageAt != nil && c.LastMessageAt.After(patch.LastMessageAt) {
		return nil
	}
	at := patch.LastMessageAt
	sender := patch.SenderID
	c.UpdatedAt = patch.UpdatedAt
	c.LastMessageAt = &at
	c.LastMessagePreview = patch.Preview
	c.LastMessageSenderID = &sender
	return nil
}

// --- Memberships ---

func (s *MemoryStore) GetMembership(ctx context.Context, conversationID, userID uuid.UUID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey{conversationID, userID}]
	if !ok {
		return nil, notFound("membership", nil)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) InsertMembership(ctx context.Context, m *models.Membership) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey{m.ConversationID, m.UserID}
	if _, exists := s.memberships[key]; exists {
		return uuid.Nil, duplicate("membership", nil)
	}
	cp := *m
	if cp.ID == uuid.Nil {
		cp.ID = newID()
	}
	s.memberships[key] = &cp
	s.membershipOrder = append(s.membershipOrder, key)
	return cp.ID, nil
}

func (s *MemoryStore) GetMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error) {
	return s.filterMemberships(func(k membershipKey) bool { return k.userID == userID }), nil
}

func (s *MemoryStore) GetMembershipsByConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.Membership, error) {
	return s.filterMemberships(func(k membershipKey) bool { return k.conversationID == conversationID }), nil
}

func (s *MemoryStore) filterMemberships(match func(membershipKey) bool) []*models.Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.Membership, 0)
	for _, key := range s.membershipOrder {
		if match(key) {
			cp := *s.memberships[key]
			result = append(result, &cp)
		}
	}
	return result
}

// --- Messages ---

func (s *MemoryStore) InsertMessage(ctx context.Context, msg *models.Message) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	if cp.ID == uuid.Nil {
		cp.ID = newID()
	}
	s.messages[cp.ConversationID] = append(s.messages[cp.ConversationID], &cp)
	return cp.ID, nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, conversationID uuid.UUID, limit int, dir models.Direction) ([]*models.Message, error) {
	s.mu.RLock()
	ordered := make([]*models.Message, len(s.messages[conversationID]))
	for i, m := range s.messages[conversationID] {
		cp := *m
		ordered[i] = &cp
	}
	s.mu.RUnlock()

	// Stable keeps insertion order for equal timestamps.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	if dir == models.NewestFirst {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

// --- Credentials ---

func (s *MemoryStore) SaveCredential(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[cred.Email]; exists {
		return duplicate("credential", nil)
	}
	for _, c := range s.credentials {
		if c.Username == cred.Username {
			return duplicate("credential", nil)
		}
	}
	cp := *cred
	s.credentials[cred.Email] = &cp
	return nil
}

func (s *MemoryStore) GetCredentialByEmail(ctx context.Context, email string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[email]
	if !ok {
		return nil, notFound("credential", nil)
	}
	cp := *c
	return &cp, nil
}

func copyUser(u *models.User) *models.User {
	cp := *u
	if u.Email != nil {
		email := *u.Email
		cp.Email = &email
	}
	if u.AuthRef != nil {
		ref := *u.AuthRef
		cp.AuthRef = &ref
	}
	return &cp
}

func copyConversation(c *models.Conversation) *models.Conversation {
	cp := *c
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		cp.LastMessageAt = &at
	}
	if c.LastMessageSenderID != nil {
		id := *c.LastMessageSenderID
		cp.LastMessageSenderID = &id
	}
	return &cp
}
