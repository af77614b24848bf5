package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"chui/internal/database"
	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMessenger(store database.Store) *Messenger {
	return NewMessenger(store, Options{Now: newTestClock(time.Millisecond).Now})
}

func signIn(t *testing.T, m *Messenger, username string) Session {
	t.Helper()
	id, err := m.Registry.ResolveOrCreate(context.Background(), username, nil, nil)
	require.NoError(t, err)
	return Session{UserID: id, Username: NormalizeUsername(username)}
}

func TestMessengerRequiresSession(t *testing.T) {
	ctx := context.Background()
	m := newMessenger(database.NewMemoryStore())

	_, err := m.SendDirectMessage(ctx, Session{}, "bob", "hi")
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))
	_, err = m.ListMyConversations(ctx, Session{}, 10)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))
	_, err = m.ListConversationMessages(ctx, Session{}, uuid.NewString(), 10)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))
	_, err = m.ListProfiles(ctx, Session{})
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))
	_, err = m.MyProfile(ctx, Session{})
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnauthorized))
}

func TestSendDirectMessageValidation(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	m := newMessenger(store)
	alice := signIn(t, m, "alice")
	signIn(t, m, "bob")

	tests := []struct {
		name string
		to   string
		body string
		code string
	}{
		{"empty body", "bob", "", utils.ErrEmptyMessageBody},
		{"whitespace body", "bob", "   \n", utils.ErrEmptyMessageBody},
		{"bad username", "b!", "hi", utils.ErrInvalidUsername},
		{"unknown recipient", "nobody", "hi", utils.ErrRecipientNotFound},
		{"self", " ALICE ", "hi", utils.ErrSelfConversation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.SendDirectMessage(ctx, alice, tt.to, tt.body)
			require.Error(t, err)
			assert.Equal(t, tt.code, utils.ErrorCode(err))
		})
	}

	// None of the failures left a conversation behind.
	memberships, err := store.GetMembershipsByUser(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, memberships)
}

func TestEmptyBodyLeavesExistingConversationUntouched(t *testing.T) {
	ctx := context.Background()
	m := newMessenger(database.NewMemoryStore())
	alice := signIn(t, m, "alice")
	signIn(t, m, "bob")

	sent, err := m.SendDirectMessage(ctx, alice, "bob", "first")
	require.NoError(t, err)

	_, err = m.SendDirectMessage(ctx, alice, "bob", "  ")
	require.True(t, utils.IsErrorCode(err, utils.ErrEmptyMessageBody))

	msgs, err := m.ListConversationMessages(ctx, alice, sent.ConversationID.String(), 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	list, err := m.ListMyConversations(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first", list[0].LastMessagePreview)
	assert.True(t, list[0].LastMessageAt.Equal(sent.Message.CreatedAt))
}

func TestSendShowsUpForBothParticipants(t *testing.T) {
	ctx := context.Background()
	m := newMessenger(database.NewMemoryStore())
	alice := signIn(t, m, "alice")
	bob := signIn(t, m, "bob")

	result, err := m.SendDirectMessage(ctx, alice, "bob", "hi")
	require.NoError(t, err)
	assert.False(t, result.SummaryStale)
	assert.Equal(t, "alice", result.Message.SenderUsername)

	forAlice, err := m.ListMyConversations(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, forAlice, 1)
	assert.Equal(t, "bob", forAlice[0].OtherUser.Username)
	assert.Equal(t, "hi", forAlice[0].LastMessagePreview)

	forBob, err := m.ListMyConversations(ctx, bob, 10)
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	assert.Equal(t, "alice", forBob[0].OtherUser.Username)
	assert.Equal(t, forAlice[0].ConversationID, forBob[0].ConversationID)
	require.NotNil(t, forBob[0].LastMessageSenderID)
	assert.Equal(t, alice.UserID, *forBob[0].LastMessageSenderID)
}

func TestLongBodyPreviewIsTruncated(t *testing.T) {
	ctx := context.Background()
	m := newMessenger(database.NewMemoryStore())
	alice := signIn(t, m, "alice")
	signIn(t, m, "bob")

	body := strings.Repeat("ab", 150)
	result, err := m.SendDirectMessage(ctx, alice, "bob", body)
	require.NoError(t, err)
	assert.Equal(t, body, result.Message.Body)

	list, err := m.ListMyConversations(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, PreviewLimit, utf8.RuneCountInString(list[0].LastMessagePreview))
	assert.Equal(t, body[:PreviewLimit], list[0].LastMessagePreview)
}

func TestListConversationMessagesClampsLimit(t *testing.T) {
	ctx := context.Background()
	m := newMessenger(database.NewMemoryStore())
	alice := signIn(t, m, "alice")
	signIn(t, m, "bob")

	var convID uuid.UUID
	for i := 0; i < MaxPageLimit+10; i++ {
		result, err := m.SendDirectMessage(ctx, alice, "bob", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		convID = result.ConversationID
	}

	msgs, err := m.ListConversationMessages(ctx, alice, convID.String(), 500)
	require.NoError(t, err)
	require.Len(t, msgs, MaxPageLimit)
	// Newest page, oldest first.
	assert.Equal(t, "m10", msgs[0].Body)
	assert.Equal(t, fmt.Sprintf("m%d", MaxPageLimit+9), msgs[len(msgs)-1].Body)
}

func TestListConversationMessagesHidesForeignConversations(t *testing.T) {
	ctx := context.Background()
	m := newMessenger(database.NewMemoryStore())
	alice := signIn(t, m, "alice")
	signIn(t, m, "bob")
	mallory := signIn(t, m, "mallory")

	sent, err := m.SendDirectMessage(ctx, alice, "bob", "secret")
	require.NoError(t, err)

	for _, id := range []string{sent.ConversationID.String(), uuid.NewString(), "not-a-uuid"} {
		_, err := m.ListConversationMessages(ctx, mallory, id, 10)
		require.Error(t, err)
		assert.True(t, utils.IsErrorCode(err, utils.ErrConversationNotFound), id)
	}
}

func TestListProfilesAndMyProfile(t *testing.T) {
	ctx := context.Background()
	m := newMessenger(database.NewMemoryStore())
	carol := signIn(t, m, "carol")
	signIn(t, m, "alice")
	signIn(t, m, "bob")

	profiles, err := m.ListProfiles(ctx, carol)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"},
		[]string{profiles[0].Username, profiles[1].Username, profiles[2].Username})

	me, err := m.MyProfile(ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, carol.UserID, me.ID)

	_, err = m.MyProfile(ctx, Session{UserID: uuid.New(), Username: "ghost"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrProfileNotFound))
}

// failingSummaryStore refuses every summary patch.
type failingSummaryStore struct {
	*database.MemoryStore
}

func (s failingSummaryStore) PatchConversationSummary(ctx context.Context, id uuid.UUID, patch models.SummaryPatch) error {
	return utils.NewStorageError("summary patch", errors.New("connection reset"))
}

func TestSendKeepsMessageWhenSummaryFails(t *testing.T) {
	ctx := context.Background()
	memory := database.NewMemoryStore()
	m := newMessenger(failingSummaryStore{memory})
	alice := signIn(t, m, "alice")
	signIn(t, m, "bob")

	result, err := m.SendDirectMessage(ctx, alice, "bob", "still delivered")
	require.NoError(t, err)
	assert.True(t, result.SummaryStale)

	msgs, err := m.ListConversationMessages(ctx, alice, result.ConversationID.String(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "still delivered", msgs[0].Body)

	conv, err := memory.GetConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	assert.Nil(t, conv.LastMessageAt)

	// The next send through a healthy store repairs the summary.
	healthy := newMessenger(memory)
	_, err = healthy.SendDirectMessage(ctx, alice, "bob", "again")
	require.NoError(t, err)
	conv, err = memory.GetConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "again", conv.LastMessagePreview)
}

// unavailableStore fails every user lookup.
type unavailableStore struct {
	*database.MemoryStore
}

func (s unavailableStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestStorageFailuresSurfaceAsStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	m := newMessenger(unavailableStore{database.NewMemoryStore()})

	sess := Session{UserID: uuid.New(), Username: "alice"}
	_, err := m.SendDirectMessage(ctx, sess, "bob", "hi")
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrStorageUnavailable))
	assert.NotContains(t, utils.UserMessage(err), "connection refused")
}

func runAliceBobScenario(t *testing.T, store database.Store) {
	ctx := context.Background()
	m := newMessenger(store)
	alice := signIn(t, m, "alice")
	bob := signIn(t, m, "bob")

	first, err := m.SendDirectMessage(ctx, alice, "bob", "hello bob")
	require.NoError(t, err)

	conv, err := store.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", conv.LastMessagePreview)
	members, err := store.GetMembershipsByConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Len(t, mustList(t, m, alice), 1)

	second, err := m.SendDirectMessage(ctx, bob, "alice", "hi alice")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	msgs, err := m.ListConversationMessages(ctx, bob, first.ConversationID.String(), 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello bob", msgs[0].Body)
	assert.Equal(t, "alice", msgs[0].SenderUsername)
	assert.Equal(t, "hi alice", msgs[1].Body)
	assert.Equal(t, "bob", msgs[1].SenderUsername)

	head, err := m.Ledger.Page(ctx, first.ConversationID, 10, models.OldestFirst)
	require.NoError(t, err)
	require.Len(t, head, 2)
	assert.Equal(t, "hello bob", head[0].Body)
	assert.Equal(t, "hi alice", head[1].Body)

	list := mustList(t, m, alice)
	require.Len(t, list, 1)
	assert.Equal(t, "hi alice", list[0].LastMessagePreview)
	assert.Equal(t, "bob", list[0].OtherUser.Username)
}

func mustList(t *testing.T, m *Messenger, sess Session) []models.ConversationSummary {
	t.Helper()
	list, err := m.ListMyConversations(context.Background(), sess, 0)
	require.NoError(t, err)
	return list
}

func TestAliceBobScenario(t *testing.T) {
	runAliceBobScenario(t, database.NewMemoryStore())
}

func TestAliceBobScenarioOnSQLite(t *testing.T) {
	store, err := database.NewSQLStore(context.Background(), "sqlite3", ":memory:")
	require.NoError(t, err)
	defer store.Close(context.Background())

	runAliceBobScenario(t, store)
}
