package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"chui/internal/models"
	"chui/internal/testserver"
	"chui/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "chui", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"register", "login", "logout", "whoami", "users", "send", "inbox", "read"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("server"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("session"))
}

// terminal is one user's shell: a server URL and a private session file.
type terminal struct {
	t       *testing.T
	srv     *httptest.Server
	session string
}

func newTerminal(t *testing.T, srv *httptest.Server) *terminal {
	return &terminal{t: t, srv: srv, session: filepath.Join(t.TempDir(), "session.json")}
}

func (term *terminal) run(stdin string, args ...string) (string, error) {
	term.t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", term.srv.URL, "--session", term.session}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (term *terminal) mustRun(args ...string) string {
	term.t.Helper()
	out, err := term.run("", args...)
	require.NoError(term.t, err, out)
	return out
}

func TestConversationFromTheTerminal(t *testing.T) {
	t.Setenv("CHUI_PASSWORD", "")
	srv := testserver.New(t)
	alice := newTerminal(t, srv)
	bob := newTerminal(t, srv)

	assert.Contains(t, alice.mustRun("register", "Alice", "--password", "password123"), "Signed in as alice.")
	out, err := bob.run("password123\n", "register", "bob")
	require.NoError(t, err, out)

	out = alice.mustRun("send", "bob", "lunch", "at", "noon?")
	assert.Contains(t, out, "alice: lunch at noon?")

	out = bob.mustRun("inbox")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "lunch at noon?")

	out = bob.mustRun("send", "alice", "sure")
	assert.Contains(t, out, "alice: lunch at noon?")
	assert.Contains(t, out, "bob: sure")
	assert.Less(t, strings.Index(out, "lunch"), strings.Index(out, "sure"))

	out = alice.mustRun("--format", "json", "read", "BOB")
	var resp struct {
		Status string               `json:"status"`
		Data   []models.MessageView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "sure", resp.Data[1].Body)

	out = alice.mustRun("read", resp.Data[0].ConversationID.String(), "--limit", "1")
	assert.NotContains(t, out, "lunch")
	assert.Contains(t, out, "bob: sure")

	assert.Contains(t, alice.mustRun("whoami"), "alice (")
	out = alice.mustRun("users")
	assert.Contains(t, out, "* alice")
	assert.Contains(t, out, "  bob")
}

func TestTerminalErrors(t *testing.T) {
	t.Setenv("CHUI_PASSWORD", "")
	srv := testserver.New(t)
	alice := newTerminal(t, srv)

	out, err := alice.run("", "whoami")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, utils.ErrUnauthorized)

	out, err = alice.run("", "register", "alice")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "password required")

	alice.mustRun("register", "alice", "-p", "password123")

	out, err = alice.run("", "send", "alice", "note to self")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, utils.ErrSelfConversation)

	out, err = alice.run("", "send", "nobody", "hello?")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, utils.ErrRecipientNotFound)

	out, err = alice.run("", "read", "carol")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, utils.ErrConversationNotFound)

	_, err = alice.run("", "--format", "xml", "inbox")
	assert.Error(t, err)

	assert.Contains(t, alice.mustRun("logout"), "Signed out.")
	_, err = alice.run("", "inbox")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
