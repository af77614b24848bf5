package cli

import (
	"fmt"
	"os"
	"time"

	"chui/internal/client"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server      string
	SessionPath string
	Format      string // "json" | "text"
	Timeout     time.Duration

	// Location renders message times; nil means time.Local.
	Location *time.Location
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chui CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chui",
		Short: "chui - direct messages from the terminal",
		Long:  "A terminal client for the chui direct-messaging server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.SessionPath == "" {
				path, err := client.DefaultSessionPath()
				if err != nil {
					return err
				}
				opts.SessionPath = path
			}
			return nil
		},
	}

	server := os.Getenv("CHUI_SERVER")
	if server == "" {
		server = defaultServer
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", server, "chui server URL (env CHUI_SERVER)")
	cmd.PersistentFlags().StringVar(&opts.SessionPath, "session", "", "session file (default ~/.chui/session.json)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", client.DefaultTimeout, "request timeout")

	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewUsersCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewInboxCommand(opts))
	cmd.AddCommand(NewReadCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) sessionFile() client.SessionFile {
	return client.SessionFile{Path: o.SessionPath}
}

// client returns an API client for the session's server, or for --server
// when there is no session yet.
func (o *RootOptions) client(s *client.Session) *client.Client {
	server := o.Server
	if s != nil && s.Server != "" {
		server = s.Server
	}
	return client.New(server, o.Timeout)
}

// session loads the stored session. Expired tokens are reported here so the
// user is told to sign in again without a round trip.
func (o *RootOptions) session() (*client.Session, error) {
	s, err := o.sessionFile().Load()
	if err != nil {
		return nil, err
	}
	if s.Expired(time.Now()) {
		return nil, WrapExitError(ExitFailure, "session expired, run `chui login` again", nil)
	}
	return s, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Location:  loc,
	}
}
