package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"chui/internal/api"
	"chui/internal/client"

	"github.com/spf13/cobra"
)

// AccountOptions holds flags shared by register and login.
type AccountOptions struct {
	*RootOptions
	Password string
	Email    string
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and sign in",
		Long: `Create an account on the server and store the session locally.

The password is taken from --password, then CHUI_PASSWORD, then the
first line of standard input.

Examples:
  chui register alice --password s3cret!
  echo s3cret! | chui register alice --email alice@example.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			password, err := readPassword(opts.Password, cmd.InOrStdin())
			if err != nil {
				return out.Fail(err)
			}
			s, err := opts.client(nil).Register(context.Background(), api.RegisterRequest{
				Username: args[0],
				Email:    opts.Email,
				Password: password,
			})
			if err != nil {
				return out.Fail(err)
			}
			return signedIn(opts.RootOptions, out, s)
		},
	}

	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address (optional)")
	return cmd
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login <username|email>",
		Short: "Sign in and store the session",
		Long: `Sign in with a username or email address.

Examples:
  chui login alice --password s3cret!
  chui login alice@example.com --server https://chat.example.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			password, err := readPassword(opts.Password, cmd.InOrStdin())
			if err != nil {
				return out.Fail(err)
			}
			s, err := opts.client(nil).Login(context.Background(), args[0], password)
			if err != nil {
				return out.Fail(err)
			}
			return signedIn(opts.RootOptions, out, s)
		},
	}

	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "account password")
	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Forget the stored session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			if err := opts.sessionFile().Clear(); err != nil {
				return out.Fail(err)
			}
			return out.Success(map[string]bool{"signedOut": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Signed out.")
			})
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "whoami",
		Short:         "Show the signed-in profile",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			s, err := opts.session()
			if err != nil {
				return out.Fail(err)
			}
			profile, err := opts.client(s).Me(context.Background(), s)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(profile, func(w io.Writer) { writeProfile(w, profile) })
		},
	}
}

func signedIn(opts *RootOptions, out *OutputFormatter, s *client.Session) error {
	if err := opts.sessionFile().Save(s); err != nil {
		return out.Fail(err)
	}
	return out.Success(s.Public(), func(w io.Writer) {
		fmt.Fprintf(w, "Signed in as %s.\n", s.Username)
	})
}

func readPassword(flag string, stdin io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("CHUI_PASSWORD"); env != "" {
		return env, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil && err != io.EOF {
			return "", err
		}
		return "", NewExitError(ExitCommandError, "password required: use --password, CHUI_PASSWORD or stdin")
	}
	return line, nil
}
