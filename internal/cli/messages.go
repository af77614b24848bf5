package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"chui/internal/client"
	"chui/internal/messaging"
	"chui/internal/models"
	"chui/internal/utils"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// tailSize is how many messages send shows after posting.
const tailSize = 20

// ListOptions holds the --limit flag of list-style commands.
type ListOptions struct {
	*RootOptions
	Limit int
}

// SendOutput is the JSON payload of the send command.
type SendOutput struct {
	Sent         *messaging.SendResult `json:"sent"`
	Conversation []models.MessageView  `json:"conversation"`
}

// NewUsersCommand creates the users command.
func NewUsersCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "users",
		Short:         "List everyone you can message",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			s, err := opts.session()
			if err != nil {
				return out.Fail(err)
			}
			profiles, err := opts.client(s).Users(context.Background(), s)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(profiles, func(w io.Writer) { writeProfiles(w, profiles, s.Username) })
		},
	}
}

// NewSendCommand creates the send command.
func NewSendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <username> <text>...",
		Short: "Send a direct message",
		Long: `Send a direct message and show the latest messages of the conversation.

The conversation is created on first contact. Remaining arguments are
joined with spaces to form the body.

Examples:
  chui send bob "lunch at noon?"
  chui send bob see you there`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			s, err := opts.session()
			if err != nil {
				return out.Fail(err)
			}
			ctx := context.Background()
			c := opts.client(s)

			sent, err := c.Send(ctx, s, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return out.Fail(err)
			}
			tail, err := c.Messages(ctx, s, sent.ConversationID.String(), tailSize)
			if err != nil {
				return out.Fail(err)
			}

			return out.Success(SendOutput{Sent: sent, Conversation: tail}, func(w io.Writer) {
				out.writeMessages(w, tail)
				if sent.SummaryStale {
					fmt.Fprintln(out.ErrWriter, "note: message delivered, inbox ordering may lag")
				}
			})
		},
	}
}

// NewInboxCommand creates the inbox command.
func NewInboxCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "inbox",
		Short:         "List your conversations, most recent first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			s, err := opts.session()
			if err != nil {
				return out.Fail(err)
			}
			summaries, err := opts.client(s).Conversations(context.Background(), s, opts.Limit)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(summaries, func(w io.Writer) { out.writeInbox(w, summaries, s.UserID) })
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum conversations (server default when 0)")
	return cmd
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <username|conversation-id>",
		Short: "Show the latest messages of a conversation",
		Long: `Show the latest messages of a conversation, oldest first.

A username is resolved through your inbox, so it only finds people you
have already exchanged messages with.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			s, err := opts.session()
			if err != nil {
				return out.Fail(err)
			}
			ctx := context.Background()
			c := opts.client(s)

			conversationID, err := resolveConversation(ctx, c, s, args[0])
			if err != nil {
				return out.Fail(err)
			}
			views, err := c.Messages(ctx, s, conversationID, opts.Limit)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(views, func(w io.Writer) { out.writeMessages(w, views) })
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum messages (server default when 0)")
	return cmd
}

// resolveConversation maps a username to the id of the caller's
// conversation with that user. Ids pass through untouched.
func resolveConversation(ctx context.Context, c *client.Client, s *client.Session, target string) (string, error) {
	if id, err := uuid.Parse(target); err == nil {
		return id.String(), nil
	}

	name := messaging.NormalizeUsername(target)
	summaries, err := c.Conversations(ctx, s, messaging.MaxListLimit)
	if err != nil {
		return "", err
	}
	for _, sum := range summaries {
		if sum.OtherUser.Username == name {
			return sum.ConversationID.String(), nil
		}
	}
	return "", utils.NewAppError(utils.ErrConversationNotFound, "No conversation with "+name, nil)
}
