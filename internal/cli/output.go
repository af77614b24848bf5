package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"chui/internal/client"
	"chui/internal/models"
	"chui/internal/utils"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The server refused the request
	ExitCommandError = 2 // Local problem (bad arguments, unreadable session, unreachable server)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Location  *time.Location
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success writes data as a JSON envelope, or calls text for human output.
func (f *OutputFormatter) Success(data interface{}, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	text(f.Writer)
	return nil
}

// Fail reports err in the configured format and returns the ExitError the
// command should exit with.
func (f *OutputFormatter) Fail(err error) error {
	code, message, exit := classify(err)

	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message},
		})
	} else {
		w := f.ErrWriter
		if w == nil {
			w = f.Writer
		}
		fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	}
	return WrapExitError(exit, message, err)
}

func classify(err error) (code, message string, exit int) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return "CLI", exitErr.Message, exitErr.Code
	}

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		if appErr.Code == client.ErrServerUnreachable {
			return appErr.Code, appErr.Error(), ExitCommandError
		}
		return appErr.Code, appErr.Message, ExitFailure
	}
	return "CLI", err.Error(), ExitCommandError
}

func (f *OutputFormatter) stamp(t time.Time) string {
	return t.In(f.Location).Format("2006-01-02 15:04")
}

func writeProfile(w io.Writer, p *models.Profile) {
	fmt.Fprintf(w, "%s (%s)\n", p.Username, p.ID)
	if p.Email != "" {
		fmt.Fprintf(w, "email: %s\n", p.Email)
	}
}

func writeProfiles(w io.Writer, profiles []models.Profile, me string) {
	for _, p := range profiles {
		marker := " "
		if p.Username == me {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s\n", marker, p.Username)
	}
}

// writeInbox renders one line per conversation: who, when, and the preview.
func (f *OutputFormatter) writeInbox(w io.Writer, summaries []models.ConversationSummary, me string) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range summaries {
		preview := s.LastMessagePreview
		if s.LastMessageSenderID != nil && s.LastMessageSenderID.String() == me {
			preview = "you: " + preview
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.OtherUser.Username, f.stamp(s.SortTime()), oneLine(preview))
	}
	tw.Flush()
}

func (f *OutputFormatter) writeMessages(w io.Writer, views []models.MessageView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No messages yet.")
		return
	}
	for _, m := range views {
		fmt.Fprintf(w, "[%s] %s: %s\n", f.stamp(m.CreatedAt), m.SenderUsername, m.Body)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
