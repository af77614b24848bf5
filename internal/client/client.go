package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chui/internal/api"
	"chui/internal/messaging"
	"chui/internal/models"
	"chui/internal/utils"
)

const DefaultTimeout = 10 * time.Second

// Client talks to the chui HTTP API. It holds no session of its own: every
// authenticated call takes the Session explicitly.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Register creates an account and returns the signed-in session.
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*Session, error) {
	var resp api.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/user/register", "", req, &resp); err != nil {
		return nil, err
	}
	return c.sessionFrom(resp), nil
}

// Login signs in with an email address or a username.
func (c *Client) Login(ctx context.Context, login, password string) (*Session, error) {
	var resp api.LoginResponse
	err := c.do(ctx, http.MethodPost, "/user/login", "", api.LoginRequest{Login: login, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return c.sessionFrom(resp), nil
}

func (c *Client) Me(ctx context.Context, s *Session) (*models.Profile, error) {
	var profile models.Profile
	if err := c.do(ctx, http.MethodGet, "/user/me", s.token(), nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) Users(ctx context.Context, s *Session) ([]models.Profile, error) {
	var profiles []models.Profile
	if err := c.do(ctx, http.MethodGet, "/users", s.token(), nil, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (c *Client) Send(ctx context.Context, s *Session, to, body string) (*messaging.SendResult, error) {
	var result messaging.SendResult
	err := c.do(ctx, http.MethodPost, "/messages", s.token(), api.SendMessageRequest{To: to, Body: body}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Conversations lists the caller's conversations, most recent first.
func (c *Client) Conversations(ctx context.Context, s *Session, limit int) ([]models.ConversationSummary, error) {
	var summaries []models.ConversationSummary
	if err := c.do(ctx, http.MethodGet, withLimit("/conversations", limit), s.token(), nil, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Messages returns the tail of a conversation in reading order.
func (c *Client) Messages(ctx context.Context, s *Session, conversationID string, limit int) ([]models.MessageView, error) {
	path := withLimit("/conversations/"+url.PathEscape(conversationID)+"/messages", limit)
	var views []models.MessageView
	if err := c.do(ctx, http.MethodGet, path, s.token(), nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *Client) sessionFrom(resp api.LoginResponse) *Session {
	return &Session{
		Server:    c.baseURL,
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
		UserID:    resp.UserID,
		Username:  resp.Username,
	}
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + "?limit=" + strconv.Itoa(limit)
}

// do sends one JSON request. Non-2xx responses come back as *utils.AppError
// carrying the server's code.
func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return utils.NewAppError(ErrServerUnreachable, "Could not reach "+c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// ErrServerUnreachable marks transport failures; the server never sends it.
const ErrServerUnreachable = "SERVER_UNREACHABLE"

func decodeError(resp *http.Response) error {
	var e api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Code == "" {
		return utils.NewAppError("HTTP_"+strconv.Itoa(resp.StatusCode), http.StatusText(resp.StatusCode), nil)
	}
	return utils.NewAppError(e.Code, e.Error, nil)
}
