package gateway

import (
	"bytes"
	"chatly/internal/chaterr"
	"chatly/internal/logger"
	"chatly/internal/session"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

const maxResponseBytes = 8 << 20

// HTTPGateway talks to the backend over HTTP and keeps the session cookie in a jar.
type HTTPGateway struct {
	baseURL *url.URL
	client  *http.Client
	log     *logrus.Entry
}

// NewHTTPGateway creates a gateway for the backend at baseURL.
func NewHTTPGateway(baseURL string, log *logrus.Entry) (*HTTPGateway, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if log == nil {
		log = logrus.NewEntry(logger.Log)
	}

	return &HTTPGateway{
		baseURL: u,
		client:  &http.Client{Jar: jar},
		log:     log.WithField("component", "gateway"),
	}, nil
}

// Cookies returns the session cookies held for the backend.
func (g *HTTPGateway) Cookies() []*http.Cookie {
	return g.client.Jar.Cookies(g.baseURL)
}

// SetCookies restores previously saved session cookies.
func (g *HTTPGateway) SetCookies(cookies []*http.Cookie) {
	g.client.Jar.SetCookies(g.baseURL, cookies)
}

func (g *HTTPGateway) Login(ctx context.Context, username, password string) (*session.User, error) {
	var resp userResponse
	if err := g.do(ctx, http.MethodPost, "/api/login", credentialsRequest{username, password}, &resp); err != nil {
		return nil, err
	}
	return userOrFallback(resp.User, username), nil
}

func (g *HTTPGateway) Register(ctx context.Context, username, password string) (*session.User, error) {
	var resp userResponse
	if err := g.do(ctx, http.MethodPost, "/api/register", credentialsRequest{username, password}, &resp); err != nil {
		return nil, err
	}
	return userOrFallback(resp.User, username), nil
}

func (g *HTTPGateway) Logout(ctx context.Context) error {
	return g.do(ctx, http.MethodPost, "/api/logout", nil, nil)
}

func (g *HTTPGateway) CurrentUser(ctx context.Context) (*session.User, error) {
	var resp userResponse
	if err := g.do(ctx, http.MethodGet, "/api/current_user", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, chaterr.NewAuthError(chaterr.ReasonUnauthenticated, "no user in response")
	}
	return resp.User, nil
}

func (g *HTTPGateway) ListChats(ctx context.Context) ([]session.ChatSummary, error) {
	var resp chatsResponse
	if err := g.do(ctx, http.MethodGet, "/api/get_chats", nil, &resp); err != nil {
		return nil, err
	}
	chats := make([]session.ChatSummary, 0, len(resp.Chats))
	for _, c := range resp.Chats {
		chats = append(chats, c.summary())
	}
	return chats, nil
}

func (g *HTTPGateway) GetChat(ctx context.Context, chatID string) (*ChatDetail, error) {
	var resp chatResponse
	if err := g.do(ctx, http.MethodGet, "/api/get_chat/"+url.PathEscape(chatID), nil, &resp); err != nil {
		return nil, err
	}
	detail := &ChatDetail{Title: resp.Chat.Title, Messages: make([]session.Message, 0, len(resp.Chat.Messages))}
	for _, m := range resp.Chat.Messages {
		detail.Messages = append(detail.Messages, m.message())
	}
	return detail, nil
}

func (g *HTTPGateway) CreateChat(ctx context.Context) (session.ChatSummary, error) {
	var resp newChatResponse
	if err := g.do(ctx, http.MethodPost, "/api/new_chat", nil, &resp); err != nil {
		return session.ChatSummary{}, err
	}
	if resp.ChatID == "" {
		return session.ChatSummary{}, &chaterr.RemoteError{Status: http.StatusOK, Message: "new chat response without chat_id"}
	}
	return session.ChatSummary{ID: resp.ChatID, Title: resp.Title, Timestamp: fromUnix(resp.Timestamp)}, nil
}

func (g *HTTPGateway) RenameChat(ctx context.Context, chatID, title string) error {
	return g.do(ctx, http.MethodPost, "/api/rename_chat", renameRequest{ChatID: chatID, Title: title}, nil)
}

func (g *HTTPGateway) DeleteChat(ctx context.Context, chatID string) error {
	return g.do(ctx, http.MethodPost, "/api/delete_chat", chatIDRequest{ChatID: chatID}, nil)
}

func (g *HTTPGateway) ClearChats(ctx context.Context) error {
	return g.do(ctx, http.MethodPost, "/api/clear_chats", nil, nil)
}

func (g *HTTPGateway) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	var resp sendResponse
	body := sendRequest{ChatID: req.ChatID, Message: req.Content, Regenerate: req.Regenerate}
	if err := g.do(ctx, http.MethodPost, "/api/send_message", body, &resp); err != nil {
		return nil, err
	}
	return &SendResult{Message: resp.Message.message(), Title: resp.Title}, nil
}

func (g *HTTPGateway) UpdateSettings(ctx context.Context, patch SettingsPatch) (*session.User, error) {
	var resp userResponse
	if err := g.do(ctx, http.MethodPost, "/api/update_settings", patch, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, &chaterr.RemoteError{Status: http.StatusOK, Message: "settings response without user"}
	}
	return resp.User, nil
}

func (g *HTTPGateway) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return g.do(ctx, http.MethodPost, "/api/change_password", changePasswordRequest{oldPassword, newPassword}, nil)
}

func (g *HTTPGateway) DeleteAccount(ctx context.Context, password string) error {
	return g.do(ctx, http.MethodPost, "/api/delete_account", deleteAccountRequest{Password: password}, nil)
}

// do sends one request and decodes the envelope and, on success, out.
func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return g.transportError(ctx, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return g.transportError(ctx, method, path, err)
	}

	g.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Backend request completed")

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode >= http.StatusBadRequest || decodeErr != nil || !env.Success {
		if decodeErr != nil && resp.StatusCode < http.StatusBadRequest {
			return &chaterr.RemoteError{Status: resp.StatusCode, Message: "malformed response: " + decodeErr.Error()}
		}
		return mapError(resp.StatusCode, env)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &chaterr.RemoteError{Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
		}
	}
	return nil
}

func (g *HTTPGateway) transportError(ctx context.Context, method, path string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		g.log.WithFields(logrus.Fields{"method": method, "path": path}).Warn("Backend request timed out")
		return fmt.Errorf("%w: %s %s", chaterr.ErrTimeout, method, path)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	g.log.WithError(err).WithFields(logrus.Fields{"method": method, "path": path}).Warn("Backend request failed")
	return &chaterr.RemoteError{Message: err.Error()}
}

// mapError turns a failed envelope into the client error taxonomy.
func mapError(status int, env envelope) error {
	message := env.text()
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case chaterr.IsAuthReason(env.Error):
		return chaterr.NewAuthError(chaterr.AuthReason(env.Error), message)
	case status == http.StatusUnauthorized:
		return chaterr.NewAuthError(chaterr.ReasonUnauthenticated, message)
	case env.Error == "not_found" || status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", chaterr.ErrNotFound, message)
	default:
		return &chaterr.RemoteError{Status: status, Code: env.Error, Message: message}
	}
}

func userOrFallback(user *session.User, username string) *session.User {
	if user != nil {
		return user
	}
	return &session.User{Username: username}
}
