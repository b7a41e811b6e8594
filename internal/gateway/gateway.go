// Package gateway is the typed client of the chat backend HTTP API.
package gateway

import (
	"chatly/internal/session"
	"context"
)

// ChatDetail is the full content of one chat.
type ChatDetail struct {
	Title    string
	Messages []session.Message
}

// SendRequest asks the backend for a reply to content in chatID.
// Regenerate replaces the reply to the last user turn instead of appending one.
type SendRequest struct {
	ChatID     string
	Content    string
	Regenerate bool
}

// SendResult is the assistant reply and the chat title after the send.
type SendResult struct {
	Message session.Message
	Title   string
}

// SettingsPatch holds the settings to change; nil fields are left alone.
type SettingsPatch struct {
	Theme           *string `json:"theme,omitempty"`
	ColorTheme      *string `json:"colorTheme,omitempty"`
	Model           *string `json:"model,omitempty"`
	FontSize        *string `json:"fontSize,omitempty"`
	CompactSidebar  *bool   `json:"compactSidebar,omitempty"`
	Animations      *bool   `json:"animations,omitempty"`
	ShowLineNumbers *bool   `json:"showLineNumbers,omitempty"`
	AutoScroll      *bool   `json:"autoScroll,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.Theme == nil && p.ColorTheme == nil && p.Model == nil && p.FontSize == nil &&
		p.CompactSidebar == nil && p.Animations == nil && p.ShowLineNumbers == nil && p.AutoScroll == nil
}

// Gateway is the remote source of truth for users, chats and messages.
// Every call blocks until the backend answers or ctx ends.
type Gateway interface {
	Login(ctx context.Context, username, password string) (*session.User, error)
	Register(ctx context.Context, username, password string) (*session.User, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*session.User, error)

	ListChats(ctx context.Context) ([]session.ChatSummary, error)
	GetChat(ctx context.Context, chatID string) (*ChatDetail, error)
	CreateChat(ctx context.Context) (session.ChatSummary, error)
	RenameChat(ctx context.Context, chatID, title string) error
	DeleteChat(ctx context.Context, chatID string) error
	ClearChats(ctx context.Context) error
	SendMessage(ctx context.Context, req SendRequest) (*SendResult, error)

	UpdateSettings(ctx context.Context, patch SettingsPatch) (*session.User, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	DeleteAccount(ctx context.Context, password string) error
}
