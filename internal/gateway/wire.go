package gateway

import (
	"chatly/internal/session"
	"encoding/json"
	"math"
	"time"
)

// envelope is the status part every backend response carries.
// Send responses reuse the message key for the assistant reply.
type envelope struct {
	Success bool            `json:"success"`
	Message json.RawMessage `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// text returns the status message, or "" when the key holds an object.
func (e envelope) text() string {
	var s string
	if err := json.Unmarshal(e.Message, &s); err != nil {
		return ""
	}
	return s
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	User *session.User `json:"user"`
}

type chatSummaryDTO struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Timestamp float64 `json:"timestamp"`
}

type chatsResponse struct {
	Chats []chatSummaryDTO `json:"chats"`
}

type messageDTO struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

type chatResponse struct {
	Chat struct {
		Title    string       `json:"title"`
		Messages []messageDTO `json:"messages"`
	} `json:"chat"`
}

type newChatResponse struct {
	ChatID    string  `json:"chat_id"`
	Title     string  `json:"title"`
	Timestamp float64 `json:"timestamp"`
}

type chatIDRequest struct {
	ChatID string `json:"chat_id"`
}

type renameRequest struct {
	ChatID string `json:"chat_id"`
	Title  string `json:"title"`
}

type sendRequest struct {
	ChatID     string `json:"chat_id"`
	Message    string `json:"message"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

type sendResponse struct {
	Message messageDTO `json:"message"`
	Title   string     `json:"title"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

// Timestamps travel as float unix seconds.
func fromUnix(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func (d chatSummaryDTO) summary() session.ChatSummary {
	return session.ChatSummary{ID: d.ID, Title: d.Title, Timestamp: fromUnix(d.Timestamp)}
}

func (d messageDTO) message() session.Message {
	return session.Message{Role: session.Role(d.Role), Content: d.Content, Timestamp: fromUnix(d.Timestamp)}
}
