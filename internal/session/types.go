package session

import (
	"regexp"
	"strings"
	"time"
)

// DefaultChatTitle is the title the backend gives a chat before its first message.
const DefaultChatTitle = "New Chat"

// User is the logged in account and its display settings.
type User struct {
	Username        string `json:"username"`
	Theme           string `json:"theme"`
	ColorTheme      string `json:"colorTheme"`
	Model           string `json:"model"`
	FontSize        string `json:"fontSize"`
	CompactSidebar  bool   `json:"compactSidebar"`
	Animations      bool   `json:"animations"`
	ShowLineNumbers bool   `json:"showLineNumbers"`
	AutoScroll      bool   `json:"autoScroll"`
}

// ChatSummary is one entry of the chat list.
type ChatSummary struct {
	ID        string
	Title     string
	Timestamp time.Time
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a transcript.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

var thinkPattern = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// Think splits the reasoning segments embedded in <think> tags from the answer.
func (m Message) Think() (reasoning []string, answer string) {
	for _, match := range thinkPattern.FindAllStringSubmatch(m.Content, -1) {
		if segment := strings.TrimSpace(match[1]); segment != "" {
			reasoning = append(reasoning, segment)
		}
	}
	answer = strings.TrimSpace(thinkPattern.ReplaceAllString(m.Content, ""))
	return reasoning, answer
}

// Snapshot is an immutable copy of the store state.
type Snapshot struct {
	User         *User
	Chats        []ChatSummary
	ActiveChatID string
	Messages     []Message
}

// LoggedIn reports whether a user is present.
func (s Snapshot) LoggedIn() bool {
	return s.User != nil
}

// ActiveChat returns the summary of the active chat.
func (s Snapshot) ActiveChat() (ChatSummary, bool) {
	if s.ActiveChatID == "" {
		return ChatSummary{}, false
	}
	for _, chat := range s.Chats {
		if chat.ID == s.ActiveChatID {
			return chat, true
		}
	}
	return ChatSummary{}, false
}
