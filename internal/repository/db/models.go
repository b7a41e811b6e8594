package db

import "time"

// User represents a user in the database
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Settings     Settings
	CreatedAt    time.Time
}

// Settings holds the per-user preferences. Stored sealed.
type Settings struct {
	Theme           string `json:"theme"`
	ColorTheme      string `json:"colorTheme"`
	Model           string `json:"model"`
	FontSize        string `json:"fontSize"`
	CompactSidebar  bool   `json:"compactSidebar"`
	Animations      bool   `json:"animations"`
	ShowLineNumbers bool   `json:"showLineNumbers"`
	AutoScroll      bool   `json:"autoScroll"`
}

// DefaultSettings returns the settings of a newly registered user.
func DefaultSettings(model string) Settings {
	return Settings{
		Theme:      "dark",
		ColorTheme: "default",
		Model:      model,
		FontSize:   "medium",
		Animations: true,
		AutoScroll: true,
	}
}

// Chat represents a chat in the database
type Chat struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents a message in a chat. Content is stored sealed.
type Message struct {
	ID        string
	ChatID    string
	Role      string
	Content   string
	CreatedAt time.Time
}
