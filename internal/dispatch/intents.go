package dispatch

import "chatly/internal/gateway"

// Intent is a user action handed to the Dispatcher.
type Intent interface {
	intentName() string
}

// CreateChat creates an empty chat and makes it active.
type CreateChat struct{}

// SendMessage posts Content to ChatID, or to the active chat when ChatID is
// empty. Without an active chat a new one is created first.
type SendMessage struct {
	ChatID  string
	Content string
}

// Regenerate asks for a new reply in ChatID, or in the active chat when empty.
type Regenerate struct {
	ChatID string
}

type RenameChat struct {
	ChatID string
	Title  string
}

type DeleteChat struct {
	ChatID string
}

// ClearChats deletes every chat of the user.
type ClearChats struct{}

// SelectChat makes ChatID active and loads its transcript.
type SelectChat struct {
	ChatID string
}

// RefreshChats reloads the chat list. When no chat is active afterwards the
// most recent one is opened.
type RefreshChats struct{}

type Login struct {
	Username string
	Password string
}

// Register creates an account. Confirm must repeat Password.
type Register struct {
	Username string
	Password string
	Confirm  string
}

type Logout struct{}

// Bootstrap resumes the session held by the stored cookie.
type Bootstrap struct{}

type UpdateSettings struct {
	Patch gateway.SettingsPatch
}

// ChangePassword replaces the account password. Confirm must repeat New.
type ChangePassword struct {
	Old     string
	New     string
	Confirm string
}

type DeleteAccount struct {
	Password string
}

func (CreateChat) intentName() string     { return "create_chat" }
func (SendMessage) intentName() string    { return "send_message" }
func (Regenerate) intentName() string     { return "regenerate" }
func (RenameChat) intentName() string     { return "rename_chat" }
func (DeleteChat) intentName() string     { return "delete_chat" }
func (ClearChats) intentName() string     { return "clear_chats" }
func (SelectChat) intentName() string     { return "select_chat" }
func (RefreshChats) intentName() string   { return "refresh_chats" }
func (Login) intentName() string          { return "login" }
func (Register) intentName() string       { return "register" }
func (Logout) intentName() string         { return "logout" }
func (Bootstrap) intentName() string      { return "bootstrap" }
func (UpdateSettings) intentName() string { return "update_settings" }
func (ChangePassword) intentName() string { return "change_password" }
func (DeleteAccount) intentName() string  { return "delete_account" }
