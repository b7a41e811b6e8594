package db

import "errors"

var (
	// ErrNotFound is returned when a user, chat or message does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUserExists is returned when a username is already taken.
	ErrUserExists = errors.New("username already exists")
)

// Database defines the interface for all database operations
// This allows for easier testing through mocking and decouples the services from the specific database implementation
type Database interface {
	// Users
	CreateUser(username, passwordHash string, settings Settings) (*User, error)
	GetUserByUsername(username string) (*User, error)
	UpdateUserSettings(userID string, settings Settings) error
	UpdateUserPassword(userID, passwordHash string) error
	DeleteUser(userID string) error

	// Chats
	CreateChat(id, userID, title string) (*Chat, error)
	GetChat(id string) (*Chat, error)
	GetChatsByUser(userID string) ([]Chat, error)
	RenameChat(id, title string) error
	DeleteChat(id string) error
	DeleteChatsByUser(userID string) error

	// Messages
	AddMessage(chatID, role, content string) (*Message, error)
	GetChatMessages(chatID string) ([]Message, error)
	DeleteMessage(id string) error
}
