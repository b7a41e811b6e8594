package testutil

import (
	"chatly/internal/app"
	"chatly/internal/config"
	"chatly/internal/repository/db"
	"chatly/internal/service/llm"
	"context"
	"errors"
	"time"
)

// MockDatabase is a mock implementation of db.Database for testing
type MockDatabase struct {
	// User mocks
	CreateUserFunc         func(username, passwordHash string, settings db.Settings) (*db.User, error)
	GetUserByUsernameFunc  func(username string) (*db.User, error)
	UpdateUserSettingsFunc func(userID string, settings db.Settings) error
	UpdateUserPasswordFunc func(userID, passwordHash string) error
	DeleteUserFunc         func(userID string) error

	// Chat mocks
	CreateChatFunc        func(id, userID, title string) (*db.Chat, error)
	GetChatFunc           func(id string) (*db.Chat, error)
	GetChatsByUserFunc    func(userID string) ([]db.Chat, error)
	RenameChatFunc        func(id, title string) error
	DeleteChatFunc        func(id string) error
	DeleteChatsByUserFunc func(userID string) error

	// Message mocks
	AddMessageFunc      func(chatID, role, content string) (*db.Message, error)
	GetChatMessagesFunc func(chatID string) ([]db.Message, error)
	DeleteMessageFunc   func(id string) error
}

var _ db.Database = (*MockDatabase)(nil)

// User methods
func (m *MockDatabase) CreateUser(username, passwordHash string, settings db.Settings) (*db.User, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(username, passwordHash, settings)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) GetUserByUsername(username string) (*db.User, error) {
	if m.GetUserByUsernameFunc != nil {
		return m.GetUserByUsernameFunc(username)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) UpdateUserSettings(userID string, settings db.Settings) error {
	if m.UpdateUserSettingsFunc != nil {
		return m.UpdateUserSettingsFunc(userID, settings)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) UpdateUserPassword(userID, passwordHash string) error {
	if m.UpdateUserPasswordFunc != nil {
		return m.UpdateUserPasswordFunc(userID, passwordHash)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) DeleteUser(userID string) error {
	if m.DeleteUserFunc != nil {
		return m.DeleteUserFunc(userID)
	}
	return errors.New("not implemented")
}

// Chat methods
func (m *MockDatabase) CreateChat(id, userID, title string) (*db.Chat, error) {
	if m.CreateChatFunc != nil {
		return m.CreateChatFunc(id, userID, title)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) GetChat(id string) (*db.Chat, error) {
	if m.GetChatFunc != nil {
		return m.GetChatFunc(id)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) GetChatsByUser(userID string) ([]db.Chat, error) {
	if m.GetChatsByUserFunc != nil {
		return m.GetChatsByUserFunc(userID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) RenameChat(id, title string) error {
	if m.RenameChatFunc != nil {
		return m.RenameChatFunc(id, title)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) DeleteChat(id string) error {
	if m.DeleteChatFunc != nil {
		return m.DeleteChatFunc(id)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) DeleteChatsByUser(userID string) error {
	if m.DeleteChatsByUserFunc != nil {
		return m.DeleteChatsByUserFunc(userID)
	}
	return errors.New("not implemented")
}

// Message methods
func (m *MockDatabase) AddMessage(chatID, role, content string) (*db.Message, error) {
	if m.AddMessageFunc != nil {
		return m.AddMessageFunc(chatID, role, content)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) GetChatMessages(chatID string) ([]db.Message, error) {
	if m.GetChatMessagesFunc != nil {
		return m.GetChatMessagesFunc(chatID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) DeleteMessage(id string) error {
	if m.DeleteMessageFunc != nil {
		return m.DeleteMessageFunc(id)
	}
	return errors.New("not implemented")
}

// MockLLMProvider is a mock implementation of llm.LLMProvider for testing
type MockLLMProvider struct {
	ChatWithHistoryFunc func(ctx context.Context, messages []llm.Message, model string) (string, error)
}

var _ llm.LLMProvider = (*MockLLMProvider)(nil)

func (m *MockLLMProvider) ChatWithHistory(ctx context.Context, messages []llm.Message, model string) (string, error) {
	if m.ChatWithHistoryFunc != nil {
		return m.ChatWithHistoryFunc(ctx, messages, model)
	}
	return "", errors.New("not implemented")
}

func (m *MockLLMProvider) Name() string {
	return "mock"
}

// NewMockConfig creates an app.Config for testing with the built-in model table
func NewMockConfig(database db.Database, provider llm.LLMProvider) *app.Config {
	return &app.Config{
		DB:  database,
		LLM: provider,
		AppConfig: &config.AppConfig{
			Auth: config.AuthConfig{
				JWTSecret:       []byte("test-secret-that-is-32-bytes-long"),
				TokenExpiration: time.Hour,
				CookieName:      "chatly_session",
			},
			Models: config.DefaultModelsConfig(),
		},
	}
}
