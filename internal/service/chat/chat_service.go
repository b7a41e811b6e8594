package chat

import (
	"chatly/internal/app"
	"chatly/internal/logger"
	"chatly/internal/repository/db"
	"chatly/internal/service/llm"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultTitle is the title of a chat before its first message
const DefaultTitle = "New Chat"

const titleWords = 3

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrNoUserMessage = errors.New("no user message to answer")
	ErrLLM           = errors.New("model failed to answer")
)

// SendMessageRequest contains all the parameters needed to send a message
type SendMessageRequest struct {
	UserID  string
	ChatID  string
	Message string
	// Model is the user's model alias
	Model string
	// Regenerate drops the trailing assistant reply and answers the last user message again
	Regenerate bool
}

// SendMessageResponse contains the assistant reply and the chat title after the send
type SendMessageResponse struct {
	Message db.Message
	Title   string
}

// ChatService handles the business logic for chat operations
type ChatService struct {
	db          db.Database
	config      *app.Config
	llmProvider llm.LLMProvider
	now         func() time.Time
}

// NewChatService creates a new ChatService
func NewChatService(database db.Database, config *app.Config) *ChatService {
	return &ChatService{
		db:          database,
		config:      config,
		llmProvider: config.LLM,
		now:         time.Now,
	}
}

// NewChat creates an empty chat owned by userID
func (s *ChatService) NewChat(userID string) (*db.Chat, error) {
	id := fmt.Sprintf("chat_%d_%s", s.now().Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	chat, err := s.db.CreateChat(id, userID, DefaultTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return chat, nil
}

// ListChats returns the user's chats, most recently updated first
func (s *ChatService) ListChats(userID string) ([]db.Chat, error) {
	chats, err := s.db.GetChatsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve chats: %w", err)
	}
	return chats, nil
}

// GetChat returns a chat and its messages
func (s *ChatService) GetChat(userID, chatID string) (*db.Chat, []db.Message, error) {
	chat, err := s.ownedChat(userID, chatID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.db.GetChatMessages(chat.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve messages: %w", err)
	}
	return chat, messages, nil
}

// RenameChat sets the title of a chat
func (s *ChatService) RenameChat(userID, chatID, title string) error {
	if _, err := s.ownedChat(userID, chatID); err != nil {
		return err
	}
	if err := s.db.RenameChat(chatID, title); err != nil {
		return fmt.Errorf("failed to rename chat: %w", err)
	}
	return nil
}

// DeleteChat removes a chat. Deleting a chat that is already gone succeeds.
func (s *ChatService) DeleteChat(userID, chatID string) error {
	_, err := s.ownedChat(userID, chatID)
	if errors.Is(err, ErrChatNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.db.DeleteChat(chatID); err != nil && !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// ClearChats removes every chat of the user
func (s *ChatService) ClearChats(userID string) error {
	if err := s.db.DeleteChatsByUser(userID); err != nil {
		return fmt.Errorf("failed to clear chats: %w", err)
	}
	return nil
}

// SendMessage stores the user message, asks the model and stores its reply.
// When the model fails the user message stays in the chat.
func (s *ChatService) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResponse, error) {
	chat, err := s.ownedChat(req.UserID, req.ChatID)
	if err != nil {
		return nil, err
	}

	history, err := s.db.GetChatMessages(chat.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages: %w", err)
	}

	if req.Regenerate {
		history, err = s.dropTrailingReplies(history)
		if err != nil {
			return nil, err
		}
	} else {
		if chat.Title == DefaultTitle && !hasUserMessage(history) {
			title := TitleFromMessage(req.Message)
			if err := s.db.RenameChat(chat.ID, title); err != nil {
				return nil, fmt.Errorf("failed to set chat title: %w", err)
			}
			chat.Title = title
		}
		userMsg, err := s.db.AddMessage(chat.ID, "user", req.Message)
		if err != nil {
			return nil, fmt.Errorf("failed to save user message: %w", err)
		}
		history = append(history, *userMsg)
	}

	model := s.config.ModelsConfig().Resolve(req.Model)

	logger.Log.WithFields(logrus.Fields{
		"chat_id":       chat.ID,
		"message_count": len(history),
		"model":         model,
		"regenerate":    req.Regenerate,
	}).Debug("Prepared for LLM call")

	response, err := s.llmProvider.ChatWithHistory(ctx, toLLMHistory(history), model)
	if err != nil {
		logger.Log.WithError(err).WithField("provider", s.llmProvider.Name()).Error("LLM call failed")
		return nil, fmt.Errorf("%w: %v", ErrLLM, err)
	}

	reply, err := s.db.AddMessage(chat.ID, "assistant", response)
	if err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	return &SendMessageResponse{Message: *reply, Title: chat.Title}, nil
}

// TitleFromMessage builds a chat title from the first words of a message
func TitleFromMessage(message string) string {
	words := strings.Fields(message)
	if len(words) == 0 {
		return DefaultTitle
	}
	if len(words) > titleWords {
		return strings.Join(words[:titleWords], " ") + "..."
	}
	return strings.Join(words, " ")
}

// ownedChat loads a chat, reporting chats of other users as missing
func (s *ChatService) ownedChat(userID, chatID string) (*db.Chat, error) {
	chat, err := s.db.GetChat(chatID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve chat: %w", err)
	}
	if chat.UserID != userID {
		logger.Log.WithFields(logrus.Fields{
			"chat_id": chatID,
			"user_id": userID,
		}).Warn("Chat accessed by another user")
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// dropTrailingReplies deletes the assistant messages after the last user message
func (s *ChatService) dropTrailingReplies(history []db.Message) ([]db.Message, error) {
	end := len(history)
	for end > 0 && history[end-1].Role != "user" {
		end--
	}
	if end == 0 {
		return nil, ErrNoUserMessage
	}
	for _, msg := range history[end:] {
		if err := s.db.DeleteMessage(msg.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("failed to delete reply: %w", err)
		}
	}
	return history[:end], nil
}

func hasUserMessage(history []db.Message) bool {
	for _, msg := range history {
		if msg.Role == "user" {
			return true
		}
	}
	return false
}

func toLLMHistory(history []db.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return messages
}
