package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxMessageLength = 32000
	maxTitleLength   = 100
	maxChatIDLength  = 128
)

var validChatID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ChatRequestValidator validates chat-related requests
type ChatRequestValidator struct{}

// NewChatRequestValidator creates a new ChatRequestValidator
func NewChatRequestValidator() *ChatRequestValidator {
	return &ChatRequestValidator{}
}

// ValidateMessage validates a chat message
func (v *ChatRequestValidator) ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("message cannot be empty")
	}
	if n := utf8.RuneCountInString(message); n > maxMessageLength {
		return fmt.Errorf("message must be at most %d characters long, got %d", maxMessageLength, n)
	}
	return nil
}

// ValidateChatID validates a chat identifier
func (v *ChatRequestValidator) ValidateChatID(chatID string) error {
	if chatID == "" {
		return errors.New("chat_id cannot be empty")
	}
	if len(chatID) > maxChatIDLength {
		return fmt.Errorf("chat_id must be at most %d characters long, got %d", maxChatIDLength, len(chatID))
	}
	// Chat ids end up in URL paths
	if !validChatID.MatchString(chatID) {
		return errors.New("chat_id can only contain letters, numbers, underscores, and hyphens")
	}
	return nil
}

// ValidateTitle validates a chat title
func (v *ChatRequestValidator) ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("title cannot be empty")
	}
	if n := utf8.RuneCountInString(title); n > maxTitleLength {
		return fmt.Errorf("title must be at most %d characters long, got %d", maxTitleLength, n)
	}
	return nil
}

// ValidateSendRequest validates a complete send request
func (v *ChatRequestValidator) ValidateSendRequest(chatID, message string) error {
	if err := v.ValidateChatID(chatID); err != nil {
		return err
	}

	if err := v.ValidateMessage(message); err != nil {
		return err
	}

	return nil
}

// ValidateRenameRequest validates a rename request
func (v *ChatRequestValidator) ValidateRenameRequest(chatID, title string) error {
	if err := v.ValidateChatID(chatID); err != nil {
		return err
	}

	if err := v.ValidateTitle(title); err != nil {
		return err
	}

	return nil
}
