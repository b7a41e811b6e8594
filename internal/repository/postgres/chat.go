package postgres

import (
	"chatly/internal/logger"
	"chatly/internal/repository/db"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CreateChat creates a new chat for a user
func (p *PostgresDB) CreateChat(id, userID, title string) (*db.Chat, error) {
	chat := &db.Chat{ID: id, UserID: userID, Title: title}

	query := `
	INSERT INTO chats (id, user_id, title)
	VALUES ($1, $2, $3)
	RETURNING created_at, updated_at
	`

	if err := p.conn.QueryRow(query, id, userID, title).Scan(&chat.CreatedAt, &chat.UpdatedAt); err != nil {
		return nil, fmt.Errorf("error creating chat: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"chat_id": id, "user_id": userID}).Info("Created new chat")

	return chat, nil
}

// GetChat retrieves a specific chat
func (p *PostgresDB) GetChat(id string) (*db.Chat, error) {
	var chat db.Chat
	query := `SELECT id, user_id, title, created_at, updated_at FROM chats WHERE id = $1`

	err := p.conn.QueryRow(query, id).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("error retrieving chat: %w", err)
	}

	return &chat, nil
}

// GetChatsByUser retrieves all chats for a user, most recently updated first
func (p *PostgresDB) GetChatsByUser(userID string) ([]db.Chat, error) {
	query := `
	SELECT id, user_id, title, created_at, updated_at
	FROM chats
	WHERE user_id = $1
	ORDER BY updated_at DESC, created_at DESC
	`

	rows, err := p.conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying chats: %w", err)
	}
	defer rows.Close()

	var chats []db.Chat
	for rows.Next() {
		var chat db.Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chats: %w", err)
	}

	return chats, nil
}

// RenameChat sets the title of a chat
func (p *PostgresDB) RenameChat(id, title string) error {
	result, err := p.conn.Exec(`UPDATE chats SET title = $1 WHERE id = $2`, title, id)
	if err != nil {
		return fmt.Errorf("error renaming chat: %w", err)
	}
	return requireRow(result)
}

// DeleteChat deletes a chat and its messages
func (p *PostgresDB) DeleteChat(id string) error {
	result, err := p.conn.Exec(`DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting chat: %w", err)
	}
	return requireRow(result)
}

// DeleteChatsByUser deletes every chat of a user
func (p *PostgresDB) DeleteChatsByUser(userID string) error {
	result, err := p.conn.Exec(`DELETE FROM chats WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("error clearing chats: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "count": n}).Info("Cleared chats")
	}
	return nil
}

// AddMessage adds a message to a chat and bumps the chat's updated_at
func (p *PostgresDB) AddMessage(chatID, role, content string) (*db.Message, error) {
	sealed, err := p.sealer.SealString(content)
	if err != nil {
		return nil, fmt.Errorf("error sealing message: %w", err)
	}

	msg := &db.Message{ID: uuid.New().String(), ChatID: chatID, Role: role, Content: content}

	query := `
	INSERT INTO messages (id, chat_id, role, content)
	VALUES ($1, $2, $3, $4)
	RETURNING created_at
	`

	if err := p.conn.QueryRow(query, msg.ID, chatID, role, sealed).Scan(&msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("error adding message: %w", err)
	}

	// Update chat updated_at timestamp
	if _, err := p.conn.Exec(`UPDATE chats SET updated_at = CURRENT_TIMESTAMP WHERE id = $1`, chatID); err != nil {
		logger.Log.WithError(err).Warn("Error updating chat timestamp")
	}

	logger.Log.WithFields(logrus.Fields{"chat_id": chatID, "role": role, "chars": len(content)}).Debug("Added message")

	return msg, nil
}

// GetChatMessages retrieves all messages of a chat in insertion order
func (p *PostgresDB) GetChatMessages(chatID string) ([]db.Message, error) {
	query := `
	SELECT id, chat_id, role, content, created_at
	FROM messages
	WHERE chat_id = $1
	ORDER BY seq ASC
	`

	rows, err := p.conn.Query(query, chatID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []db.Message
	for rows.Next() {
		var msg db.Message
		var sealed []byte
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &sealed, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		if msg.Content, err = p.sealer.OpenString(sealed); err != nil {
			return nil, fmt.Errorf("error opening message %s: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// DeleteMessage removes a single message
func (p *PostgresDB) DeleteMessage(id string) error {
	result, err := p.conn.Exec(`DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting message: %w", err)
	}
	return requireRow(result)
}
