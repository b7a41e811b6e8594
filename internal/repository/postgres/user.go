package postgres

import (
	"chatly/internal/logger"
	"chatly/internal/repository/db"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CreateUser creates a new user with an already hashed password
func (p *PostgresDB) CreateUser(username, passwordHash string, settings db.Settings) (*db.User, error) {
	sealed, err := p.sealSettings(settings)
	if err != nil {
		return nil, err
	}

	user := &db.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Settings:     settings,
	}

	query := `
	INSERT INTO users (id, username, password_hash, settings)
	VALUES ($1, $2, $3, $4)
	RETURNING created_at
	`

	err = p.conn.QueryRow(query, user.ID, username, passwordHash, sealed).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, db.ErrUserExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"username": username, "user_id": user.ID}).Info("Created new user")

	return user, nil
}

// GetUserByUsername retrieves a user by username
func (p *PostgresDB) GetUserByUsername(username string) (*db.User, error) {
	var user db.User
	var sealed []byte
	query := `SELECT id, username, password_hash, settings, created_at FROM users WHERE username = $1`

	err := p.conn.QueryRow(query, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &sealed, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("error retrieving user: %w", err)
	}

	if user.Settings, err = p.openSettings(sealed); err != nil {
		return nil, err
	}

	return &user, nil
}

// UpdateUserSettings replaces the stored settings of a user
func (p *PostgresDB) UpdateUserSettings(userID string, settings db.Settings) error {
	sealed, err := p.sealSettings(settings)
	if err != nil {
		return err
	}

	result, err := p.conn.Exec(`UPDATE users SET settings = $1 WHERE id = $2`, sealed, userID)
	if err != nil {
		return fmt.Errorf("error updating settings: %w", err)
	}
	return requireRow(result)
}

// UpdateUserPassword replaces the password hash of a user
func (p *PostgresDB) UpdateUserPassword(userID, passwordHash string) error {
	result, err := p.conn.Exec(`UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}
	return requireRow(result)
}

// DeleteUser removes a user; chats and messages cascade
func (p *PostgresDB) DeleteUser(userID string) error {
	result, err := p.conn.Exec(`DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	logger.Log.WithField("user_id", userID).Info("Deleted user")
	return nil
}

func (p *PostgresDB) sealSettings(settings db.Settings) ([]byte, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("error encoding settings: %w", err)
	}
	sealed, err := p.sealer.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("error sealing settings: %w", err)
	}
	return sealed, nil
}

func (p *PostgresDB) openSettings(sealed []byte) (db.Settings, error) {
	var settings db.Settings
	data, err := p.sealer.Open(sealed)
	if err != nil {
		return settings, fmt.Errorf("error opening settings: %w", err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("error decoding settings: %w", err)
	}
	return settings, nil
}
