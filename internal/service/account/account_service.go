package account

import (
	"chatly/internal/app"
	"chatly/internal/config"
	"chatly/internal/logger"
	"chatly/internal/repository/db"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists      = errors.New("username already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrUnknownModel    = errors.New("unknown model")
)

// SettingsUpdate is a partial settings change; nil fields keep their value
type SettingsUpdate struct {
	Theme           *string `json:"theme"`
	ColorTheme      *string `json:"colorTheme"`
	Model           *string `json:"model"`
	FontSize        *string `json:"fontSize"`
	CompactSidebar  *bool   `json:"compactSidebar"`
	Animations      *bool   `json:"animations"`
	ShowLineNumbers *bool   `json:"showLineNumbers"`
	AutoScroll      *bool   `json:"autoScroll"`
}

// AccountService handles registration, login and account maintenance
type AccountService struct {
	db     db.Database
	config *app.Config
	cost   int
}

// NewAccountService creates a new AccountService
func NewAccountService(database db.Database, config *app.Config) *AccountService {
	return &AccountService{
		db:     database,
		config: config,
		cost:   bcrypt.DefaultCost,
	}
}

// Register creates a user with default settings
func (s *AccountService) Register(username, password string) (*db.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	settings := db.DefaultSettings(config.DefaultModelAlias)
	user, err := s.db.CreateUser(username, string(hash), settings)
	if errors.Is(err, db.ErrUserExists) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Log.WithField("username", username).Info("User registered")
	return user, nil
}

// Login checks the credentials and returns the user
func (s *AccountService) Login(username, password string) (*db.User, error) {
	user, err := s.GetUser(username)
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(user, password); err != nil {
		logger.Log.WithField("username", username).Warn("Login with wrong password")
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by name
func (s *AccountService) GetUser(username string) (*db.User, error) {
	user, err := s.db.GetUserByUsername(username)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateSettings applies update to the stored settings and returns the updated user
func (s *AccountService) UpdateSettings(username string, update SettingsUpdate) (*db.User, error) {
	if update.Model != nil && !s.config.ModelsConfig().IsValidModel(*update.Model) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, *update.Model)
	}

	user, err := s.GetUser(username)
	if err != nil {
		return nil, err
	}

	settings := user.Settings
	setString(&settings.Theme, update.Theme)
	setString(&settings.ColorTheme, update.ColorTheme)
	setString(&settings.Model, update.Model)
	setString(&settings.FontSize, update.FontSize)
	setBool(&settings.CompactSidebar, update.CompactSidebar)
	setBool(&settings.Animations, update.Animations)
	setBool(&settings.ShowLineNumbers, update.ShowLineNumbers)
	setBool(&settings.AutoScroll, update.AutoScroll)

	if err := s.db.UpdateUserSettings(user.ID, settings); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	user.Settings = settings
	return user, nil
}

// ChangePassword replaces the password after checking the old one
func (s *AccountService) ChangePassword(username, oldPassword, newPassword string) error {
	user, err := s.GetUser(username)
	if err != nil {
		return err
	}
	if err := s.checkPassword(user, oldPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.UpdateUserPassword(user.ID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	logger.Log.WithField("username", username).Info("Password changed")
	return nil
}

// DeleteAccount removes the user and, by cascade, all of their chats
func (s *AccountService) DeleteAccount(username, password string) error {
	user, err := s.GetUser(username)
	if err != nil {
		return err
	}
	if err := s.checkPassword(user, password); err != nil {
		return err
	}
	if err := s.db.DeleteUser(user.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"username": username,
		"user_id":  user.ID,
	}).Info("Account deleted")
	return nil
}

func (s *AccountService) checkPassword(user *db.User, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
