package handlers

import (
	"chatly/internal/app"
	"chatly/internal/auth"
	"chatly/internal/logger"
	"chatly/internal/repository/db"
	accountService "chatly/internal/service/account"
	chatService "chatly/internal/service/chat"
	"chatly/pkg/validation"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Error codes carried in the "error" field of failed responses
const (
	CodeUserExists      = "user_exists"
	CodeUserNotFound    = "user_not_found"
	CodeInvalidPassword = "invalid_password"
	CodeValidation      = "validation_error"
	CodeUnauthenticated = "unauthenticated"
	CodeNotFound        = "not_found"
	CodeNoUserMessage   = "no_user_message"
	CodeLLM             = "llm_error"
	CodeRateLimited     = "rate_limited"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal_error"
)

// Response types

type UserData struct {
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

type ChatInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Timestamp float64 `json:"timestamp"`
}

type MessageData struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

type ChatData struct {
	Title    string        `json:"title"`
	Messages []MessageData `json:"messages"`
}

// Handlers serves the chat backend API on top of the service layer
type Handlers struct {
	config          *app.Config
	tokens          *auth.TokenManager
	authValidator   *validation.AuthRequestValidator
	chatValidator   *validation.ChatRequestValidator
	settingsChecker *validation.SettingsValidator
	accountService  *accountService.AccountService
	chatService     *chatService.ChatService
}

// NewHandlers creates the handlers and the services they use
func NewHandlers(config *app.Config, tokens *auth.TokenManager) *Handlers {
	return &Handlers{
		config:          config,
		tokens:          tokens,
		authValidator:   validation.NewAuthRequestValidator(),
		chatValidator:   validation.NewChatRequestValidator(),
		settingsChecker: validation.NewSettingsValidator(config.ModelsConfig().IsValidModel),
		accountService:  accountService.NewAccountService(config.DB, config),
		chatService:     chatService.NewChatService(config.DB, config),
	}
}

// Health reports that the server is up and the database reachable
func (h *Handlers) Health(c *gin.Context) {
	if pinger, ok := h.config.DB.(interface{ Ping() error }); ok {
		if err := pinger.Ping(); err != nil {
			logger.Log.WithError(err).Warn("Health check failed")
			sendError(c, http.StatusServiceUnavailable, CodeUnavailable, "Database unavailable")
			return
		}
	}
	sendSuccess(c, nil)
}

// currentUser loads the user named by the session cookie.
// It writes the error response and returns nil when the user is gone.
func (h *Handlers) currentUser(c *gin.Context) *db.User {
	user, err := h.accountService.GetUser(auth.Username(c))
	if errors.Is(err, accountService.ErrUserNotFound) {
		h.tokens.ClearSessionCookie(c)
		sendError(c, http.StatusUnauthorized, CodeUnauthenticated, "Not logged in")
		return nil
	}
	if err != nil {
		sendServiceError(c, err)
		return nil
	}
	return user
}

func sendSuccess(c *gin.Context, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

func sendError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
		"error":   code,
	})
}

// sendServiceError maps service errors to status codes
func sendServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, accountService.ErrUserExists):
		sendError(c, http.StatusConflict, CodeUserExists, "Username already exists")
	case errors.Is(err, accountService.ErrUserNotFound):
		sendError(c, http.StatusUnauthorized, CodeUserNotFound, "Invalid credentials")
	case errors.Is(err, accountService.ErrInvalidPassword):
		sendError(c, http.StatusUnauthorized, CodeInvalidPassword, "Invalid credentials")
	case errors.Is(err, accountService.ErrUnknownModel):
		sendError(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, chatService.ErrChatNotFound):
		sendError(c, http.StatusNotFound, CodeNotFound, "Chat not found")
	case errors.Is(err, chatService.ErrNoUserMessage):
		sendError(c, http.StatusBadRequest, CodeNoUserMessage, "No user message to regenerate")
	case errors.Is(err, chatService.ErrLLM):
		sendError(c, http.StatusBadGateway, CodeLLM, "The model failed to answer")
	default:
		logger.Log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		sendError(c, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}

func sendValidationError(c *gin.Context, err error) {
	sendError(c, http.StatusBadRequest, CodeValidation, err.Error())
}

func toUserData(user *db.User) UserData {
	s := user.Settings
	return UserData{
		Username:        user.Username,
		Theme:           s.Theme,
		ColorTheme:      s.ColorTheme,
		Model:           s.Model,
		FontSize:        s.FontSize,
		CompactSidebar:  s.CompactSidebar,
		Animations:      s.Animations,
		ShowLineNumbers: s.ShowLineNumbers,
		AutoScroll:      s.AutoScroll,
	}
}

// unixSeconds renders a time as float unix seconds
func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
