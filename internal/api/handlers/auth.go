package handlers

import (
	"chatly/internal/auth"
	"chatly/internal/logger"
	accountService "chatly/internal/service/account"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Request types

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

// Login checks credentials and starts a session
func (h *Handlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}
	if err := h.authValidator.ValidateLoginRequest(req.Username, req.Password); err != nil {
		sendValidationError(c, err)
		return
	}

	user, err := h.accountService.Login(req.Username, req.Password)
	if err != nil {
		sendServiceError(c, err)
		return
	}
	if err := h.tokens.SetSessionCookie(c, user.Username); err != nil {
		sendServiceError(c, err)
		return
	}

	sendSuccess(c, gin.H{"user": toUserData(user)})
}

// Register creates an account and starts a session
func (h *Handlers) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}
	if err := h.authValidator.ValidateRegisterRequest(req.Username, req.Password); err != nil {
		sendValidationError(c, err)
		return
	}

	user, err := h.accountService.Register(req.Username, req.Password)
	if err != nil {
		sendServiceError(c, err)
		return
	}
	if err := h.tokens.SetSessionCookie(c, user.Username); err != nil {
		sendServiceError(c, err)
		return
	}

	sendSuccess(c, gin.H{"user": toUserData(user)})
}

// Logout ends the session. It succeeds without one.
func (h *Handlers) Logout(c *gin.Context) {
	h.tokens.ClearSessionCookie(c)
	sendSuccess(c, nil)
}

// CurrentUser returns the logged in user
func (h *Handlers) CurrentUser(c *gin.Context) {
	user := h.currentUser(c)
	if user == nil {
		return
	}
	sendSuccess(c, gin.H{"user": toUserData(user)})
}

// UpdateSettings applies a partial settings change
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req accountService.SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}
	if err := h.settingsChecker.ValidateSettings(req.Theme, req.ColorTheme, req.Model, req.FontSize); err != nil {
		sendValidationError(c, err)
		return
	}

	user, err := h.accountService.UpdateSettings(auth.Username(c), req)
	if errors.Is(err, accountService.ErrUserNotFound) {
		sendError(c, http.StatusUnauthorized, CodeUnauthenticated, "Not logged in")
		return
	}
	if err != nil {
		sendServiceError(c, err)
		return
	}

	sendSuccess(c, gin.H{"user": toUserData(user)})
}

// ChangePassword replaces the password of the logged in user
func (h *Handlers) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}
	if err := h.authValidator.ValidateChangePasswordRequest(req.OldPassword, req.NewPassword); err != nil {
		sendValidationError(c, err)
		return
	}

	err := h.accountService.ChangePassword(auth.Username(c), req.OldPassword, req.NewPassword)
	switch {
	case errors.Is(err, accountService.ErrInvalidPassword):
		sendError(c, http.StatusForbidden, CodeInvalidPassword, "Incorrect old password")
	case errors.Is(err, accountService.ErrUserNotFound):
		sendError(c, http.StatusUnauthorized, CodeUnauthenticated, "Not logged in")
	case err != nil:
		sendServiceError(c, err)
	default:
		sendSuccess(c, nil)
	}
}

// DeleteAccount removes the logged in user and all of their chats
func (h *Handlers) DeleteAccount(c *gin.Context) {
	var req DeleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		sendError(c, http.StatusBadRequest, CodeValidation, "Password is required")
		return
	}

	username := auth.Username(c)
	err := h.accountService.DeleteAccount(username, req.Password)
	switch {
	case errors.Is(err, accountService.ErrInvalidPassword):
		sendError(c, http.StatusForbidden, CodeInvalidPassword, "Incorrect password")
	case errors.Is(err, accountService.ErrUserNotFound):
		sendError(c, http.StatusUnauthorized, CodeUnauthenticated, "Not logged in")
	case err != nil:
		sendServiceError(c, err)
	default:
		h.tokens.ClearSessionCookie(c)
		logger.Log.WithField("username", username).Info("Session ended by account deletion")
		sendSuccess(c, nil)
	}
}
