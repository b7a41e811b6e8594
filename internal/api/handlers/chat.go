package handlers

import (
	"chatly/internal/logger"
	"chatly/internal/repository/db"
	chatService "chatly/internal/service/chat"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Request types

type ChatIDRequest struct {
	ChatID string `json:"chat_id"`
}

type RenameChatRequest struct {
	ChatID string `json:"chat_id"`
	Title  string `json:"title"`
}

type SendMessageRequest struct {
	ChatID     string `json:"chat_id"`
	Message    string `json:"message"`
	Regenerate bool   `json:"regenerate"`
}

// GetChats lists the user's chats, most recent first
func (h *Handlers) GetChats(c *gin.Context) {
	user := h.currentUser(c)
	if user == nil {
		return
	}

	chats, err := h.chatService.ListChats(user.ID)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	infos := make([]ChatInfo, 0, len(chats))
	for _, chat := range chats {
		infos = append(infos, toChatInfo(&chat))
	}
	sendSuccess(c, gin.H{"chats": infos})
}

// GetChat returns the title and messages of one chat
func (h *Handlers) GetChat(c *gin.Context) {
	chatID := c.Param("id")
	if err := h.chatValidator.ValidateChatID(chatID); err != nil {
		sendValidationError(c, err)
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	chat, messages, err := h.chatService.GetChat(user.ID, chatID)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	data := ChatData{Title: chat.Title, Messages: make([]MessageData, 0, len(messages))}
	for _, msg := range messages {
		data.Messages = append(data.Messages, toMessageData(&msg))
	}
	sendSuccess(c, gin.H{"chat": data})
}

// NewChat creates an empty chat
func (h *Handlers) NewChat(c *gin.Context) {
	user := h.currentUser(c)
	if user == nil {
		return
	}

	chat, err := h.chatService.NewChat(user.ID)
	if err != nil {
		sendServiceError(c, err)
		return
	}
	sendSuccess(c, gin.H{
		"chat_id":   chat.ID,
		"title":     chat.Title,
		"timestamp": unixSeconds(chat.UpdatedAt),
	})
}

// RenameChat sets a chat title
func (h *Handlers) RenameChat(c *gin.Context) {
	var req RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}
	if err := h.chatValidator.ValidateRenameRequest(req.ChatID, req.Title); err != nil {
		sendValidationError(c, err)
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	if err := h.chatService.RenameChat(user.ID, req.ChatID, req.Title); err != nil {
		sendServiceError(c, err)
		return
	}
	sendSuccess(c, nil)
}

// DeleteChat removes a chat. Deleting an unknown chat succeeds.
func (h *Handlers) DeleteChat(c *gin.Context) {
	var req ChatIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}
	if err := h.chatValidator.ValidateChatID(req.ChatID); err != nil {
		sendValidationError(c, err)
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	if err := h.chatService.DeleteChat(user.ID, req.ChatID); err != nil {
		sendServiceError(c, err)
		return
	}
	sendSuccess(c, nil)
}

// ClearChats removes all chats of the user
func (h *Handlers) ClearChats(c *gin.Context) {
	user := h.currentUser(c)
	if user == nil {
		return
	}

	if err := h.chatService.ClearChats(user.ID); err != nil {
		sendServiceError(c, err)
		return
	}
	sendSuccess(c, nil)
}

// SendMessage answers a message, or regenerates the last answer
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}
	var err error
	if req.Regenerate {
		err = h.chatValidator.ValidateChatID(req.ChatID)
	} else {
		err = h.chatValidator.ValidateSendRequest(req.ChatID, req.Message)
	}
	if err != nil {
		sendValidationError(c, err)
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	resp, err := h.chatService.SendMessage(c.Request.Context(), chatService.SendMessageRequest{
		UserID:     user.ID,
		ChatID:     req.ChatID,
		Message:    req.Message,
		Model:      user.Settings.Model,
		Regenerate: req.Regenerate,
	})
	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"chat_id":  req.ChatID,
			"username": user.Username,
		}).WithError(err).Warn("Send failed")
		sendServiceError(c, err)
		return
	}

	sendSuccess(c, gin.H{
		"message": toMessageData(&resp.Message),
		"title":   resp.Title,
	})
}

func toChatInfo(chat *db.Chat) ChatInfo {
	return ChatInfo{ID: chat.ID, Title: chat.Title, Timestamp: unixSeconds(chat.UpdatedAt)}
}

func toMessageData(msg *db.Message) MessageData {
	return MessageData{Role: msg.Role, Content: msg.Content, Timestamp: unixSeconds(msg.CreatedAt)}
}
