package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

const defaultPageLimit = 50

// ChatHandler bridges HTTP with the chat service. Authentication happens
// upstream; the gateway injects the caller identity as a header.
type ChatHandler struct {
	Service *chat.Service
	Logger  *slog.Logger
}

// CreateConversation gets or creates the caller's thread with a peer about a property.
func (h ChatHandler) CreateConversation(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req struct {
		PeerID        string `json:"peer_id"`
		PropertyID    string `json:"property_id"`
		PropertyTitle string `json:"property_title"`
		PropertyImage string `json:"property_image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	conv, err := h.Service.CreateOrGetConversation(c.Request.Context(), principal, req.PeerID, req.PropertyID, req.PropertyTitle, req.PropertyImage)
	if err != nil {
		h.respondError(c, err, "create conversation", "user_id", principal, "property_id", req.PropertyID)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ListConversations returns the caller's conversations with counts.
func (h ChatHandler) ListConversations(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	summaries, err := h.Service.ListConversations(c.Request.Context(), principal)
	if err != nil {
		h.respondError(c, err, "list conversations", "user_id", principal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": summaries})
}

// ListMessages returns one page of a conversation's history.
func (h ChatHandler) ListMessages(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	limit := defaultPageLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = value
	}
	page, err := h.Service.ListMessages(c.Request.Context(), conversationID, principal, limit, c.Query("before"))
	if err != nil {
		h.respondError(c, err, "list messages", "conversation_id", conversationID, "user_id", principal)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendMessage posts a message to a conversation.
func (h ChatHandler) SendMessage(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	var req struct {
		Content    string `json:"content"`
		SenderName string `json:"sender_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Service.SendMessage(c.Request.Context(), chat.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       principal,
		SenderName:     req.SenderName,
		Content:        req.Content,
	})
	if err != nil {
		h.respondError(c, err, "send message", "conversation_id", conversationID, "user_id", principal)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead marks the conversation read for the caller.
func (h ChatHandler) MarkRead(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if err := h.Service.MarkConversationRead(c.Request.Context(), conversationID, principal); err != nil {
		h.respondError(c, err, "mark read", "conversation_id", conversationID, "user_id", principal)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnreadCount returns the caller's badge total.
func (h ChatHandler) UnreadCount(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	count, err := h.Service.GetUnreadCount(c.Request.Context(), principal)
	if err != nil {
		h.respondError(c, err, "unread count", "user_id", principal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// DeleteMessage removes a message the caller sent.
func (h ChatHandler) DeleteMessage(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	messageID := c.Param("id")
	deleted, err := h.Service.DeleteMessage(c.Request.Context(), messageID, principal)
	if err != nil {
		h.respondError(c, err, "delete message", "message_id", messageID, "user_id", principal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// DeleteConversation removes a conversation and all its messages.
func (h ChatHandler) DeleteConversation(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	deleted, err := h.Service.DeleteConversation(c.Request.Context(), conversationID, principal)
	if err != nil {
		h.respondError(c, err, "delete conversation", "conversation_id", conversationID, "user_id", principal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Subscribe registers the caller's push subscription.
func (h ChatHandler) Subscribe(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	err := h.Service.RegisterSubscription(c.Request.Context(), chat.Subscription{
		UserID:   principal,
		Endpoint: req.Endpoint,
		Keys:     chat.SubscriptionKeys{P256dh: req.Keys.P256dh, Auth: req.Keys.Auth},
	})
	if err != nil {
		h.respondError(c, err, "register subscription", "user_id", principal)
		return
	}
	c.Status(http.StatusCreated)
}

// Unsubscribe drops a push subscription by endpoint.
func (h ChatHandler) Unsubscribe(c *gin.Context) {
	if _, ok := requirePrincipal(c); !ok {
		return
	}
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.Service.UnregisterSubscription(c.Request.Context(), req.Endpoint); err != nil {
		h.respondError(c, err, "unregister subscription")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h ChatHandler) respondError(c *gin.Context, err error, action string, attrs ...any) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, chat.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat call failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func requirePrincipal(c *gin.Context) (string, bool) {
	principal := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if principal == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return "", false
	}
	return principal, true
}
