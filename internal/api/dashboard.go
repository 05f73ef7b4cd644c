package api

import (
	"errors"
	"net/http"

	"whatsapp-inbox/internal/inbox"
	"whatsapp-inbox/internal/middleware"
	"whatsapp-inbox/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DashboardHandler serves the shared inbox: conversations, their messages and
// manual replies.
type DashboardHandler struct {
	store    *inbox.Store
	sender   Sender
	notifier inbox.Notifier
}

// NewDashboardHandler builds the handler. notifier may be nil.
func NewDashboardHandler(store *inbox.Store, sender Sender, notifier inbox.Notifier) *DashboardHandler {
	return &DashboardHandler{store: store, sender: sender, notifier: notifier}
}

var conversationStatuses = map[string]bool{
	models.ConversationOpen:       true,
	models.ConversationInProgress: true,
	models.ConversationClosed:     true,
}

// GetConversations lists the account's conversations, most recent activity first.
func (h *DashboardHandler) GetConversations(c *gin.Context) {
	acc, ok := loadAccount(c, h.store.DB())
	if !ok {
		return
	}

	q := h.store.DB().WithContext(c.Request.Context()).
		Preload("Contact").
		Where("account_id = ?", acc.ID)
	if status := c.Query("status"); status != "" {
		if !conversationStatuses[status] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		q = q.Where("status = ?", status)
	}

	var convs []models.Conversation
	if err := q.Order("last_message_at IS NULL, last_message_at DESC, created_at DESC").Find(&convs).Error; err != nil {
		internalError(c, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

// GetMessages returns a conversation's messages in chronological order.
func (h *DashboardHandler) GetMessages(c *gin.Context) {
	db := h.store.DB().WithContext(c.Request.Context())
	id := c.Param("id")

	var n int64
	if err := db.Model(&models.Conversation{}).Where("id = ?", id).Count(&n).Error; err != nil {
		internalError(c, err)
		return
	}
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	var messages []models.Message
	if err := db.Where("conversation_id = ?", id).Order("created_at ASC").Find(&messages).Error; err != nil {
		internalError(c, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

type UpdateConversationRequest struct {
	Status     *string   `json:"status"`
	AssignedTo *string   `json:"assigned_to"`
	Labels     *[]string `json:"labels"`
}

// UpdateConversation changes status, assignee or labels. Reopening fails with
// 409 while the contact already has another open conversation.
func (h *DashboardHandler) UpdateConversation(c *gin.Context) {
	var req UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != nil && !conversationStatuses[*req.Status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	db := h.store.DB().WithContext(c.Request.Context())
	var conv models.Conversation
	err := db.Where("id = ?", c.Param("id")).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	if req.Status != nil && *req.Status == models.ConversationOpen && conv.Status != models.ConversationOpen {
		var open int64
		err := db.Model(&models.Conversation{}).
			Where("account_id = ? AND contact_id = ? AND status = ? AND id <> ?",
				conv.AccountID, conv.ContactID, models.ConversationOpen, conv.ID).
			Count(&open).Error
		if err != nil {
			internalError(c, err)
			return
		}
		if open > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Contact already has an open conversation"})
			return
		}
	}

	if req.Status != nil {
		conv.Status = *req.Status
	}
	if req.AssignedTo != nil {
		conv.AssignedTo = strPtr(*req.AssignedTo)
	}
	if req.Labels != nil {
		conv.Labels = *req.Labels
	}
	if err := db.Select("status", "assigned_to", "labels").Updates(&conv).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

type SendRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
}

// SendMessage delivers an agent reply. With message_id the stored pending
// message is sent; otherwise a new outbound message is recorded first. A
// provider failure answers 502 and leaves the message as it was.
func (h *DashboardHandler) SendMessage(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	conv, acc, err := h.store.ConversationWithAccount(ctx, req.ConversationID)
	if errors.Is(err, inbox.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	db := h.store.DB().WithContext(ctx)
	var msg models.Message
	content := req.Content
	if req.MessageID != "" {
		err := db.Where("id = ? AND conversation_id = ?", req.MessageID, conv.ID).First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
			return
		}
		if err != nil {
			internalError(c, err)
			return
		}
		if content == "" && msg.Content != nil {
			content = *msg.Content
		}
	}
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	if req.MessageID == "" {
		msg = models.Message{
			ConversationID: conv.ID,
			Direction:      models.DirectionOutbound,
			Type:           models.MessageText,
			Content:        &content,
			Status:         models.StatusPending,
		}
		if err := h.store.RecordMessage(ctx, &msg); err != nil {
			internalError(c, err)
			return
		}
	}

	delivery, err := h.sender.SendText(ctx, acc, conv.Contact.Phone, content)
	if err != nil {
		lg.Error().Err(err).Str("conversation_id", conv.ID).Str("message_id", msg.ID).Msg("send failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send message", "message_id": msg.ID})
		return
	}

	updates := map[string]interface{}{"status": models.StatusSent}
	if delivery.MessageID != "" {
		updates["provider_message_id"] = delivery.MessageID
	}
	if err := db.Model(&msg).Updates(updates).Error; err != nil {
		internalError(c, err)
		return
	}
	if h.notifier != nil {
		h.notifier.NotifyMessage(&msg)
	}

	if delivery.Demo {
		c.JSON(http.StatusOK, gin.H{"status": "demo_mode", "message_id": msg.ID})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              "ok",
		"message_id":          msg.ID,
		"provider_message_id": delivery.MessageID,
	})
}
