package api

import (
	"errors"
	"net/http"
	"time"

	"whatsapp-inbox/internal/broadcast"
	"whatsapp-inbox/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type BroadcastHandler struct {
	db      *gorm.DB
	service *broadcast.Service
}

func NewBroadcastHandler(db *gorm.DB, service *broadcast.Service) *BroadcastHandler {
	return &BroadcastHandler{db: db, service: service}
}

func (h *BroadcastHandler) GetBroadcasts(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}
	var out []models.Broadcast
	if err := h.db.WithContext(c.Request.Context()).
		Where("account_id = ?", acc.ID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		internalError(c, err)
		return
	}
	if out == nil {
		out = []models.Broadcast{}
	}
	c.JSON(http.StatusOK, out)
}

type BroadcastRequest struct {
	Name        string     `json:"name" binding:"required"`
	Body        string     `json:"body" binding:"required"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// CreateBroadcast stores a draft, or a scheduled broadcast when scheduled_at is set.
func (h *BroadcastHandler) CreateBroadcast(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b := models.Broadcast{
		AccountID: acc.ID,
		Name:      req.Name,
		Body:      req.Body,
		Status:    models.BroadcastDraft,
	}
	if req.ScheduledAt != nil {
		at := req.ScheduledAt.UTC()
		b.ScheduledAt = &at
		b.Status = models.BroadcastScheduled
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&b).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// UpdateBroadcast edits a broadcast that has not been sent yet.
func (h *BroadcastHandler) UpdateBroadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := h.db.WithContext(c.Request.Context())
	b, ok := h.editable(c, db)
	if !ok {
		return
	}

	b.Name = req.Name
	b.Body = req.Body
	b.ScheduledAt = nil
	b.Status = models.BroadcastDraft
	if req.ScheduledAt != nil {
		at := req.ScheduledAt.UTC()
		b.ScheduledAt = &at
		b.Status = models.BroadcastScheduled
	}
	res := db.Model(b).
		Where("status IN ?", []string{models.BroadcastDraft, models.BroadcastScheduled}).
		Select("name", "body", "scheduled_at", "status").
		Updates(b)
	if res.Error != nil {
		internalError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Broadcast already sent"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BroadcastHandler) DeleteBroadcast(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	if _, ok := h.editable(c, db); !ok {
		return
	}
	if err := db.Where("id = ?", c.Param("id")).Delete(&models.Broadcast{}).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Broadcast deleted"})
}

// SendBroadcast sends a draft or scheduled broadcast right away.
func (h *BroadcastHandler) SendBroadcast(c *gin.Context) {
	res, err := h.service.Send(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, broadcast.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Broadcast not found"})
	case errors.Is(err, broadcast.ErrAlreadySent):
		c.JSON(http.StatusConflict, gin.H{"error": "Broadcast already sent"})
	case err != nil:
		internalError(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{
			"status":  "Broadcast processed",
			"sent_to": res.Sent,
			"failed":  res.Failed,
			"total":   res.Recipients,
		})
	}
}

// editable loads the :id broadcast and rejects ones already sent or sending.
func (h *BroadcastHandler) editable(c *gin.Context, db *gorm.DB) (*models.Broadcast, bool) {
	var b models.Broadcast
	err := db.Where("id = ?", c.Param("id")).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Broadcast not found"})
		return nil, false
	}
	if err != nil {
		internalError(c, err)
		return nil, false
	}
	if b.Status != models.BroadcastDraft && b.Status != models.BroadcastScheduled {
		c.JSON(http.StatusConflict, gin.H{"error": "Broadcast already sent"})
		return nil, false
	}
	return &b, true
}
