package api

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"whatsapp-inbox/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ContactHandler struct {
	db *gorm.DB
}

func NewContactHandler(db *gorm.DB) *ContactHandler {
	return &ContactHandler{db: db}
}

func (h *ContactHandler) findContacts(c *gin.Context, accountID string) ([]models.Contact, error) {
	q := h.db.WithContext(c.Request.Context()).Where("account_id = ?", accountID)
	if v := c.Query("opt_in"); v != "" {
		optIn, _ := strconv.ParseBool(v)
		q = q.Where("opt_in = ?", optIn)
	}
	var contacts []models.Contact
	if err := q.Order("created_at DESC").Find(&contacts).Error; err != nil {
		return nil, err
	}

	// labels are stored as JSON text, filter in memory
	if label := c.Query("label"); label != "" {
		filtered := contacts[:0]
		for _, ct := range contacts {
			if hasLabel(ct.Labels, label) {
				filtered = append(filtered, ct)
			}
		}
		contacts = filtered
	}
	return contacts, nil
}

// GetContacts lists the account's contacts, optionally filtered by ?label= and ?opt_in=.
func (h *ContactHandler) GetContacts(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}
	contacts, err := h.findContacts(c, acc.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

type CreateContactRequest struct {
	Phone  string   `json:"phone" binding:"required"`
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
	OptIn  bool     `json:"opt_in"`
}

func (h *ContactHandler) CreateContact(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}
	var req CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var existing int64
	if err := db.Model(&models.Contact{}).Where("account_id = ? AND phone = ?", acc.ID, req.Phone).Count(&existing).Error; err != nil {
		internalError(c, err)
		return
	}
	if existing > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Contact already exists"})
		return
	}

	contact := models.Contact{
		AccountID: acc.ID,
		Phone:     req.Phone,
		Name:      strPtr(req.Name),
		Labels:    req.Labels,
		OptIn:     req.OptIn,
	}
	if err := db.Create(&contact).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}

type UpdateContactRequest struct {
	Name   *string   `json:"name"`
	Labels *[]string `json:"labels"`
	OptIn  *bool     `json:"opt_in"`
}

func (h *ContactHandler) UpdateContact(c *gin.Context) {
	var req UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var contact models.Contact
	err := db.Where("id = ?", c.Param("id")).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	if req.Name != nil {
		contact.Name = strPtr(*req.Name)
	}
	if req.Labels != nil {
		contact.Labels = *req.Labels
	}
	if req.OptIn != nil {
		contact.OptIn = *req.OptIn
	}
	if err := db.Select("name", "labels", "opt_in").Updates(&contact).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

// DeleteContact removes the contact with its conversations and messages.
// Payment links keep their history and lose the contact reference.
func (h *ContactHandler) DeleteContact(c *gin.Context) {
	id := c.Param("id")

	var deleted int64
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		convs := tx.Model(&models.Conversation{}).Select("id").Where("contact_id = ?", id)
		if err := tx.Where("conversation_id IN (?)", convs).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("contact_id = ?", id).Delete(&models.Conversation{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.PaymentLink{}).Where("contact_id = ?", id).Update("contact_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Contact{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		internalError(c, err)
		return
	}
	if deleted == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Contact deleted"})
}

// ExportContacts streams the account's contacts as CSV. Accepts the same
// filters as GetContacts.
func (h *ContactHandler) ExportContacts(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}
	contacts, err := h.findContacts(c, acc.ID)
	if err != nil {
		internalError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment; filename=contacts.csv")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"phone", "name", "labels", "opt_in", "created_at"})
	for _, ct := range contacts {
		name := ""
		if ct.Name != nil {
			name = *ct.Name
		}
		_ = w.Write([]string{
			ct.Phone,
			name,
			strings.Join(ct.Labels, ";"),
			strconv.FormatBool(ct.OptIn),
			ct.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = c.Error(err)
	}
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, want) {
			return true
		}
	}
	return false
}
