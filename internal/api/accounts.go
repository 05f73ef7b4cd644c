package api

import (
	"errors"
	"net/http"

	"whatsapp-inbox/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AccountHandler struct {
	db *gorm.DB
}

func NewAccountHandler(db *gorm.DB) *AccountHandler {
	return &AccountHandler{db: db}
}

type accountResponse struct {
	models.Account
	DemoMode     bool                 `json:"demo_mode"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

func (h *AccountHandler) GetAccounts(c *gin.Context) {
	var accounts []models.Account
	if err := h.db.WithContext(c.Request.Context()).Order("created_at ASC").Find(&accounts).Error; err != nil {
		internalError(c, err)
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, accountResponse{Account: accounts[i], DemoMode: !accounts[i].HasCredentials()})
	}
	c.JSON(http.StatusOK, out)
}

type CreateAccountRequest struct {
	Name                  string `json:"name" binding:"required"`
	WhatsAppPhoneNumberID string `json:"whatsapp_phone_number_id"`
	WhatsAppAccessToken   string `json:"whatsapp_access_token"`
	MetaBusinessID        string `json:"meta_business_id"`
}

// CreateAccount registers a tenant on the free plan.
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	acc := models.Account{
		Name:                  req.Name,
		WhatsAppPhoneNumberID: req.WhatsAppPhoneNumberID,
		WhatsAppAccessToken:   req.WhatsAppAccessToken,
		MetaBusinessID:        req.MetaBusinessID,
	}
	sub := models.Subscription{Plan: models.PlanFree}

	db := h.db.WithContext(c.Request.Context())
	taken, err := phoneNumberIDTaken(db, acc.WhatsAppPhoneNumberID, "")
	if err != nil {
		internalError(c, err)
		return
	}
	if taken {
		phoneNumberIDConflict(c)
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&acc).Error; err != nil {
			return err
		}
		sub.AccountID = acc.ID
		return tx.Create(&sub).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		phoneNumberIDConflict(c)
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, accountResponse{Account: acc, DemoMode: !acc.HasCredentials(), Subscription: &sub})
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}

	resp := accountResponse{Account: *acc, DemoMode: !acc.HasCredentials()}
	var sub models.Subscription
	err := h.db.WithContext(c.Request.Context()).Where("account_id = ?", acc.ID).First(&sub).Error
	switch {
	case err == nil:
		resp.Subscription = &sub
	case !errors.Is(err, gorm.ErrRecordNotFound):
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type UpdateAccountRequest struct {
	Name                  *string `json:"name"`
	WhatsAppPhoneNumberID *string `json:"whatsapp_phone_number_id"`
	WhatsAppAccessToken   *string `json:"whatsapp_access_token"`
	MetaBusinessID        *string `json:"meta_business_id"`
}

// UpdateAccount changes profile fields and WhatsApp credentials. Clearing the
// token puts the account in demo mode.
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.WhatsAppPhoneNumberID != nil {
		updates["whatsapp_phone_number_id"] = *req.WhatsAppPhoneNumberID
	}
	if req.WhatsAppAccessToken != nil {
		updates["whatsapp_access_token"] = *req.WhatsAppAccessToken
	}
	if req.MetaBusinessID != nil {
		updates["meta_business_id"] = *req.MetaBusinessID
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	db := h.db.WithContext(c.Request.Context())
	if req.WhatsAppPhoneNumberID != nil {
		taken, err := phoneNumberIDTaken(db, *req.WhatsAppPhoneNumberID, acc.ID)
		if err != nil {
			internalError(c, err)
			return
		}
		if taken {
			phoneNumberIDConflict(c)
			return
		}
	}
	err := db.Model(acc).Updates(updates).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		phoneNumberIDConflict(c)
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	if err := db.Where("id = ?", acc.ID).First(acc).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, accountResponse{Account: *acc, DemoMode: !acc.HasCredentials()})
}

// phoneNumberIDTaken reports whether another account already uses the sender
// id. Empty ids mark demo accounts and never conflict.
func phoneNumberIDTaken(db *gorm.DB, phoneNumberID, exceptID string) (bool, error) {
	if phoneNumberID == "" {
		return false, nil
	}
	q := db.Model(&models.Account{}).Where("whatsapp_phone_number_id = ?", phoneNumberID)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func phoneNumberIDConflict(c *gin.Context) {
	c.JSON(http.StatusConflict, gin.H{"error": "Phone number ID already linked to another account"})
}
