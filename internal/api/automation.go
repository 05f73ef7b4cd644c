package api

import (
	"errors"
	"net/http"
	"strconv"

	"whatsapp-inbox/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const maxLogLimit = 500

type AutomationHandler struct {
	db *gorm.DB
}

func NewAutomationHandler(db *gorm.DB) *AutomationHandler {
	return &AutomationHandler{db: db}
}

// GetRules returns the account's automations, oldest first (evaluation order).
func (h *AutomationHandler) GetRules(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}
	var rules []models.Automation
	if err := h.db.WithContext(c.Request.Context()).
		Where("account_id = ?", acc.ID).
		Order("created_at ASC, id ASC").
		Find(&rules).Error; err != nil {
		internalError(c, err)
		return
	}
	if rules == nil {
		rules = []models.Automation{}
	}
	c.JSON(http.StatusOK, rules)
}

type CreateRuleRequest struct {
	Name          string `json:"name" binding:"required"`
	TriggerKind   string `json:"trigger_kind" binding:"required,oneof=outside_business_hours first_contact keyword"`
	TriggerValue  string `json:"trigger_value"`
	ActionKind    string `json:"action_kind" binding:"omitempty,oneof=send_message send_template"`
	ActionMessage string `json:"action_message"`
	Active        *bool  `json:"active"`
}

func (h *AutomationHandler) CreateRule(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TriggerKind == models.TriggerKeyword && req.TriggerValue == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword automations need a trigger_value"})
		return
	}

	rule := models.Automation{
		AccountID:     acc.ID,
		Name:          req.Name,
		TriggerKind:   req.TriggerKind,
		TriggerValue:  strPtr(req.TriggerValue),
		ActionKind:    req.ActionKind,
		ActionMessage: strPtr(req.ActionMessage),
		Active:        true,
	}
	if rule.ActionKind == "" {
		rule.ActionKind = models.ActionSendMessage
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&rule).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

type UpdateRuleRequest struct {
	Name          *string `json:"name"`
	TriggerKind   *string `json:"trigger_kind" binding:"omitempty,oneof=outside_business_hours first_contact keyword"`
	TriggerValue  *string `json:"trigger_value"`
	ActionKind    *string `json:"action_kind" binding:"omitempty,oneof=send_message send_template"`
	ActionMessage *string `json:"action_message"`
}

func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var rule models.Automation
	err := db.Where("id = ?", c.Param("id")).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Automation not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.TriggerKind != nil {
		rule.TriggerKind = *req.TriggerKind
	}
	if req.TriggerValue != nil {
		rule.TriggerValue = strPtr(*req.TriggerValue)
	}
	if req.ActionKind != nil {
		rule.ActionKind = *req.ActionKind
	}
	if req.ActionMessage != nil {
		rule.ActionMessage = strPtr(*req.ActionMessage)
	}
	if rule.TriggerKind == models.TriggerKeyword && rule.TriggerValue == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword automations need a trigger_value"})
		return
	}

	if err := db.Select("name", "trigger_kind", "trigger_value", "action_kind", "action_message").Updates(&rule).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	res := h.db.WithContext(c.Request.Context()).Where("id = ?", c.Param("id")).Delete(&models.Automation{})
	if res.Error != nil {
		internalError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Automation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Automation deleted"})
}

// ToggleRule enables or disables a rule.
func (h *AutomationHandler) ToggleRule(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.Automation{}).
		Where("id = ?", c.Param("id")).
		Update("active", *req.Active)
	if res.Error != nil {
		internalError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Automation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": *req.Active})
}

// GetLogs returns the account's most recent automation firings.
func (h *AutomationHandler) GetLogs(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	var logs []models.AutomationLog
	if err := h.db.WithContext(c.Request.Context()).
		Where("automation_id IN (?)", h.accountRules(acc.ID)).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		internalError(c, err)
		return
	}
	if logs == nil {
		logs = []models.AutomationLog{}
	}
	c.JSON(http.StatusOK, logs)
}

type ruleAnalytics struct {
	TotalRules      int64 `json:"total_rules"`
	ActiveRules     int64 `json:"active_rules"`
	TotalExecutions int64 `json:"total_executions"`
	SuccessfulExecs int64 `json:"successful_executions"`
	FailedExecs     int64 `json:"failed_executions"`
}

func (h *AutomationHandler) GetAnalytics(c *gin.Context) {
	acc, ok := loadAccount(c, h.db)
	if !ok {
		return
	}
	db := h.db.WithContext(c.Request.Context())

	var stats ruleAnalytics
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&stats.TotalRules, db.Model(&models.Automation{}).Where("account_id = ?", acc.ID)},
		{&stats.ActiveRules, db.Model(&models.Automation{}).Where("account_id = ? AND active = ?", acc.ID, true)},
		{&stats.TotalExecutions, db.Model(&models.AutomationLog{}).Where("automation_id IN (?)", h.accountRules(acc.ID))},
		{&stats.SuccessfulExecs, db.Model(&models.AutomationLog{}).Where("automation_id IN (?) AND success = ?", h.accountRules(acc.ID), true)},
		{&stats.FailedExecs, db.Model(&models.AutomationLog{}).Where("automation_id IN (?) AND success = ?", h.accountRules(acc.ID), false)},
	}
	for _, q := range counts {
		if err := q.query.Count(q.dst).Error; err != nil {
			internalError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AutomationHandler) accountRules(accountID string) *gorm.DB {
	return h.db.Model(&models.Automation{}).Select("id").Where("account_id = ?", accountID)
}
