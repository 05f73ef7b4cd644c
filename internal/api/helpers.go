// Package api implements the dashboard REST endpoints.
package api

import (
	"context"
	"errors"
	"net/http"

	"whatsapp-inbox/internal/middleware"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Sender delivers a text message for an account.
type Sender interface {
	SendText(ctx context.Context, account *models.Account, to, body string) (whatsapp.Delivery, error)
}

// loadAccount resolves the :accountId path parameter, answering 404 itself.
func loadAccount(c *gin.Context, db *gorm.DB) (*models.Account, bool) {
	var acc models.Account
	err := db.WithContext(c.Request.Context()).Where("id = ?", c.Param("accountId")).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return nil, false
	}
	if err != nil {
		internalError(c, err)
		return nil, false
	}
	return &acc, true
}

func internalError(c *gin.Context, err error) {
	middleware.LoggerFrom(c).Error().Err(err).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
