package api

import (
	"errors"
	"net/http"

	"whatsapp-inbox/internal/middleware"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/payments"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	service *payments.Service
}

func NewPaymentHandler(service *payments.Service) *PaymentHandler {
	return &PaymentHandler{service: service}
}

type CreatePaymentLinkRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Phone       string  `json:"phone"`
	AccountID   string  `json:"account_id"`
	ContactID   string  `json:"contact_id"`
}

// CreatePaymentLink issues an iDEAL/card payment link. Amounts are in euros.
func (h *PaymentHandler) CreatePaymentLink(c *gin.Context) {
	var req CreatePaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.service.CreateLink(c.Request.Context(), payments.CreateLinkInput{
		Amount:      req.Amount,
		Description: req.Description,
		Phone:       req.Phone,
		AccountID:   req.AccountID,
		ContactID:   req.ContactID,
	})
	switch {
	case errors.Is(err, payments.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ongeldig bedrag"})
		return
	case errors.Is(err, payments.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Stripe is not configured"})
		return
	case err != nil:
		middleware.LoggerFrom(c).Error().Err(err).Msg("payment link creation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Kon betaallink niet aanmaken"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment_link": link, "url": link.URL})
}

func (h *PaymentHandler) GetPaymentLinks(c *gin.Context) {
	links, err := h.service.ListLinks(c.Request.Context(), c.Param("accountId"))
	if err != nil {
		internalError(c, err)
		return
	}
	if links == nil {
		links = []models.PaymentLink{}
	}
	c.JSON(http.StatusOK, links)
}

func (h *PaymentHandler) GetPlans(c *gin.Context) {
	c.JSON(http.StatusOK, payments.Plans())
}
