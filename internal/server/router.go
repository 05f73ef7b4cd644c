// Package server wires middleware, webhooks and the dashboard API into one
// gin engine.
package server

import (
	"net/http"
	"time"

	"whatsapp-inbox/internal/api"
	"whatsapp-inbox/internal/broadcast"
	"whatsapp-inbox/internal/config"
	"whatsapp-inbox/internal/inbox"
	"whatsapp-inbox/internal/middleware"
	"whatsapp-inbox/internal/payments"
	"whatsapp-inbox/internal/webhook"
	"whatsapp-inbox/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps are the constructed handles the routes need. Hub may be nil.
type Deps struct {
	Config     *config.Config
	Store      *inbox.Store
	Pipeline   *inbox.Pipeline
	Sender     api.Sender
	Payments   *payments.Service
	Broadcasts *broadcast.Service
	Hub        *ws.Hub
}

// NewRouter builds the engine. Middleware order: tracing, request id, access
// log, recovery, metrics.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	db := d.Store.DB()

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Hub != nil {
		r.GET("/ws", gin.WrapF(d.Hub.ServeWs))
	}

	// Provider webhooks
	wa := webhook.NewHandler(cfg.VerifyToken, d.Pipeline)
	r.GET("/webhook/whatsapp", wa.VerifyWebhook)
	r.POST("/webhook/whatsapp", wa.HandleMessage)
	r.POST("/webhook/stripe", webhook.NewStripeHandler(cfg.StripeWebhookSecret, d.Payments).HandleEvent)

	accounts := api.NewAccountHandler(db)
	contacts := api.NewContactHandler(db)
	var notifier inbox.Notifier
	if d.Hub != nil {
		notifier = d.Hub
	}
	dashboard := api.NewDashboardHandler(d.Store, d.Sender, notifier)
	automations := api.NewAutomationHandler(db)
	broadcasts := api.NewBroadcastHandler(db, d.Broadcasts)
	pay := api.NewPaymentHandler(d.Payments)

	apiGroup := r.Group("/api")
	apiGroup.Use(corsMiddleware(cfg.CORSAllowedOrigins))
	apiGroup.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst).Handler())
	apiGroup.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		apiGroup.GET("/accounts", accounts.GetAccounts)
		apiGroup.POST("/accounts", accounts.CreateAccount)
		apiGroup.GET("/accounts/:accountId", accounts.GetAccount)
		apiGroup.PUT("/accounts/:accountId", accounts.UpdateAccount)

		// CRM
		apiGroup.GET("/accounts/:accountId/contacts", contacts.GetContacts)
		apiGroup.POST("/accounts/:accountId/contacts", contacts.CreateContact)
		apiGroup.GET("/accounts/:accountId/contacts/export", contacts.ExportContacts)
		apiGroup.PUT("/contacts/:id", contacts.UpdateContact)
		apiGroup.DELETE("/contacts/:id", contacts.DeleteContact)

		// Inbox
		apiGroup.GET("/accounts/:accountId/conversations", dashboard.GetConversations)
		apiGroup.GET("/conversations/:id/messages", dashboard.GetMessages)
		apiGroup.PATCH("/conversations/:id", dashboard.UpdateConversation)
		apiGroup.POST("/send", dashboard.SendMessage)

		// Automations
		apiGroup.GET("/accounts/:accountId/automations", automations.GetRules)
		apiGroup.POST("/accounts/:accountId/automations", automations.CreateRule)
		apiGroup.GET("/accounts/:accountId/automations/logs", automations.GetLogs)
		apiGroup.GET("/accounts/:accountId/automations/analytics", automations.GetAnalytics)
		apiGroup.PUT("/automations/:id", automations.UpdateRule)
		apiGroup.DELETE("/automations/:id", automations.DeleteRule)
		apiGroup.POST("/automations/:id/toggle", automations.ToggleRule)

		// Broadcasts
		apiGroup.GET("/accounts/:accountId/broadcasts", broadcasts.GetBroadcasts)
		apiGroup.POST("/accounts/:accountId/broadcasts", broadcasts.CreateBroadcast)
		apiGroup.PUT("/broadcasts/:id", broadcasts.UpdateBroadcast)
		apiGroup.DELETE("/broadcasts/:id", broadcasts.DeleteBroadcast)
		apiGroup.POST("/broadcasts/:id/send", broadcasts.SendBroadcast)

		// Payments
		apiGroup.POST("/payment-links", pay.CreatePaymentLink)
		apiGroup.GET("/accounts/:accountId/payment-links", pay.GetPaymentLinks)
		apiGroup.GET("/plans", pay.GetPlans)
	}

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}
