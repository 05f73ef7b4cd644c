package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-inbox/internal/automation"
	"whatsapp-inbox/internal/broadcast"
	"whatsapp-inbox/internal/config"
	"whatsapp-inbox/internal/database"
	"whatsapp-inbox/internal/inbox"
	"whatsapp-inbox/internal/logger"
	"whatsapp-inbox/internal/observability"
	"whatsapp-inbox/internal/payments"
	"whatsapp-inbox/internal/server"
	"whatsapp-inbox/internal/whatsapp"
	"whatsapp-inbox/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger.Setup(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		return err
	}

	client := whatsapp.NewClient(cfg.WhatsAppAPIBase, cfg.WhatsAppAPIVersion, cfg.WhatsAppTimeout, cfg.SendAttempts)
	dispatcher := whatsapp.NewDispatcher(client)
	store := inbox.NewStore(db)
	engine := automation.NewEngine(store, dispatcher, cfg.BusinessLocation)
	hub := ws.NewHub(cfg.CORSAllowedOrigins)
	pipeline := inbox.NewPipeline(store, engine, hub)

	var provider payments.Provider
	if cfg.StripeSecretKey != "" {
		provider = payments.NewStripeProvider(cfg.StripeSecretKey, cfg.AppURL, nil)
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, payment links disabled")
	}
	paymentService := payments.NewService(db, provider)

	broadcasts := broadcast.NewService(db, dispatcher)
	if _, err := broadcasts.FailInterrupted(ctx); err != nil {
		return err
	}
	scheduler, err := broadcast.NewScheduler(broadcasts, cfg.BroadcastInterval, cfg.BusinessLocation)
	if err != nil {
		return err
	}

	router := server.NewRouter(server.Deps{
		Config:     cfg,
		Store:      store,
		Pipeline:   pipeline,
		Sender:     dispatcher,
		Payments:   paymentService,
		Broadcasts: broadcasts,
		Hub:        hub,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	return g.Wait()
}
