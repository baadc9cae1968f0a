package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/wholesale-store/internal/api"
	"github.com/safar/wholesale-store/internal/config"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/events"
	"github.com/safar/wholesale-store/internal/logger"
	"github.com/safar/wholesale-store/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(config.LogConfig{Level: "info"}).Fatalf("Load config: %v", err)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Connected to database successfully")

	if cfg.Database.MigrateOnStart {
		n, err := migrations.Apply(ctx, db, migrations.Up)
		if err != nil {
			log.Fatalf("Run migrations: %v", err)
		}
		log.WithField("applied", n).Info("Migrations up to date")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Broker.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Broker)
		if err != nil {
			log.Fatalf("Connect to broker: %v", err)
		}
		publisher = amqpPublisher
		log.WithField("exchange", cfg.Broker.Exchange).Info("Publishing events to broker")
	} else {
		log.Warn("RABBITMQ_URI not set, events are discarded")
	}
	defer publisher.Close()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewServer(db, cfg, publisher, log).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Graceful shutdown failed: %v", err)
	}
}
