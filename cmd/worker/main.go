// Command worker consumes storefront events and turns them into in-app
// notifications.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/wholesale-store/internal/config"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/events"
	"github.com/safar/wholesale-store/internal/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(config.LogConfig{Level: "info"}).Fatalf("Load config: %v", err)
	}
	log := logger.New(cfg.Log)

	if cfg.Broker.URL == "" {
		log.Fatal("RABBITMQ_URI is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	notifier := events.Notifier{Writer: events.DBNotificationWriter{DB: db}}
	consumer := events.NewConsumer(cfg.Broker, notifier, log)

	log.WithFields(logrus.Fields{
		"queue":   cfg.Broker.Queue,
		"workers": cfg.Broker.Workers,
	}).Info("Worker starting")

	if err := consumer.Run(ctx); err != nil {
		log.Fatalf("Consumer stopped: %v", err)
	}
	log.Info("Worker stopped")
}
