package events

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/safar/wholesale-store/internal/config"
	"github.com/sirupsen/logrus"
)

// Handler processes one event. Returning an error requeues the delivery.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

type Consumer struct {
	cfg     config.BrokerConfig
	handler Handler
	log     logrus.FieldLogger
}

func NewConsumer(cfg config.BrokerConfig, handler Handler, log logrus.FieldLogger) *Consumer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 10
	}
	return &Consumer{cfg: cfg, handler: handler, log: log}
}

// Run starts the workers and blocks until ctx is cancelled or every worker
// has stopped.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	setup, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open RabbitMQ channel: %w", err)
	}
	if err := declareTopology(setup, c.cfg.Exchange, c.cfg.Queue); err != nil {
		setup.Close()
		return err
	}
	setup.Close()

	var wg sync.WaitGroup
	wg.Add(c.cfg.Workers)
	for i := 0; i < c.cfg.Workers; i++ {
		go c.worker(ctx, conn, i, &wg)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		<-done
		return nil
	case <-done:
		return fmt.Errorf("all workers stopped")
	}
}

func (c *Consumer) worker(ctx context.Context, conn *amqp.Connection, id int, wg *sync.WaitGroup) {
	defer wg.Done()
	log := c.log.WithField("worker", id)

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Error("open channel")
		return
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		log.WithError(err).Error("set qos")
		return
	}

	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		log.WithError(err).Error("consume")
		return
	}

	log.Info("start consuming")
	for d := range msgs {
		c.dispatch(ctx, log, d)
	}
}

type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) dispatch(ctx context.Context, log logrus.FieldLogger, d amqp.Delivery) {
	c.process(ctx, log, d.Body, d.Redelivered, &d)
}

// process decodes and handles one message body. Malformed messages are
// dropped; handler failures are requeued once and then dropped.
func (c *Consumer) process(ctx context.Context, log logrus.FieldLogger, body []byte, redelivered bool, ack acker) {
	e, err := Decode(body)
	if err != nil {
		log.WithError(err).Warn("dropping malformed event")
		ack.Ack(false)
		return
	}

	entry := log.WithFields(logrus.Fields{"event_id": e.ID, "event_type": e.Type})
	if err := c.handler.Handle(ctx, e); err != nil {
		entry.WithError(err).Error("handle event")
		ack.Nack(false, !redelivered)
		return
	}

	entry.Debug("event handled")
	ack.Ack(false)
}
