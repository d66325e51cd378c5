package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-lstech-balance/internal/config"
	"github.com/jrsteele09/go-lstech-balance/poller"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Publisher sends one message to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg amqp.Publishing) error
}

// DialPublisher opens a connection per message. Readings arrive minutes apart, so a
// long lived connection would mostly sit idle.
type DialPublisher struct {
	URL string
}

var _ Publisher = DialPublisher{}

func (p DialPublisher) Publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		return fmt.Errorf("rabbitmq queue declare %s: %w", queue, err)
	}

	if err := ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		msg,
	); err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", queue, err)
	}
	return nil
}

// AMQPReporter publishes accepted readings and details as persistent JSON messages.
// Reports that carry nothing new are not published.
type AMQPReporter struct {
	queue     string
	publisher Publisher
	nowFunc   func() time.Time
	logger    zerolog.Logger
}

var _ poller.Reporter = (*AMQPReporter)(nil)

type AMQPOption func(*AMQPReporter)

func WithPublisher(p Publisher) AMQPOption {
	return func(r *AMQPReporter) {
		r.publisher = p
	}
}

func WithAMQPNowFunc(now func() time.Time) AMQPOption {
	return func(r *AMQPReporter) {
		r.nowFunc = now
	}
}

func NewAMQPReporter(cfg config.PublishConfig, options ...AMQPOption) *AMQPReporter {
	r := &AMQPReporter{
		queue:  cfg.GetAMQPQueue(),
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.publisher == nil {
		r.publisher = DialPublisher{URL: cfg.GetAMQPURL()}
	}
	if r.nowFunc == nil {
		r.nowFunc = time.Now
	}
	return r
}

func (r *AMQPReporter) Report(ctx context.Context, rep poller.Report) error {
	if rep.Status != poller.StatusUpdated {
		return nil
	}

	msg, err := r.message(rep)
	if err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, r.queue, msg); err != nil {
		r.logger.Err(err).Str("queue", r.queue).Str("cycle_id", rep.CycleID.String()).Msg("publishing reading")
		return err
	}
	return nil
}

func (r *AMQPReporter) message(rep poller.Report) (amqp.Publishing, error) {
	body, err := json.Marshal(NewReading(rep))
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("sink marshal reading: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: rep.CycleID.String(),
		Type:          "lstech." + string(rep.Cycle),
		Timestamp:     r.nowFunc().UTC(),
		Body:          body,
	}, nil
}
