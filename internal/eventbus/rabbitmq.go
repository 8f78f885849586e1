package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"questboard/internal/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	// For publisher confirms
	publishTimeout = 5 * time.Second
	exchangeType   = "topic"
)

var (
	// ErrNotConfirmed indicates that the broker rejected a message.
	ErrNotConfirmed = errors.New("eventbus: message not confirmed by broker")
	// ErrConfirmTimeout indicates that the broker did not answer in time.
	ErrConfirmTimeout = errors.New("eventbus: publish confirmation timeout")
	// ErrClosed indicates a publisher that was already closed.
	ErrClosed = errors.New("eventbus: publisher closed")
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes events to a durable topic exchange and waits for broker confirms.
type RabbitMQ struct {
	exchange string
	timeout  time.Duration
	log      *logger.Logger

	mu            sync.Mutex
	conn          *amqp.Connection
	ch            channel
	notifyConfirm chan amqp.Confirmation
	closed        bool
}

// NewRabbitMQ dials url and declares exchange.
func NewRabbitMQ(url, exchange string, log *logger.Logger) (*RabbitMQ, error) {
	log.Info("Connecting to RabbitMQ", zap.String("exchange", exchange))
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open producer channel: %w", err)
	}

	r, err := newRabbitMQ(ch, exchange, log)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	r.conn = conn
	return r, nil
}

func newRabbitMQ(ch channel, exchange string, log *logger.Logger) (*RabbitMQ, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("producer channel could not be put into confirm mode: %w", err)
	}
	err := ch.ExchangeDeclare(
		exchange,     // name
		exchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &RabbitMQ{
		exchange:      exchange,
		timeout:       publishTimeout,
		log:           log,
		ch:            ch,
		notifyConfirm: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// Publish sends one persistent message and waits for the broker's confirmation.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, payload any) error {
	env, body, err := newEnvelope(routingKey, payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	err = r.ch.Publish(
		r.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.ID,
			Type:         env.Type,
			Timestamp:    env.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case confirm, ok := <-r.notifyConfirm:
		if !ok {
			return ErrClosed
		}
		if !confirm.Ack {
			return fmt.Errorf("%w: delivery tag %d", ErrNotConfirmed, confirm.DeliveryTag)
		}
		r.log.Debug("event published", zap.String("type", env.Type), zap.Uint64("tag", confirm.DeliveryTag))
		return nil
	case <-timer.C:
		return ErrConfirmTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the channel and the connection.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := r.ch.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing channel: %w", err))
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
