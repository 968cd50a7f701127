package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("rabbitmq connection closed")

const (
	defaultMaxRetries = 10
	maxRetryDelay     = 30 * time.Second
)

// RabbitMQ is a publishing connection to RabbitMQ that redials lazily when
// the broker drops it.
type RabbitMQ struct {
	url    string
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// Connect dials RabbitMQ, retrying with a growing delay up to maxRetries
// attempts. A non-positive maxRetries uses the default.
func Connect(ctx context.Context, url string, maxRetries int, logger *slog.Logger) (*RabbitMQ, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	mq := &RabbitMQ{url: url, logger: logger}

	retryDelay := time.Second
	for attempt := 1; ; attempt++ {
		err := mq.connect()
		if err == nil {
			logger.Info("rabbitmq connected", "attempt", attempt)
			return mq, nil
		}

		logger.Warn("rabbitmq connection attempt failed",
			"attempt", attempt,
			"max_retries", maxRetries,
			"retry_in", retryDelay,
			"error", err,
		)
		if attempt == maxRetries {
			return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay = min(time.Duration(float64(retryDelay)*1.5), maxRetryDelay)
	}
}

func (mq *RabbitMQ) connect() error {
	conn, ch, err := dial(mq.url)
	if err != nil {
		return err
	}

	mq.mu.Lock()
	mq.conn = conn
	mq.ch = ch
	mq.mu.Unlock()
	return nil
}

func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

// channel returns an open channel, redialing once if the current one is gone.
func (mq *RabbitMQ) channel() (*amqp.Channel, error) {
	mq.mu.RLock()
	ch, closed := mq.ch, mq.closed
	mq.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}

	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil, ErrClosed
	}
	if mq.ch != nil && !mq.ch.IsClosed() {
		return mq.ch, nil
	}

	mq.logger.Warn("rabbitmq channel lost, reconnecting")
	if mq.conn != nil {
		_ = mq.conn.Close()
	}
	conn, newCh, err := dial(mq.url)
	if err != nil {
		return nil, err
	}
	mq.conn, mq.ch = conn, newCh
	return newCh, nil
}

// DeclareTopicExchange declares a durable topic exchange.
func (mq *RabbitMQ) DeclareTopicExchange(name string) error {
	ch, err := mq.channel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(
		name,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

// Publish sends a persistent JSON message to exchange.
func (mq *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	ch, err := mq.channel()
	if err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// Close closes the channel and connection.
func (mq *RabbitMQ) Close() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return
	}
	mq.closed = true

	if mq.ch != nil {
		_ = mq.ch.Close()
	}
	if mq.conn != nil {
		_ = mq.conn.Close()
	}
	mq.logger.Info("rabbitmq connection closed")
}
