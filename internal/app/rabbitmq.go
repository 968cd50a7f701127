package app

import (
	"context"
	"fmt"
	"log/slog"

	"ridehail/internal/config"
	"ridehail/internal/mq"
)

// NewRabbitMQ connects to RabbitMQ and declares the trip event exchange.
// It returns nil, nil when no URL is configured.
func NewRabbitMQ(ctx context.Context, cfg config.RabbitMQConfig, logger *slog.Logger) (*mq.RabbitMQ, error) {
	if cfg.URL == "" {
		logger.Info("rabbitmq disabled, RABBITMQ_URL not set")
		return nil, nil
	}

	conn, err := mq.Connect(ctx, cfg.URL, cfg.MaxRetries, logger)
	if err != nil {
		return nil, err
	}
	if err := conn.DeclareTopicExchange(mq.TripExchange); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare trip exchange: %w", err)
	}
	return conn, nil
}
