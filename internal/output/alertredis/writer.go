// Package alertredis forwards accepted alerts onto a Redis list so external
// consumers can drain them as a queue.
package alertredis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"novawatch/pkg/models"
)

// Config configures the Redis writer.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Timeout  time.Duration
}

// Writer pushes alerts onto a Redis list.
type Writer struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewWriter creates a Redis writer for list-based queues.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Writer{
		client:  client,
		key:     cfg.Key,
		timeout: cfg.Timeout,
	}, nil
}

// ForwardAlerts pushes one JSON document per alert, preserving order.
func (w *Writer) ForwardAlerts(alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	docs := make([]interface{}, 0, len(alerts))
	for _, a := range alerts {
		body, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal alert %s: %w", a.ID, err)
		}
		docs = append(docs, body)
	}

	if err := w.client.RPush(ctx, w.key, docs...).Err(); err != nil {
		return fmt.Errorf("redis rpush failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (w *Writer) Close() error {
	return w.client.Close()
}
