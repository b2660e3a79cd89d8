package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dialAttempts  = 10
	dialRetryWait = 2 * time.Second
)

// Client owns the single AMQP connection for a service process. Each relay
// and consumer opens its own channel from it; channels are not safe for
// unmanaged concurrent reuse.
type Client struct {
	conn   *amqp.Connection
	logger *zap.Logger
}

// NewClient dials the broker, retrying for a bounded period because RabbitMQ
// tends to come up after the services in container environments. Exhausting
// the retries is a fatal startup condition for the caller.
func NewClient(url string, logger *zap.Logger) (*Client, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to RabbitMQ, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", dialAttempts),
			zap.Error(err))
		time.Sleep(dialRetryWait)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	logger.Info("Connected to RabbitMQ")
	return &Client{conn: conn, logger: logger}, nil
}

// Channel opens a dedicated channel on the shared connection.
func (c *Client) Channel() (*amqp.Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

func (c *Client) Close() error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
	}
	c.logger.Info("RabbitMQ connection closed.")
	return nil
}
