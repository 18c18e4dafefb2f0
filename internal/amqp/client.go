package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"gravl/internal/log"
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

var (
	// ErrCircuitOpen is returned by publishes skipped while the broker is failing.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	errDeliveriesClosed = errors.New("message channel closed")
)

// Client publishes and consumes dataset refresh notifications over a direct
// exchange whose routing key is the queue name. The connection is opened
// lazily and replaced after connection errors.
type Client struct {
	url      string
	exchange string
	queue    string
	logger   *log.Logger
	breaker  *breaker

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewClient dials the broker and declares the exchange, queue and binding.
func NewClient(url, exchange, queue string, logger *log.Logger) (*Client, error) {
	c := newClient(url, exchange, queue, logger)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(url, exchange, queue string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentAMQP})
	}
	return &Client{
		url:      url,
		exchange: exchange,
		queue:    queue,
		logger:   logger.With("exchange", exchange, "queue", queue),
		breaker:  newBreaker(maxFailures, openTimeout),
	}
}

func (c *Client) connectLocked() error {
	if c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.conn, c.channel = conn, ch

	if err := declare(ch, c.exchange, c.queue); err != nil {
		c.closeLocked()
		return err
	}
	return nil
}

func declare(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

// channelFor returns a live channel, reconnecting if needed.
func (c *Client) channelFor() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c.channel, nil
}

// PublishDatasetRefresh tells consumers that a table changed. While the
// circuit breaker is open it fails fast with ErrCircuitOpen.
func (c *Client) PublishDatasetRefresh(ctx context.Context, msg *DatasetRefreshMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if !c.breaker.allow() {
		return fmt.Errorf("%w: skipping publish for %s", ErrCircuitOpen, msg.Table)
	}

	ch, err := c.channelFor()
	if err != nil {
		c.breaker.failure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, c.exchange, c.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		if isConnectionError(err) {
			c.mu.Lock()
			c.closeLocked()
			c.mu.Unlock()
		}
		c.breaker.failure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.breaker.success()

	c.logger.InfoContext(ctx, "Published dataset refresh message",
		log.FieldTable, msg.Table,
		log.FieldRecordCount, msg.Count)
	return nil
}

// ConsumeDatasetRefresh delivers refresh messages to handler until ctx is
// cancelled, reconnecting with exponential backoff when the broker drops the
// connection. A handler error requeues the message; undecodable messages are
// dropped.
func (c *Client) ConsumeDatasetRefresh(ctx context.Context, handler func(context.Context, *DatasetRefreshMessage) error) error {
	attempt := 0
	for {
		delivered, err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}
		if delivered {
			attempt = 0
		}

		wait := exponentialBackoff(attempt)
		attempt++
		c.logger.WarnContext(ctx, "AMQP consumer lost connection, reconnecting",
			log.FieldError, err,
			"retry_in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler func(context.Context, *DatasetRefreshMessage) error) (bool, error) {
	ch, err := c.channelFor()
	if err != nil {
		return false, err
	}
	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return false, fmt.Errorf("start consuming: %w", err)
	}
	c.logger.InfoContext(ctx, "Started consuming dataset refresh messages")

	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return delivered, errDeliveriesClosed
			}
			delivered = true
			c.handleDelivery(ctx, d, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler func(context.Context, *DatasetRefreshMessage) error) {
	msg, err := DatasetRefreshMessageFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Dropping undecodable message", log.FieldError, err)
		d.Nack(false, false)
		return
	}
	if err := handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle message, requeueing",
			log.FieldError, err,
			log.FieldTable, msg.Table)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
	c.logger.InfoContext(ctx, "Processed dataset refresh message",
		log.FieldTable, msg.Table,
		log.FieldRecordCount, msg.Count)
}

// exponentialBackoff doubles from one second and caps at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	return min(time.Second<<attempt, maxBackoff)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) || errors.Is(err, errDeliveriesClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection", "eof", "broken pipe", "closed"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}
