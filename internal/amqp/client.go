package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"smartbudget/internal/backup"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures        = 5
	openTimeout        = 30 * time.Second
	maxPublishAttempts = 3
	publishTimeout     = 5 * time.Second
)

// Outcomes reported for consumed deliveries.
const (
	OutcomeAcked    = "success"
	OutcomeDropped  = "dropped"
	OutcomeRequeued = "requeued"
)

// MessageRecorder is told what happened to each consumed delivery.
type MessageRecorder interface {
	ObserveMessage(outcome string)
}

// Handler processes one backup request. A non-nil error requeues the message.
type Handler func(ctx context.Context, msg *BackupRequestMessage) error

type Client struct {
	url          string
	exchangeName string
	queueName    string
	recorder     MessageRecorder

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

type ClientOption func(*Client)

func WithMessageRecorder(r MessageRecorder) ClientOption {
	return func(c *Client) {
		c.recorder = r
	}
}

// NewClient dials the broker and declares the exchange, the request queue
// and the events queue.
func NewClient(url, exchangeName, queueName string, opts ...ClientOption) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	for _, opt := range opts {
		opt(client)
	}

	if _, err := client.getChannel(); err != nil {
		return nil, err
	}
	return client, nil
}

// EventsRoutingKey is where completion events are published.
func (c *Client) EventsRoutingKey() string {
	return c.queueName + ".events"
}

func (c *Client) getChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.conn, c.channel = conn, channel
	return channel, nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, name := range []string{c.queueName, c.EventsRoutingKey()} {
		if _, err := ch.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
		// direct exchange: routing key equals the queue name
		if err := ch.QueueBind(name, name, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", name, err)
		}
	}
	return nil
}

// PublishBackupRequest enqueues an operation for the worker.
func (c *Client) PublishBackupRequest(ctx context.Context, userID, operation string) error {
	msg := NewBackupRequestMessage(userID, operation)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.queueName, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published backup request",
		"component", "amqp",
		"user_id", userID,
		"operation", operation,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// PublishBackupEvent announces a finished operation.
func (c *Client) PublishBackupEvent(ctx context.Context, evt *BackupEventMessage) error {
	body, err := evt.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, c.EventsRoutingKey(), body)
}

// BackupCompleted implements backup.Notifier. Publishing failures are only
// logged; the backup itself already finished.
func (c *Client) BackupCompleted(ctx context.Context, e backup.Event) {
	if err := c.PublishBackupEvent(ctx, EventFromBackup(e)); err != nil {
		slog.WarnContext(ctx, "Failed to publish backup event",
			"component", "amqp",
			"operation", string(e.Operation),
			"user_id", e.UserID,
			"error", err)
	}
}

// EventFromBackup converts a backup.Event into its wire form.
func EventFromBackup(e backup.Event) *BackupEventMessage {
	msg := &BackupEventMessage{
		UserID:       e.UserID,
		Operation:    string(e.Operation),
		Success:      e.Err == nil,
		Transactions: e.Transactions,
		Defaulted:    e.Defaulted,
		Timestamp:    e.At,
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	return msg
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	if c.isCircuitOpen() {
		return errors.New("circuit breaker is open: broker unavailable")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < maxPublishAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		lastErr = c.publishOnce(ctx, routingKey, body)
		if lastErr == nil {
			c.recordSuccess()
			return nil
		}
		c.recordFailure()
		if !isConnectionError(lastErr) || c.isCircuitOpen() {
			break
		}
		slog.WarnContext(ctx, "Publish failed, reconnecting",
			"component", "amqp",
			"attempt", attempt+1,
			"error", lastErr)
		c.resetConnection()
	}
	return fmt.Errorf("publish message: %w", lastErr)
}

func (c *Client) publishOnce(ctx context.Context, routingKey string, body []byte) error {
	ch, err := c.getChannel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ConsumeBackupRequests blocks delivering requests to handler until ctx is
// done or the channel closes. Malformed messages are dropped, handler
// errors requeue.
func (c *Client) ConsumeBackupRequests(ctx context.Context, handler Handler) error {
	ch, err := c.getChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming backup requests",
		"component", "amqp",
		"queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption",
				"component", "amqp",
				"reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.dispatch(ctx, delivery, handler)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, delivery amqp091.Delivery, handler Handler) string {
	outcome := c.handleDelivery(ctx, delivery, handler)
	if c.recorder != nil {
		c.recorder.ObserveMessage(outcome)
	}
	return outcome
}

func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler Handler) string {
	msg, err := BackupRequestMessageFromJSON(delivery.Body)
	if err == nil {
		err = msg.Validate()
	}
	if err != nil {
		slog.ErrorContext(ctx, "Dropping malformed message",
			"component", "amqp",
			"error", err)
		_ = delivery.Nack(false, false)
		return OutcomeDropped
	}

	if err := handler(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to handle message",
			"component", "amqp",
			"user_id", msg.UserID,
			"operation", msg.Operation,
			"error", err)
		_ = delivery.Nack(false, true)
		return OutcomeRequeued
	}

	_ = delivery.Ack(false)
	slog.InfoContext(ctx, "Processed backup request",
		"component", "amqp",
		"user_id", msg.UserID,
		"operation", msg.Operation)
	return OutcomeAcked
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()

	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()

	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) resetConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
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

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 4 {
		return 30 * time.Second
	}
	d := time.Second << attempt
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection", "EOF", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}
