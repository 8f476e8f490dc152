package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	rabbitPrefetch   = 50
	rabbitMaxBackoff = 30 * time.Second
)

// declareQueue declares the durable queue named after an event type.  It
// is idempotent.
func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("queue declare %s: %w", name, err)
	}
	return nil
}

// RabbitPublisher publishes events to RabbitMQ, one durable queue per event
// type, through the default exchange.  The connection is opened on first
// use and reopened after a failure.
type RabbitPublisher struct {
	url string
	log *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewRabbitPublisher returns a publisher for the broker at url.  It does not
// dial until the first Publish.
func NewRabbitPublisher(url string, log *zap.Logger) *RabbitPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RabbitPublisher{url: url, log: log.Named("rabbitmq")}
}

func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.declared = map[string]bool{}
	return ch, nil
}

func (p *RabbitPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Publish sends evt as a persistent message routed to the queue named
// evt.Type.  The message id is the event id.
func (p *RabbitPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	if !p.declared[evt.Type] {
		if err := declareQueue(ch, evt.Type); err != nil {
			p.resetLocked()
			return err
		}
		p.declared[evt.Type] = true
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Type:         evt.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", evt.Type, false, false, pub); err != nil {
		p.resetLocked()
		return fmt.Errorf("rabbitmq publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

// RabbitSubscriber consumes event queues with manual acknowledgement.
type RabbitSubscriber struct {
	url string
	log *zap.Logger

	mu    sync.Mutex
	conns []*amqp.Connection
}

// NewRabbitSubscriber returns a subscriber for the broker at url.
func NewRabbitSubscriber(url string, log *zap.Logger) *RabbitSubscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &RabbitSubscriber{url: url, log: log.Named("rabbitmq")}
}

// Subscribe consumes the queue for eventType until ctx is cancelled,
// reconnecting with exponential backoff when the broker goes away.
func (s *RabbitSubscriber) Subscribe(ctx context.Context, eventType string, h Handler) error {
	log := s.log.With(zap.String("queue", eventType))
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(s.url)
		if err != nil {
			log.Warn("dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, rabbitMaxBackoff)
			continue
		}
		backoff = time.Second
		s.track(conn)

		err = s.consume(ctx, conn, eventType, h, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (s *RabbitSubscriber) consume(ctx context.Context, conn *amqp.Connection, queue string, h Handler, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(rabbitPrefetch, 0, false); err != nil {
		log.Warn("set qos failed", zap.Error(err))
	}
	if err := declareQueue(ch, queue); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		deliver(ctx, d, queue, h, log)
	}
	return errors.New("deliveries channel closed")
}

// acknowledger is the part of amqp.Delivery that deliver needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// deliver runs h for one delivery.  Malformed messages are dropped.  A
// failed handler gets one redelivery; a second failure drops the message,
// leaving recovery to the idempotent reconciliation paths.
func deliver(ctx context.Context, d amqp.Delivery, queue string, h Handler, log *zap.Logger) {
	settle(ctx, d, d.Redelivered, d.Body, queue, h, log)
}

func settle(ctx context.Context, ack acknowledger, redelivered bool, body []byte, queue string, h Handler, log *zap.Logger) {
	evt, err := decode(body, queue)
	if err != nil {
		log.Error("dropping message", zap.Error(err))
		_ = ack.Nack(false, false)
		return
	}
	if err := h(ctx, evt); err != nil {
		log.Warn("handler failed",
			zap.String("event_id", evt.ID),
			zap.Uint64("booking_id", evt.BookingID),
			zap.Bool("redelivered", redelivered),
			zap.Error(err))
		_ = ack.Nack(false, !redelivered && !errors.Is(err, ErrMalformed))
		return
	}
	_ = ack.Ack(false)
}

func (s *RabbitSubscriber) track(conn *amqp.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns = append(s.conns, conn)
}

// Close closes every connection opened by Subscribe.
func (s *RabbitSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		if !c.IsClosed() {
			_ = c.Close()
		}
	}
	s.conns = nil
	return nil
}

// sleep waits for d or until ctx is done.  It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
