package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/logging"
)

const (
	kafkaHandlerAttempts = 3
	kafkaRetryDelay      = 500 * time.Millisecond
)

// KafkaPublisher writes events to the topic named after their type, keyed
// by booking id so that a booking's events stay ordered within a
// partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns a synchronous publisher for brokers.
func NewKafkaPublisher(brokers []string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("kafka")
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		ErrorLogger:            logging.NewErrorPrintfAdapter(log),
	}}
}

// Publish writes evt and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	msg, err := toKafkaMessage(evt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", evt.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }

func toKafkaMessage(evt Event) (kafka.Message, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event %s: %w", evt.ID, err)
	}
	return kafka.Message{
		Topic: evt.Type,
		Key:   []byte(strconv.FormatUint(evt.BookingID, 10)),
		Value: body,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.ID)},
		},
	}, nil
}

// KafkaSubscriber reads event topics as a consumer group.  Offsets are
// committed only after the handler returns, so delivery is at least once.
type KafkaSubscriber struct {
	brokers []string
	groupID string
	log     *zap.Logger

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewKafkaSubscriber returns a subscriber joining groupID.
func NewKafkaSubscriber(brokers []string, groupID string, log *zap.Logger) *KafkaSubscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaSubscriber{brokers: brokers, groupID: groupID, log: log.Named("kafka")}
}

// Subscribe consumes the topic for eventType until ctx is cancelled.  A
// failing handler is retried a few times; the message is then logged and
// committed so the partition keeps moving.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, eventType string, h Handler) error {
	log := s.log.With(zap.String("topic", eventType))
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           s.brokers,
		GroupID:           s.groupID,
		Topic:             eventType,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		ErrorLogger:       logging.NewErrorPrintfAdapter(log),
	})
	s.track(r)

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka fetch %s: %w", eventType, err)
		}
		s.handle(ctx, msg, eventType, h, log)
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn("commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (s *KafkaSubscriber) handle(ctx context.Context, msg kafka.Message, topic string, h Handler, log *zap.Logger) {
	evt, err := decode(msg.Value, topic)
	if err != nil {
		log.Error("dropping message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	for attempt := 1; ; attempt++ {
		err := h(ctx, evt)
		if err == nil {
			return
		}
		if attempt >= kafkaHandlerAttempts || errors.Is(err, ErrMalformed) {
			log.Error("handler failed, giving up",
				zap.String("event_id", evt.ID),
				zap.Uint64("booking_id", evt.BookingID),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return
		}
		log.Warn("handler failed, retrying",
			zap.String("event_id", evt.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if !sleep(ctx, time.Duration(attempt)*kafkaRetryDelay) {
			return
		}
	}
}

func (s *KafkaSubscriber) track(r *kafka.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers = append(s.readers, r)
}

// Close closes every reader opened by Subscribe.
func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, r := range s.readers {
		errs = append(errs, r.Close())
	}
	s.readers = nil
	return errors.Join(errs...)
}
