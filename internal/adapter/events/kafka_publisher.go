package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

const publishTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits one message per committed change, keyed by item id so every
// change to an item lands on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(writer messageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger, now: time.Now}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event domain.Event) error {
	value, err := encode(event, p.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID().String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish %s", event.Type())
	}

	p.logger.Debug("Event published",
		zap.String("type", event.Type()),
		zap.String("item_id", event.AggregateID().String()))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.Event) error {
	value, err := encode(event, time.Now())
	if err != nil {
		return err
	}
	p.logger.Info("Event",
		zap.String("type", event.Type()),
		zap.String("item_id", event.AggregateID().String()),
		zap.ByteString("payload", value))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

func encode(event domain.Event, at time.Time) ([]byte, error) {
	body, err := json.Marshal(domain.Envelope{
		Type:       event.Type(),
		OccurredAt: at.UTC(),
		Data:       event,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", event.Type())
	}
	return body, nil
}
