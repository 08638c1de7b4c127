package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

const (
	HeaderEventID    = "event-id"
	HeaderEventTopic = "event-topic"
)

type Producer struct {
	brokers     []string
	topicPrefix string
	writer      *kafka.Writer
	log         *zap.Logger
}

func NewProducer(brokers []string, topicPrefix string, log *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		brokers:     brokers,
		topicPrefix: topicPrefix,
		writer:      writer,
		log:         log.With(zap.String("component", "kafka-producer")),
	}
}

// NewMessage maps an outbox event onto a Kafka message. Events of one
// aggregate share a key and therefore a partition.
func NewMessage(topicPrefix string, event domain.OutboxEvent) kafka.Message {
	return kafka.Message{
		Topic: topicPrefix + event.Topic,
		Key:   []byte(event.Key),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(event.EventID)},
			{Key: HeaderEventTopic, Value: []byte(event.Topic)},
		},
	}
}

func (p *Producer) Publish(ctx context.Context, event domain.OutboxEvent) error {
	msg := NewMessage(p.topicPrefix, event)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.log.Debug("published",
		zap.String("topic", msg.Topic),
		zap.String("key", event.Key),
		zap.String("event_id", event.EventID))
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker and reads its partition list.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}

	p.log.Info("connected to Kafka", zap.Int("partitions", len(partitions)))
	return nil
}
