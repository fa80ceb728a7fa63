// Package kafka wraps segmentio/kafka-go behind the small Publisher and
// consumer surfaces the rest of the application depends on. Producers key
// every message by task ID so all events for one task land on the same
// partition and are consumed in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/avelinsk/taskmill/internal/events"
	"github.com/avelinsk/taskmill/internal/platform/logger"
)

// Producer publishes events to Kafka. It satisfies events.Publisher.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

var _ events.Publisher = (*Producer)(nil)

// NewProducer creates a Producer connected to the given brokers. The writer
// is topic-agnostic: each message carries its own topic so one producer
// serves every stream the application writes to.
func NewProducer(brokers []string, log *slog.Logger) *Producer {
	if len(brokers) == 0 {
		panic("kafka.NewProducer: brokers cannot be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
		logger: log.With(slog.String("component", "kafka_producer")),
	}
}

// Publish marshals the event and writes it to the given topic, keyed by the
// event's task ID.
func (p *Producer) Publish(ctx context.Context, topic string, event *events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event for task %s: %w", event.Type, event.TaskID, err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   event.Key(),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing to topic %s: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("task_id", event.TaskID.String()),
		slog.String("event_type", string(event.Type)))
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads events from a topic as part of a consumer group and hands
// each one to a handler. Offsets are committed only after the handler
// returns nil, so a crash mid-handle replays the message to another group
// member.
type Consumer struct {
	reader  *kafka.Reader
	handler events.Handler
	logger  *slog.Logger
}

// NewConsumer creates a Consumer for one topic and group. Distinct groups
// over the same topic each receive every message; members within a group
// split partitions between them.
func NewConsumer(brokers []string, topic, groupID string, handler events.Handler, log *slog.Logger) *Consumer {
	if handler == nil {
		panic("kafka.NewConsumer: handler cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		}),
		handler: handler,
		logger: log.With(
			slog.String("component", "kafka_consumer"),
			slog.String("topic", topic),
			slog.String("group", groupID)),
	}
}

// Run fetches and processes messages until the context is cancelled. It
// returns nil on clean shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, c.logger)
	log.InfoContext(ctx, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				log.InfoContext(ctx, "consumer stopping")
				return nil
			}
			return fmt.Errorf("fetching message: %w", err)
		}

		var event events.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// A malformed message can never succeed; commit past it so
			// it does not wedge the partition.
			log.ErrorContext(ctx, "skipping malformed message",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()))
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return fmt.Errorf("committing malformed message: %w", err)
			}
			continue
		}

		if err := c.handler.HandleEvent(ctx, &event); err != nil {
			// Leave the offset uncommitted and stop. Committing a later
			// message would advance the group past this one, so the
			// supervisor restarts the consumer and the message is
			// redelivered.
			log.ErrorContext(ctx, "handler failed, offset not committed",
				slog.String("task_id", event.TaskID.String()),
				slog.String("event_type", string(event.Type)),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()))
			return fmt.Errorf("handling %s event for task %s: %w", event.Type, event.TaskID, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("committing offset %d: %w", msg.Offset, err)
		}
	}
}

// Close releases the underlying reader and its group membership.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
