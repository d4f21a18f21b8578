package consumer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Handler writes through q so its records commit together with the inbox row.
type Handler func(ctx context.Context, msg kafka.Message, q db.Querier) error

// Inbox dedupes deliveries by event id. Claim runs fn for unseen ids only and
// keeps the id only when fn succeeds.
type Inbox interface {
	Claim(ctx context.Context, eventID, eventType string, fn func(q db.Querier) error) (bool, error)
}

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader  Reader
	logger  *zap.Logger
	inbox   Inbox
	handler Handler
	retry   backoff.BackOff
	tries   uint
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *zap.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return NewWithReader(reader, logger, inbox, handler)
}

func NewWithReader(reader Reader, logger *zap.Logger, inbox Inbox, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler: handler,
		retry:   backoff.NewExponentialBackOff(),
		tries:   5,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.processWithRetry(ctx, msg)
	}
}

// processWithRetry retries a failed message in place. Once the tries run out
// the event is dropped unseen, so a replay of the topic still delivers it.
func (c *Consumer) processWithRetry(ctx context.Context, msg kafka.Message) {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.Process(ctx, msg)
	}, backoff.WithBackOff(c.retry), backoff.WithMaxTries(c.tries))
	if err != nil && ctx.Err() == nil {
		meta := kafkax.ExtractEventMeta(msg)
		c.logger.Error("event dropped after retries",
			zap.String("event_id", meta.EventID),
			zap.String("event_type", meta.EventType),
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
}

// Process claims the event in the inbox and runs the handler in the same
// transaction. Duplicates are skipped; a handler failure leaves the event
// unseen and is returned.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	log := c.logger.With(zap.String("event_id", meta.EventID), zap.String("event_type", meta.EventType))

	claimed, err := c.inbox.Claim(ctxSpan, meta.EventID, meta.EventType, func(q db.Querier) error {
		return c.handler(ctxSpan, msg, q)
	})
	if err != nil {
		log.Warn("event not processed", zap.Error(err))
		span.RecordError(err)
		return err
	}
	if !claimed {
		log.Info("duplicate event ignored")
	}
	return nil
}
