package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agendave/micita/libs/kafkax"
	"github.com/agendave/micita/services/booking-service/internal/outbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer runs handler over every message. Handlers must be idempotent:
// there is no inbox, so redeliveries reach the handler again.
type Consumer struct {
	reader  MessageReader
	logger  *slog.Logger
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: reader, logger: logger, handler: handler}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
	}
}

type Invalidator interface {
	Invalidate(ctx context.Context, providerID string) error
}

// ProviderTopics are the events that make cached provider data stale.
var ProviderTopics = []string{outbox.TypeAvailabilityUpdated, outbox.TypeCatalogUpdated}

// InvalidateOnProviderUpdate drops cached schedule and catalog entries for the
// provider named in an availability or catalog event.
func InvalidateOnProviderUpdate(inv Invalidator) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var p struct {
			ProviderID string `json:"provider_id"`
		}
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Topic, err)
		}
		if p.ProviderID == "" {
			return fmt.Errorf("%s without provider_id", msg.Topic)
		}
		return inv.Invalidate(ctx, p.ProviderID)
	}
}
