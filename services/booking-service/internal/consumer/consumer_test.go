package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/agendave/micita/services/booking-service/internal/outbox"
	"github.com/segmentio/kafka-go"
)

type recordingInvalidator struct {
	providers []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, providerID string) error {
	r.providers = append(r.providers, providerID)
	return nil
}

type scriptedReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
	closed bool
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

func TestInvalidateOnProviderUpdate(t *testing.T) {
	inv := &recordingInvalidator{}
	h := InvalidateOnProviderUpdate(inv)

	msg := kafka.Message{Topic: outbox.TypeAvailabilityUpdated, Value: []byte(`{"provider_id":"p1","updated_at":"2026-03-02T10:00:00Z"}`)}
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	catalog := kafka.Message{Topic: outbox.TypeCatalogUpdated, Value: []byte(`{"provider_id":"p2","service_id":"s1","updated_at":"2026-03-02T10:00:00Z"}`)}
	if err := h(context.Background(), catalog); err != nil {
		t.Fatalf("handle catalog: %v", err)
	}
	if len(inv.providers) != 2 || inv.providers[0] != "p1" || inv.providers[1] != "p2" {
		t.Fatalf("unexpected invalidations %v", inv.providers)
	}

	if err := h(context.Background(), kafka.Message{Value: []byte(`{}`)}); err == nil {
		t.Fatal("expected error for missing provider_id")
	}
	if err := h(context.Background(), kafka.Message{Value: []byte(`nope`)}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRunDeliversUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &scriptedReader{cancel: cancel, msgs: []kafka.Message{
		{Topic: "t", Value: []byte("1")},
		{Topic: "t", Value: []byte("2")},
	}}
	var seen []string
	c := &Consumer{
		reader: reader,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		handler: func(_ context.Context, msg kafka.Message) error {
			seen = append(seen, string(msg.Value))
			if string(msg.Value) == "1" {
				return errors.New("handler failure does not stop the loop")
			}
			return nil
		},
	}
	c.Run(ctx)

	if len(seen) != 2 {
		t.Fatalf("expected 2 deliveries, got %v", seen)
	}
	if !reader.closed {
		t.Fatal("expected reader to be closed")
	}
}

func TestProviderTopicsCoverCatalogChanges(t *testing.T) {
	seen := map[string]bool{}
	for _, topic := range ProviderTopics {
		seen[topic] = true
	}
	if !seen[outbox.TypeAvailabilityUpdated] || !seen[outbox.TypeCatalogUpdated] {
		t.Fatalf("unexpected topics %v", ProviderTopics)
	}
}
