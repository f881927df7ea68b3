package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Event is the envelope published for every domain event.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Topic      string          `json:"topic"`
	Provider   string          `json:"provider,omitempty"`
	PaymentID  string          `json:"paymentId,omitempty"`
	CustomerID string          `json:"customerId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Notifier reacts to emitted events (e.g. analytics recording, metrics).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus publishes domain events to Redis and fans them out to in-process handlers.
// The bus is safe for concurrent use; Redis PUBLISH and the notifier slice are
// both read-only after construction.
type Bus struct {
	Redis     *redis.Client
	Channel   string
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit builds the event envelope and dispatches it to all configured sinks.
func (b *Bus) Emit(ctx context.Context, topic string, event Event) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	event.Topic = topic
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = b.now()
	}
	normalized, err := encodePayload(event.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	event.Payload = normalized

	var joined error
	if b.Redis != nil {
		encoded, err := json.Marshal(event)
		if err != nil {
			return Event{}, fmt.Errorf("events: encode event: %w", err)
		}
		if pubErr := b.Redis.Publish(ctx, b.channel(), encoded).Err(); pubErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: publish: %w", pubErr))
		}
	}
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, event); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return event, joined
}

func (b *Bus) channel() string {
	if strings.TrimSpace(b.Channel) == "" {
		return "payrouter.events"
	}
	return b.Channel
}

func (b *Bus) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}

func encodePayload(payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(payload) {
		return nil, errors.New("payload is not valid json")
	}
	return append(json.RawMessage(nil), payload...), nil
}

// MarshalPayload encodes an arbitrary value for use as an event payload.
func MarshalPayload(v any) json.RawMessage {
	if v == nil {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
