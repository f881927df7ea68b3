package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-router/internal/events"
)

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitFillsEnvelopeAndFansOut(t *testing.T) {
	notifier := &captureNotifier{}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bus := &events.Bus{
		Notifiers: []events.Notifier{notifier},
		Now:       func() time.Time { return fixed },
	}

	event, err := bus.Emit(context.Background(), events.TopicPaymentCreated, events.Event{
		Provider:  "stripe",
		PaymentID: "pi_1",
		Payload:   events.MarshalPayload(map[string]string{"status": "succeeded"}),
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, event.ID)
	require.Equal(t, events.TopicPaymentCreated, event.Topic)
	require.Equal(t, fixed, event.OccurredAt)
	require.Len(t, notifier.events, 1)
	require.JSONEq(t, `{"status":"succeeded"}`, string(notifier.events[0].Payload))
}

func TestEmitRejectsEmptyTopicAndBadPayload(t *testing.T) {
	bus := &events.Bus{}
	_, err := bus.Emit(context.Background(), "", events.Event{})
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicPaymentCreated, events.Event{
		Payload: json.RawMessage("{not json"),
	})
	require.Error(t, err)
}

func TestEmitEmptyPayloadDefaultsToObject(t *testing.T) {
	notifier := &captureNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{notifier}}

	_, err := bus.Emit(context.Background(), events.TopicPaymentVoided, events.Event{})
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(notifier.events[0].Payload))
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("sink unavailable")}
	ok := &captureNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{failing, ok}}

	_, err := bus.Emit(context.Background(), events.TopicRefundCreated, events.Event{})
	require.Error(t, err)
	// A failing notifier never blocks the others.
	require.Len(t, ok.events, 1)
}

func TestEmitPublishesToRedisChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(context.Background(), "payrouter.events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	bus := &events.Bus{Redis: client}
	emitted, err := bus.Emit(context.Background(), events.TopicPaymentSucceeded, events.Event{
		Provider:  "stripe",
		PaymentID: "pi_9",
	})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		var decoded events.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
		require.Equal(t, emitted.ID, decoded.ID)
		require.Equal(t, events.TopicPaymentSucceeded, decoded.Topic)
		require.Equal(t, "pi_9", decoded.PaymentID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received on channel")
	}
}

func TestDefaultTopicsCoverAllCategories(t *testing.T) {
	topics := events.DefaultTopics()
	require.Len(t, topics, 12)
	seen := map[string]bool{}
	for _, topic := range topics {
		require.False(t, seen[topic], topic)
		seen[topic] = true
	}
	require.True(t, seen[events.TopicPaymentCreated])
	require.True(t, seen[events.TopicRefundSucceeded])
	require.True(t, seen[events.TopicDisputeCreated])
}
