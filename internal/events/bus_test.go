package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tagihan-wa/internal/events"
)

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, events.Event) error { return errors.New("chat gateway down") }

func TestEmitPersistsAndNotifies(t *testing.T) {
	sink := &events.Recorder{}
	notifier := &events.Recorder{}
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	bus := events.Bus{Sink: sink, Notifiers: []events.Notifier{notifier}, Now: func() time.Time { return at }}

	ev, err := bus.Emit(context.Background(), events.TopicPaymentApplied, "inv-1", "toko-sari", map[string]any{"amount": 89250})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, at, ev.OccurredAt)
	require.JSONEq(t, `{"amount":89250}`, string(ev.Payload))
	require.Len(t, sink.Events, 1)
	require.Len(t, notifier.Events, 1)
	require.Equal(t, ev.ID, notifier.Events[0].ID)
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), " ", "inv-1", "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicInvoicePaid, "", "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicInvoicePaid, "inv-1", "", "{not json")
	require.Error(t, err)

	ev, err := bus.Emit(context.Background(), events.TopicInvoicePaid, "inv-1", "", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(ev.Payload))
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	rec := &events.Recorder{}
	bus := events.Bus{Notifiers: []events.Notifier{failingNotifier{}, rec}}

	ev, err := bus.Emit(context.Background(), events.TopicInvoiceSubmitted, "inv-1", "", nil)
	require.ErrorContains(t, err, "chat gateway down")
	require.NotEmpty(t, ev.ID)
	require.Len(t, rec.Events, 1)
}

func TestRedisStreamAppend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := events.Bus{Sink: events.RedisStream{Client: client, Stream: "test:events", MaxLen: 100}}
	ev, err := bus.Emit(context.Background(), events.TopicScheduleCreated, "inv-9", "toko-sari", nil)
	require.NoError(t, err)

	entries, err := client.XRange(context.Background(), "test:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, events.TopicScheduleCreated, entries[0].Values["topic"])

	var stored events.Event
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["event"].(string)), &stored))
	require.Equal(t, ev.ID, stored.ID)
	require.Equal(t, "toko-sari", stored.MerchantID)
}
