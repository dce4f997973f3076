package events

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStream appends events to a capped Redis stream so downstream consumers
// (webhooks, chat notifications) can read them with XREAD.
type RedisStream struct {
	Client *redis.Client
	Stream string
	MaxLen int64
}

func (s RedisStream) Append(ctx context.Context, ev Event) error {
	stream := s.Stream
	if stream == "" {
		stream = "tagihan:events"
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"topic": ev.Topic, "aggregate_id": ev.AggregateID, "event": data},
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	return s.Client.XAdd(ctx, args).Err()
}

// LogNotifier writes one structured line per event.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info().
		Str("event_id", ev.ID).
		Str("topic", ev.Topic).
		Str("invoice_id", ev.AggregateID).
		Str("merchant_id", ev.MerchantID).
		Time("occurred_at", ev.OccurredAt).
		Msg("invoice_event")
	return nil
}

// Recorder keeps events in memory, mostly for tests.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) error {
	r.Events = append(r.Events, ev)
	return nil
}

func (r *Recorder) Append(ctx context.Context, ev Event) error { return r.Notify(ctx, ev) }

