package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is one invoice lifecycle fact.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	MerchantID  string          `json:"merchantId,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Sink persists emitted events.
type Sink interface {
	Append(ctx context.Context, ev Event) error
}

// Notifier reacts to persisted events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Bus persists events and fans them out to notifiers. A Bus without a Sink
// still notifies.
type Bus struct {
	Sink      Sink
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit builds the event, appends it to the sink and notifies. Notifier errors
// are joined and returned alongside the event.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID, merchantID string, payload any) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		MerchantID:  merchantID,
		Payload:     encoded,
		OccurredAt:  now().UTC(),
	}
	if b.Sink != nil {
		if err := b.Sink.Append(ctx, ev); err != nil {
			return Event{}, fmt.Errorf("events: persist event: %w", err)
		}
	}
	var joined error
	for _, n := range b.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
		}
	}
	return ev, joined
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return validJSON(v)
	case []byte:
		return validJSON(v)
	case string:
		return validJSON([]byte(v))
	default:
		return json.Marshal(v)
	}
}

func validJSON(data []byte) (json.RawMessage, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append(json.RawMessage(nil), data...), nil
}
