package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Message is what a caller hands to Enqueue; Payload is marshalled to JSON.
type Message struct {
	AggregateType string
	AggregateID   int64
	RoutingKey    string
	Payload       any
}

// Enqueue records msg as a pending event inside tx, so the event exists
// exactly when the surrounding write commits.
func Enqueue(ctx context.Context, tx pgx.Tx, repo *Repository, msg Message) (*Event, error) {
	payloadJSON, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.RoutingKey, err)
	}

	event := &Event{
		AggregateType: msg.AggregateType,
		RoutingKey:    msg.RoutingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	}
	if msg.AggregateID > 0 {
		id := msg.AggregateID
		event.AggregateID = &id
	}
	if err := repo.InsertEvent(ctx, tx, event); err != nil {
		return nil, err
	}
	return event, nil
}
