// Package queue carries account lifecycle events over RabbitMQ so every
// running server can evict identities it has cached.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names an account state change.
type EventType string

const (
	AccountActivated   EventType = "account.activated"
	AccountDeactivated EventType = "account.deactivated"
	AccountDeleted     EventType = "account.deleted"
	AccountPurged      EventType = "account.purged"
)

// AccountEvent is published after an account changes state. Consumers need
// only the username to evict a cached identity.
type AccountEvent struct {
	Type       EventType `json:"type"`
	AccountID  string    `json:"account_id"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DecodeEvent parses and checks a message body.
func DecodeEvent(body []byte) (AccountEvent, error) {
	var ev AccountEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return AccountEvent{}, fmt.Errorf("unmarshal: %w", err)
	}
	switch ev.Type {
	case AccountActivated, AccountDeactivated, AccountDeleted, AccountPurged:
	default:
		return AccountEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.Username == "" {
		return AccountEvent{}, fmt.Errorf("event %s without username", ev.Type)
	}
	return ev, nil
}
