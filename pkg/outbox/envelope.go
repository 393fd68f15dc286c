package outbox

import (
	"encoding/json"
	"time"
)

// Recipient is who the notification is addressed to.
type Recipient struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// PayloadEnvelope is the stable payload structure stored in notification_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Recipient  Recipient       `json:"recipient"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload.
func DecodeEnvelope(payload json.RawMessage) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	err := json.Unmarshal(payload, &env)
	return env, err
}
