package channel

import (
	"encoding/json"
	"time"
)

// Event is a single immutable state-change notification. ID is strictly
// increasing within a channel (hex form of pkg/id, so string comparison is
// chronological comparison). ProducedAtMs is taken from the ID's timestamp
// half, which keeps append order and timestamp order consistent.
type Event struct {
	ID           string          `json:"id"`
	Channel      string          `json:"channelKey"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ProducedAtMs int64           `json:"producedAtMs"`
	ProducerID   string          `json:"producerId,omitempty"`
}

// ProducedAt returns the production timestamp as a time.Time.
func (e Event) ProducedAt() time.Time { return time.UnixMilli(e.ProducedAtMs) }
