package chat

import (
	"time"

	"github.com/google/uuid"
)

const (
	// HistoryLimit is the number of envelopes replayed on join.
	HistoryLimit = 50
	// RetentionLimit bounds the persisted list of each room.
	RetentionLimit = 1000
	// DedupWindow is the maximum timestamp distance between an optimistic
	// local envelope and the broadcast copy that confirms it.
	DedupWindow = 1000 * time.Millisecond
)

// Envelope is a single chat message. Once persisted it is never mutated.
type Envelope struct {
	ID      string `json:"id" jsonschema:"description=Unique message identifier"`
	RoomID  string `json:"roomId" jsonschema:"description=Room the message belongs to"`
	From    string `json:"from" jsonschema:"description=Display name of the sender"`
	Content string `json:"content" jsonschema:"minLength=1"`
	// TS is milliseconds since the Unix epoch. It is not monotonic per room.
	TS int64 `json:"ts" jsonschema:"description=Milliseconds since the Unix epoch"`
}

// NewEnvelope stamps a fresh identifier and the given time onto a message.
func NewEnvelope(roomID, from, content string, at time.Time) Envelope {
	return Envelope{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		From:    from,
		Content: content,
		TS:      at.UnixMilli(),
	}
}

// Time returns the envelope timestamp as a time.Time.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.TS)
}
