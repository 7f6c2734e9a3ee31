package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType discriminates the JSON frames exchanged over a connection.
type FrameType string

const (
	// Client -> server.
	TypeSetName FrameType = "setName"
	TypeJoin    FrameType = "join"
	TypeSend    FrameType = "send"

	// Server -> client.
	TypeNameSet FrameType = "nameSet"
	TypeHistory FrameType = "history"
	TypeMessage FrameType = "message"
	TypeSent    FrameType = "sent"
)

// ErrMalformedFrame is returned when an inbound payload is not a JSON object.
var ErrMalformedFrame = errors.New("malformed frame")

// Inbound is a frame sent by a client.
type Inbound struct {
	Type    FrameType `json:"type" jsonschema:"enum=setName,enum=join,enum=send"`
	Name    string    `json:"name,omitempty"`
	RoomID  string    `json:"roomId,omitempty"`
	Content string    `json:"content,omitempty"`

	// Optimistic envelope fields a client may echo back with a send. The
	// server never decodes them.
	ID   string `json:"id,omitempty"`
	TS   int64  `json:"ts,omitempty"`
	From string `json:"from,omitempty"`
}

// Outbound is a frame sent by the server.
type Outbound struct {
	Type     FrameType  `json:"type" jsonschema:"enum=nameSet,enum=history,enum=message,enum=sent"`
	Name     string     `json:"name,omitempty"`
	RoomID   string     `json:"roomId,omitempty"`
	Messages []Envelope `json:"messages,omitempty"`
	Payload  *Envelope  `json:"payload,omitempty"`
	Message  *Envelope  `json:"message,omitempty"`
}

// MarshalJSON always emits the messages array of a history frame, even when
// the room is empty.
func (f Outbound) MarshalJSON() ([]byte, error) {
	type plain Outbound
	if f.Type != TypeHistory {
		return json.Marshal(plain(f))
	}
	msgs := f.Messages
	if msgs == nil {
		msgs = []Envelope{}
	}
	return json.Marshal(struct {
		Type     FrameType  `json:"type"`
		RoomID   string     `json:"roomId"`
		Messages []Envelope `json:"messages"`
	}{f.Type, f.RoomID, msgs})
}

// Envelope returns the envelope carried by a message or sent frame. Broadcast
// frames normally use payload; message is accepted as a fallback.
func (f Outbound) Envelope() (Envelope, bool) {
	switch {
	case f.Payload != nil:
		return *f.Payload, true
	case f.Message != nil:
		return *f.Message, true
	}
	return Envelope{}, false
}

// inboundWire is the part of a client frame the server reads. The optimistic
// id, ts and from a client may echo are left undecoded so that their types
// cannot reject an otherwise valid frame.
type inboundWire struct {
	Type    FrameType `json:"type"`
	Name    string    `json:"name"`
	RoomID  string    `json:"roomId"`
	Content string    `json:"content"`
}

// DecodeInbound parses a client frame. Unknown frame types decode without
// error; callers decide what to do with them. The returned frame never
// carries the optimistic envelope fields.
func DecodeInbound(data []byte) (Inbound, error) {
	var in inboundWire
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return Inbound{Type: in.Type, Name: in.Name, RoomID: in.RoomID, Content: in.Content}, nil
}

// DecodeOutbound parses a server frame.
func DecodeOutbound(data []byte) (Outbound, error) {
	var out Outbound
	if err := json.Unmarshal(data, &out); err != nil {
		return Outbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return out, nil
}

func NameSet(name string) Outbound {
	return Outbound{Type: TypeNameSet, Name: name}
}

func History(roomID string, messages []Envelope) Outbound {
	return Outbound{Type: TypeHistory, RoomID: roomID, Messages: messages}
}

// Broadcast wraps an envelope for fan-out to room members.
func Broadcast(env Envelope) Outbound {
	return Outbound{Type: TypeMessage, Payload: &env}
}

// Sent acknowledges a send directly to its originator.
func Sent(env Envelope) Outbound {
	return Outbound{Type: TypeSent, Message: &env}
}

func SetNameRequest(name string) Inbound {
	return Inbound{Type: TypeSetName, Name: name}
}

func JoinRequest(roomID string) Inbound {
	return Inbound{Type: TypeJoin, RoomID: roomID}
}

// SendRequest carries a locally built envelope to the server.
func SendRequest(env Envelope) Inbound {
	return Inbound{
		Type:    TypeSend,
		RoomID:  env.RoomID,
		Content: env.Content,
		ID:      env.ID,
		TS:      env.TS,
		From:    env.From,
	}
}
