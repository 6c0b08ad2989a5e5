// Package message defines the holder status protocol.
//
// All messages are newline-delimited JSON, one message per line:
// <json>\n
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of message.
type Type string

const (
	TypeStatus         Type = "STATUS"
	TypeStatusResponse Type = "STATUS_RESPONSE"
	TypeError          Type = "ERROR"
)

// HolderInfo describes one running holder process.
type HolderInfo struct {
	PID       int       `json:"pid"`
	Selection string    `json:"selection"`
	Display   string    `json:"display,omitempty"`
	Size      int       `json:"size"`
	StartedAt time.Time `json:"started_at"`
	// ExpiresAt is nil for holders without a timeout.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Cleared   bool       `json:"cleared"`
	InFlight  int        `json:"in_flight"`
	Served    int64      `json:"served"`
}

// Message is the top-level wire envelope.
type Message struct {
	Type Type `json:"type"`

	// STATUS_RESPONSE
	Holder *HolderInfo `json:"holder,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
}

// Status returns a STATUS request.
func Status() *Message { return &Message{Type: TypeStatus} }

// StatusResponse wraps info in a STATUS_RESPONSE.
func StatusResponse(info HolderInfo) *Message {
	return &Message{Type: TypeStatusResponse, Holder: &info}
}

// Errorf returns an ERROR message.
func Errorf(format string, args ...any) *Message {
	return &Message{Type: TypeError, Error: fmt.Sprintf(format, args...)}
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message decode: missing type")
	}
	return &m, nil
}
