// Package server defines the chat frame types, identifiers and utility
// helpers that are shared between the registry, sessions and handlers.
package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SessionID identifies one live chat connection inside the registry.
type SessionID = uuid.UUID

// RoomID is the integer label of a chat room.
type RoomID int32

// InboundFrame is the JSON object a chat client sends.
// Message is a pointer so a frame without the field can be rejected.
type InboundFrame struct {
	Message *string `json:"message"`
}

// OutboundFrame is the JSON object delivered to the sender (local echo)
// and to every other member of the room (relay).
type OutboundFrame struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// decodeInboundFrame parses a raw text frame into the chat message it carries.
func decodeInboundFrame(raw []byte) (string, error) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Message == nil {
		return "", fmt.Errorf("%w: missing message field", ErrMalformedFrame)
	}
	return *frame.Message, nil
}

// encodeOutboundFrame renders the broadcast payload for user's message.
func encodeOutboundFrame(user, message string) ([]byte, error) {
	return json.Marshal(OutboundFrame{User: user, Message: message})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
