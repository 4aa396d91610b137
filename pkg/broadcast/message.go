package broadcast

import (
	"encoding/json"
	"fmt"
)

// MessageType tags the envelope exchanged over the websocket.
type MessageType string

// Client -> server
const (
	TypeAuth MessageType = "AUTH"
)

// Server -> client
const (
	TypeAuthSuccess     MessageType = "AUTH_SUCCESS"
	TypeAuthError       MessageType = "AUTH_ERROR"
	TypeNewAlert        MessageType = "NEW_ALERT"
	TypeStatsUpdate     MessageType = "STATS_UPDATE"
	TypeAlertUpdate     MessageType = "ALERT_UPDATE"
	TypeNewAttackSource MessageType = "NEW_ATTACK_SOURCE"
)

// Message is the JSON envelope used in both directions.
type Message struct {
	Type    MessageType `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Token   string      `json:"token,omitempty"`
	Message string      `json:"message,omitempty"`
}

// InboundMessage is a parsed client frame. Data is left undecoded.
type InboundMessage struct {
	Type  MessageType     `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Token string          `json:"token,omitempty"`
}

// ParseMessage parses a client frame. Frames without a type are rejected.
func ParseMessage(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}

// Encode serializes a message for the wire.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	return data, nil
}
