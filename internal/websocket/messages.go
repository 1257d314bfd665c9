package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/voicerelay/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypePlay         MessageType = "play"
	MessageTypeStop         MessageType = "stop"
	MessageTypePlayerStatus MessageType = "player_status"
	MessageTypePing         MessageType = "ping"
	MessageTypePong         MessageType = "pong"
	MessageTypeError        MessageType = "error"
)

// Error codes sent to outputs
const (
	ErrorCodeInvalidMessage = "invalid_message"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// PlayMessage asks the output to render one audio resource
type PlayMessage struct {
	BaseMessage
	ResourceID string `json:"resource_id"`
	MessageID  string `json:"message_id"`
	Sequence   int    `json:"sequence"`
	Src        string `json:"src"`
}

// StopMessage asks the output to drop the current resource
type StopMessage struct {
	BaseMessage
	Force bool `json:"force"`
}

// PlayerStatusMessage reports a player lifecycle change
type PlayerStatusMessage struct {
	BaseMessage
	Status     entities.PlayerStatus `json:"status"`
	ResourceID string                `json:"resource_id,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage decodes and validates a frame sent by an output
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypePlayerStatus:
		var msg PlayerStatusMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid player status message: %w", err)
		}
		if err := v.validatePlayerStatus(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("message type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validatePlayerStatus validates player status message fields
func (v *MessageValidator) validatePlayerStatus(msg *PlayerStatusMessage) error {
	switch msg.Status {
	case entities.PlayerStatusPlaying, entities.PlayerStatusIdle, entities.PlayerStatusAutoPaused:
		return nil
	case "":
		return fmt.Errorf("status is required")
	default:
		return fmt.Errorf("status must be one of: playing, idle, autopaused")
	}
}

// CreatePlayMessage creates a play command for resource
func CreatePlayMessage(resource entities.AudioResource) *PlayMessage {
	return &PlayMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePlay,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		ResourceID: resource.ID,
		MessageID:  resource.MessageID,
		Sequence:   resource.Sequence,
		Src:        resource.Src,
	}
}

// CreateStopMessage creates a forced stop command
func CreateStopMessage() *StopMessage {
	return &StopMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStop,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Force: true,
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeError,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePong,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Data: data,
	}
}
