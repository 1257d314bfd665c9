package websocket

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/satriahrh/voicerelay/domain/entities"
)

func TestMessageValidator_ValidatePlayerStatus(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name: "valid idle",
			message: `{
				"type": "player_status",
				"status": "idle",
				"resource_id": "res-1"
			}`,
			wantErr: false,
		},
		{
			name: "valid autopaused without resource",
			message: `{
				"type": "player_status",
				"status": "autopaused"
			}`,
			wantErr: false,
		},
		{
			name: "missing status",
			message: `{
				"type": "player_status",
				"resource_id": "res-1"
			}`,
			wantErr: true,
		},
		{
			name: "invalid status",
			message: `{
				"type": "player_status",
				"status": "buffering"
			}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidator_PlayerStatusFields(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{"type":"player_status","status":"playing","resource_id":"res-9"}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}

	msg, ok := result.(*PlayerStatusMessage)
	if !ok {
		t.Fatalf("Expected *PlayerStatusMessage, got %T", result)
	}
	if msg.Status != entities.PlayerStatusPlaying {
		t.Errorf("Expected status playing, got %s", msg.Status)
	}
	if msg.ResourceID != "res-9" {
		t.Errorf("Expected resource res-9, got %s", msg.ResourceID)
	}
}

func TestMessageValidator_ValidatePing(t *testing.T) {
	validator := NewMessageValidator()

	message := `{
		"type": "ping",
		"data": "test-ping"
	}`

	result, err := validator.ValidateMessage([]byte(message))
	if err != nil {
		t.Errorf("ValidateMessage() error = %v", err)
	}

	pingMsg, ok := result.(*PingMessage)
	if !ok {
		t.Fatalf("Expected *PingMessage, got %T", result)
	}

	if pingMsg.Data != "test-ping" {
		t.Errorf("Expected data 'test-ping', got '%s'", pingMsg.Data)
	}
}

func TestCreatePlayMessage(t *testing.T) {
	resource := entities.AudioResource{ID: "res-1", MessageID: "m1", Sequence: 3, Src: "https://cdn/a.mp3"}
	data, err := json.Marshal(CreatePlayMessage(resource))
	if err != nil {
		t.Fatalf("Failed to marshal play message: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal play message: %v", err)
	}

	expected := map[string]interface{}{
		"type":        "play",
		"resource_id": "res-1",
		"message_id":  "m1",
		"sequence":    float64(3),
		"src":         "https://cdn/a.mp3",
	}
	for key, want := range expected {
		if result[key] != want {
			t.Errorf("Expected %s=%v, got %v", key, want, result[key])
		}
	}
	if _, exists := result["timestamp"]; !exists {
		t.Errorf("Message missing 'timestamp' field")
	}
}

func TestCreateStopMessage(t *testing.T) {
	stopMsg := CreateStopMessage()

	if stopMsg.Type != MessageTypeStop {
		t.Errorf("Expected type %s, got %s", MessageTypeStop, stopMsg.Type)
	}
	if !stopMsg.Force {
		t.Error("Stop should always be forced")
	}
}

func TestCreateErrorMessage(t *testing.T) {
	code := ErrorCodeInvalidMessage
	message := "Test error message"
	details := "Test error details"

	errorMsg := CreateErrorMessage(code, message, details)

	if errorMsg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, errorMsg.Type)
	}
	if errorMsg.Code != code {
		t.Errorf("Expected code %s, got %s", code, errorMsg.Code)
	}
	if errorMsg.Message != message {
		t.Errorf("Expected message %s, got %s", message, errorMsg.Message)
	}
	if errorMsg.Details != details {
		t.Errorf("Expected details %s, got %s", details, errorMsg.Details)
	}

	// Verify timestamp is recent
	timestamp, err := time.Parse(time.RFC3339, errorMsg.Timestamp)
	if err != nil {
		t.Errorf("Invalid timestamp format: %v", err)
	}
	if time.Since(timestamp) > 2*time.Second {
		t.Errorf("Timestamp is not recent: %s", errorMsg.Timestamp)
	}
}

func TestCreatePongMessage(t *testing.T) {
	data := "test-pong-data"
	pongMsg := CreatePongMessage(data)

	if pongMsg.Type != MessageTypePong {
		t.Errorf("Expected type %s, got %s", MessageTypePong, pongMsg.Type)
	}
	if pongMsg.Data != data {
		t.Errorf("Expected data %s, got %s", data, pongMsg.Data)
	}
}

func TestMessageValidator_InvalidJSON(t *testing.T) {
	validator := NewMessageValidator()

	invalidMessages := []string{
		`{invalid json}`,
		`{"type": "player_status", "status":}`,
		``,
		`null`,
		`{"type": }`,
	}

	for i, msg := range invalidMessages {
		t.Run(fmt.Sprintf("invalid_json_%d", i), func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(msg))
			if err == nil {
				t.Errorf("Expected error for invalid JSON, got nil")
			}
		})
	}
}

func TestMessageValidator_UnsupportedMessageType(t *testing.T) {
	validator := NewMessageValidator()

	for _, msgType := range []string{"unsupported_type", "play", "stop"} {
		message := fmt.Sprintf(`{"type": %q}`, msgType)
		if _, err := validator.ValidateMessage([]byte(message)); err == nil {
			t.Errorf("Expected error for %s sent by an output, got nil", msgType)
		}
	}
}
