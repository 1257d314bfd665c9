package entities

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewInstance(t *testing.T) {
	instance := NewInstance("agent-1", "s3cret", "output-1")

	if instance.Status != InstanceStatusConnecting {
		t.Errorf("Expected status %s, got %s", InstanceStatusConnecting, instance.Status)
	}
	if !instance.IsLive() {
		t.Error("New instance should be live")
	}
	if instance.Agent.APIKey() != "agent-1:s3cret" {
		t.Errorf("Unexpected API key %s", instance.Agent.APIKey())
	}
	if err := instance.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestInstance_SetStatus(t *testing.T) {
	instance := NewInstance("agent-1", "s3cret", "output-1")

	instance.SetStatus(InstanceStatusAuthenticated)
	if instance.ClosedAt != nil {
		t.Error("ClosedAt should stay unset until closed")
	}

	instance.SetStatus(InstanceStatusClosed)
	if instance.ClosedAt == nil {
		t.Fatal("ClosedAt should be set once closed")
	}
	if instance.IsLive() {
		t.Error("Closed instance should not be live")
	}

	closedAt := *instance.ClosedAt
	instance.SetStatus(InstanceStatusClosed)
	if !instance.ClosedAt.Equal(closedAt) {
		t.Error("Closing twice should keep the first close time")
	}
}

func TestInstance_Validate(t *testing.T) {
	tests := []struct {
		name     string
		instance *Instance
	}{
		{"missing agent", NewInstance("", "s", "output-1")},
		{"missing output", NewInstance("agent-1", "s", "")},
		{"bad status", &Instance{Agent: AgentCredentials{AgentID: "a"}, OutputID: "o", Status: "zombie"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.instance.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestInstance_SecretNotSerialized(t *testing.T) {
	data, err := json.Marshal(NewInstance("agent-1", "s3cret", "output-1"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "s3cret") {
		t.Errorf("Secret leaked into JSON: %s", data)
	}
}
