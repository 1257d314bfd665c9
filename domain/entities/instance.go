package entities

import (
	"errors"
	"time"
)

// InstanceStatus represents the lifecycle status of an agent instance
type InstanceStatus string

const (
	InstanceStatusConnecting    InstanceStatus = "connecting"
	InstanceStatusAuthenticated InstanceStatus = "authenticated"
	InstanceStatusClosed        InstanceStatus = "closed"
)

// AgentStatus is the status reported to the agent service
type AgentStatus string

const (
	AgentStatusIdle AgentStatus = "IDLE"
)

// AgentCredentials identify an agent against the agent service
type AgentCredentials struct {
	AgentID string `json:"agent_id" bson:"agent_id"`
	Secret  string `json:"-" bson:"-"`
}

// APIKey returns the value sent in the x-api-key header
func (c AgentCredentials) APIKey() string {
	return c.AgentID + ":" + c.Secret
}

// Instance is one live connection between an agent and an audio output
type Instance struct {
	ID        string           `json:"id" bson:"_id"`
	Agent     AgentCredentials `json:"agent" bson:"agent"`
	OutputID  string           `json:"output_id" bson:"output_id"`
	Status    InstanceStatus   `json:"status" bson:"status"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" bson:"updated_at"`
	ClosedAt  *time.Time       `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

// NewInstance creates a new instance in the connecting state
func NewInstance(agentID, agentSecret, outputID string) *Instance {
	now := time.Now()
	return &Instance{
		Agent: AgentCredentials{
			AgentID: agentID,
			Secret:  agentSecret,
		},
		OutputID:  outputID,
		Status:    InstanceStatusConnecting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus moves the instance to a new status
func (i *Instance) SetStatus(status InstanceStatus) {
	now := time.Now()
	i.Status = status
	i.UpdatedAt = now
	if status == InstanceStatusClosed && i.ClosedAt == nil {
		i.ClosedAt = &now
	}
}

// IsLive reports whether the instance still owns its output
func (i *Instance) IsLive() bool {
	return i.Status != InstanceStatusClosed
}

// Validate validates the instance data
func (i *Instance) Validate() error {
	if i.Agent.AgentID == "" {
		return errors.New("agent_id is required")
	}
	if i.OutputID == "" {
		return errors.New("output_id is required")
	}

	switch i.Status {
	case InstanceStatusConnecting, InstanceStatusAuthenticated, InstanceStatusClosed:
	default:
		return errors.New("invalid instance status")
	}

	return nil
}
