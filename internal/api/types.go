package api

import (
	"time"

	"github.com/satriahrh/voicerelay/usecase"
)

// ConnectInstanceRequest represents the request payload for connecting an agent to an output
type ConnectInstanceRequest struct {
	AgentID     string `json:"agent_id" validate:"required"`
	AgentSecret string `json:"agent_secret" validate:"required"`
	OutputID    string `json:"output_id" validate:"required"`
}

// InstanceListResponse wraps the instance list
type InstanceListResponse struct {
	Instances []*usecase.InstanceView `json:"instances"`
}

// OutputTokenResponse represents the response payload for output token issuance
type OutputTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	OutputID  string    `json:"output_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
