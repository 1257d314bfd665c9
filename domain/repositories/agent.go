package repositories

import (
	"context"

	"github.com/satriahrh/voicerelay/domain"
	"github.com/satriahrh/voicerelay/domain/entities"
)

// AgentSocket is a persistent connection to the agent service
type AgentSocket interface {
	// Run reads events until the socket closes or ctx is done; handle is
	// called sequentially for every decoded event
	Run(ctx context.Context, handle func(domain.AgentEvent)) error
	// Send queues a command for the agent
	Send(command interface{}) error
	Close() error
}

// AgentSocketDialer opens agent sockets
type AgentSocketDialer interface {
	Dial(ctx context.Context, agentID string) (AgentSocket, error)
}

// AgentStatusClient reports agent status to the agent service
type AgentStatusClient interface {
	UpdateStatus(ctx context.Context, agent entities.AgentCredentials, status entities.AgentStatus) error
}
