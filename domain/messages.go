package domain

import "github.com/satriahrh/voicerelay/domain/entities"

// AgentEventType is the type discriminator of agent socket frames
type AgentEventType string

// Inbound agent events
const (
	AgentEventRequestAuthentication AgentEventType = "REQUEST_AUTHENTICATION"
	AgentEventAuthenticationSuccess AgentEventType = "AUTHENTICATION_SUCCESS"
	AgentEventInterrupt             AgentEventType = "INTERRUPT"
	AgentEventSay                   AgentEventType = "SAY"
	AgentEventSayFiller             AgentEventType = "SAY_FILLER"
	AgentEventInput                 AgentEventType = "INPUT"
)

// Outbound agent commands
const (
	AgentCommandAuthenticationResponse AgentEventType = "AUTHENTICATION_RESPONSE"
	AgentCommandPing                   AgentEventType = "PING"
)

// AgentEvent is a decoded frame received from the agent socket.
// Chunk fields are only meaningful for SAY events.
type AgentEvent struct {
	Type      AgentEventType  `json:"type"`
	MessageID string          `json:"messageId,omitempty"`
	Sequence  int             `json:"sequence,omitempty"`
	Audio     *entities.Audio `json:"audio,omitempty"`
	Final     bool            `json:"final,omitempty"`
}

// Chunk returns the SAY payload as a chunk
func (e AgentEvent) Chunk() entities.Chunk {
	return entities.Chunk{
		MessageID: e.MessageID,
		Sequence:  e.Sequence,
		Audio:     e.Audio,
		Final:     e.Final,
	}
}

// AuthenticationResponse answers REQUEST_AUTHENTICATION
type AuthenticationResponse struct {
	Type       AgentEventType `json:"type"`
	AuthSecret string         `json:"authSecret"`
}

// PingCommand keeps the agent socket alive
type PingCommand struct {
	Type AgentEventType `json:"type"`
}
