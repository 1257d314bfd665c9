package agentsocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

const (
	// Time allowed to write a message to the agent.
	writeWait = 10 * time.Second

	// Maximum message size allowed from the agent.
	maxMessageSize = 1024 * 1024

	sendBufferSize = 64
)

// ErrSocketClosed is returned by Send after the socket was closed
var ErrSocketClosed = errors.New("agent socket closed")

// Dialer opens sockets at {baseURL}/agents/{agentId}/sockets
type Dialer struct {
	baseURL      string
	pingInterval time.Duration
	dialer       *websocket.Dialer
	logger       *zap.Logger
}

// NewDialer creates a dialer. pingInterval is the period of keepalive PING commands.
func NewDialer(baseURL string, pingInterval time.Duration, logger *zap.Logger) *Dialer {
	return &Dialer{
		baseURL:      baseURL,
		pingInterval: pingInterval,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  1024,
		},
		logger: logger,
	}
}

var _ repositories.AgentSocketDialer = (*Dialer)(nil)

// Dial connects to the agent socket of agentID
func (d *Dialer) Dial(ctx context.Context, agentID string) (repositories.AgentSocket, error) {
	endpoint := fmt.Sprintf("%s/agents/%s/sockets", d.baseURL, url.PathEscape(agentID))

	conn, resp, err := d.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial agent socket (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial agent socket: %w", err)
	}

	d.logger.Info("Agent socket connected", zap.String("agentID", agentID))

	return &Socket{
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
		pingInterval: d.pingInterval,
		logger:       d.logger.With(zap.String("agentID", agentID)),
	}, nil
}

// Socket is one connection to the agent service
type Socket struct {
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	pingInterval time.Duration
	logger       *zap.Logger
}

// Run pumps inbound frames to handle until the socket closes or ctx is
// done. A normal close returns nil.
func (s *Socket) Run(ctx context.Context, handle func(domain.AgentEvent)) error {
	go s.writePump()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("Agent socket closed by peer")
				return nil
			}
			return fmt.Errorf("agent socket read failed: %w", err)
		}

		var event domain.AgentEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.logger.Error("Failed to parse agent event", zap.Error(err))
			continue
		}
		if event.Type == "" {
			s.logger.Error("Agent event missing type field")
			continue
		}

		handle(event)
	}
}

// Send queues command for delivery as a JSON text frame
func (s *Socket) Send(command interface{}) error {
	payload, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("failed to encode agent command: %w", err)
	}

	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}

	select {
	case s.send <- payload:
		return nil
	case <-s.done:
		return ErrSocketClosed
	default:
		return fmt.Errorf("agent socket send buffer full")
	}
}

// Close sends a close frame and releases the connection. It is safe to call more than once.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}

// writePump serializes writes and sends keepalive PING commands
func (s *Socket) writePump() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	ping, _ := json.Marshal(domain.PingCommand{Type: domain.AgentCommandPing})

	for {
		select {
		case <-s.done:
			return

		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Error("Failed to write agent command", zap.Error(err))
				s.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				s.logger.Warn("Failed to ping agent socket", zap.Error(err))
				s.Close()
				return
			}
		}
	}
}
