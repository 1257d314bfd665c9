package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain"
	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
	"github.com/satriahrh/voicerelay/internal/sequencer"
)

var (
	// ErrAgentUnreachable is returned when the agent socket cannot be dialed
	ErrAgentUnreachable = errors.New("agent socket unreachable")
	// ErrInstanceNotRunning is returned for commands on an instance with no live socket
	ErrInstanceNotRunning = errors.New("instance is not running")
)

const storeTimeout = 5 * time.Second

// RelayConfig holds relay tuning
type RelayConfig struct {
	Sequencer     sequencer.Config
	StatusTimeout time.Duration
}

// ConnectRequest asks for a new agent instance bound to an output
type ConnectRequest struct {
	AgentID     string
	AgentSecret string
	OutputID    string
}

// InstanceView is an instance with its live playback state
type InstanceView struct {
	*entities.Instance
	Running  bool                `json:"running"`
	Playback *sequencer.Snapshot `json:"playback,omitempty"`
}

// RelayService connects agents to audio outputs. Each instance owns an agent
// socket, a sequencer and an idle reporter, and is torn down when the socket
// closes.
type RelayService struct {
	instances repositories.InstanceRepository
	dialer    repositories.AgentSocketDialer
	outputs   repositories.AudioOutputs
	status    repositories.AgentStatusClient
	cfg       RelayConfig
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	runtimes map[string]*instanceRuntime
}

// NewRelayService creates a relay service
func NewRelayService(
	instances repositories.InstanceRepository,
	dialer repositories.AgentSocketDialer,
	outputs repositories.AudioOutputs,
	status repositories.AgentStatusClient,
	cfg RelayConfig,
	logger *zap.Logger,
) *RelayService {
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RelayService{
		instances: instances,
		dialer:    dialer,
		outputs:   outputs,
		status:    status,
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		runtimes:  make(map[string]*instanceRuntime),
	}
}

// Connect registers an instance, dials the agent socket and starts relaying.
// The instance lives until its socket closes or Disconnect is called.
func (s *RelayService) Connect(ctx context.Context, req ConnectRequest) (*entities.Instance, error) {
	if s.ctx.Err() != nil {
		return nil, errors.New("relay service is shutting down")
	}

	instance := entities.NewInstance(req.AgentID, req.AgentSecret, req.OutputID)
	if req.AgentSecret == "" {
		return nil, errors.New("agent_secret is required")
	}
	if err := instance.Validate(); err != nil {
		return nil, err
	}

	if err := s.instances.Create(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to register instance: %w", err)
	}

	logger := s.logger.With(
		zap.String("instanceID", instance.ID),
		zap.String("agentID", req.AgentID),
		zap.String("outputID", req.OutputID))
	logger.Info("Connecting instance")

	socket, err := s.dialer.Dial(ctx, req.AgentID)
	if err != nil {
		logger.Error("Failed to connect agent socket", zap.Error(err))
		s.markClosed(instance.ID, logger)
		return nil, fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}

	rt := s.newRuntime(instance, socket, logger)

	s.mu.Lock()
	s.runtimes[instance.ID] = rt
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(rt)

	result := *instance
	return &result, nil
}

// Disconnect closes the agent socket of an instance and waits for teardown
func (s *RelayService) Disconnect(ctx context.Context, id string) (*entities.Instance, error) {
	rt := s.runtime(id)
	if rt == nil {
		instance, err := s.instances.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if instance.IsLive() {
			if err := s.instances.UpdateStatus(ctx, id, entities.InstanceStatusClosed); err != nil {
				return nil, err
			}
		}
		return s.instances.GetByID(ctx, id)
	}

	rt.logger.Info("Disconnecting instance")
	rt.cancel()

	select {
	case <-rt.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return s.instances.GetByID(ctx, id)
}

// Interrupt forces an interrupt on a running instance
func (s *RelayService) Interrupt(ctx context.Context, id string) error {
	rt := s.runtime(id)
	if rt == nil {
		if _, err := s.instances.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInstanceNotRunning
	}

	rt.logger.Info("Operator interrupt")
	rt.sequencer.Interrupt()
	return nil
}

// Get returns an instance with its playback snapshot when running
func (s *RelayService) Get(ctx context.Context, id string) (*InstanceView, error) {
	instance, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &InstanceView{Instance: instance}

	if rt := s.runtime(id); rt != nil {
		snap, err := rt.sequencer.Snapshot(ctx)
		if err == nil {
			view.Running = true
			view.Playback = &snap
		}
	}

	return view, nil
}

// List returns every stored instance
func (s *RelayService) List(ctx context.Context) ([]*InstanceView, error) {
	instances, err := s.instances.List(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]*InstanceView, 0, len(instances))
	for _, instance := range instances {
		views = append(views, &InstanceView{
			Instance: instance,
			Running:  s.runtime(instance.ID) != nil,
		})
	}
	return views, nil
}

// CloseOrphans marks live instances without a running socket as closed.
// Stored instances of a previous process would otherwise keep their outputs busy.
func (s *RelayService) CloseOrphans(ctx context.Context) (int, error) {
	instances, err := s.instances.List(ctx)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, instance := range instances {
		if !instance.IsLive() || s.runtime(instance.ID) != nil {
			continue
		}
		if err := s.instances.UpdateStatus(ctx, instance.ID, entities.InstanceStatusClosed); err != nil {
			return closed, err
		}
		closed++
	}

	if closed > 0 {
		s.logger.Info("Closed orphaned instances", zap.Int("count", closed))
	}
	return closed, nil
}

// Shutdown closes every instance and waits for teardown or ctx
func (s *RelayService) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Relay service stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay shutdown: %w", ctx.Err())
	}
}

func (s *RelayService) runtime(id string) *instanceRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runtimes[id]
}

func (s *RelayService) markClosed(id string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.instances.UpdateStatus(ctx, id, entities.InstanceStatusClosed); err != nil {
		logger.Error("Failed to mark instance closed", zap.Error(err))
	}
}

// instanceRuntime is the live half of an instance
type instanceRuntime struct {
	instance  entities.Instance
	instances repositories.InstanceRepository
	socket    repositories.AgentSocket
	sequencer *sequencer.Sequencer
	reporter  *IdleReporter
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *RelayService) newRuntime(instance *entities.Instance, socket repositories.AgentSocket, logger *zap.Logger) *instanceRuntime {
	reporter := NewIdleReporter(instance.Agent, s.status, s.cfg.StatusTimeout, logger)
	seq := sequencer.New(s.cfg.Sequencer, s.outputs.Device(instance.OutputID), reporter, logger)

	ctx, cancel := context.WithCancel(s.ctx)
	return &instanceRuntime{
		instance:  *instance,
		instances: s.instances,
		socket:    socket,
		sequencer: seq,
		reporter:  reporter,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (s *RelayService) run(rt *instanceRuntime) {
	defer s.wg.Done()
	defer close(rt.done)

	unsubscribe := s.outputs.Subscribe(rt.instance.OutputID, rt.sequencer.HandlePlayerEvent)

	go rt.reporter.Run(rt.ctx)
	go rt.sequencer.Run(rt.ctx)

	if err := rt.socket.Run(rt.ctx, rt.handleEvent); err != nil {
		rt.logger.Warn("Agent socket failed", zap.Error(err))
	} else {
		rt.logger.Info("Agent socket closed")
	}

	rt.cancel()
	<-rt.sequencer.Done()
	unsubscribe()
	rt.socket.Close()

	s.markClosed(rt.instance.ID, rt.logger)

	s.mu.Lock()
	delete(s.runtimes, rt.instance.ID)
	s.mu.Unlock()

	rt.logger.Info("Instance closed")
}

// handleEvent is called sequentially by the socket read loop
func (rt *instanceRuntime) handleEvent(event domain.AgentEvent) {
	switch event.Type {
	case domain.AgentEventRequestAuthentication:
		rt.logger.Info("Authenticating")
		err := rt.socket.Send(domain.AuthenticationResponse{
			Type:       domain.AgentCommandAuthenticationResponse,
			AuthSecret: rt.instance.Agent.Secret,
		})
		if err != nil {
			rt.logger.Error("Failed to send authentication response", zap.Error(err))
		}

	case domain.AgentEventAuthenticationSuccess:
		rt.logger.Info("Authentication successful")
		rt.setStatus(entities.InstanceStatusAuthenticated)

	case domain.AgentEventInterrupt:
		rt.logger.Info("Received interrupt")
		rt.sequencer.Interrupt()

	case domain.AgentEventSay:
		rt.logger.Debug("Received chunk",
			zap.String("messageID", event.MessageID),
			zap.Int("sequence", event.Sequence),
			zap.Bool("final", event.Final))
		rt.sequencer.Submit(event.Chunk())

	case domain.AgentEventInput, domain.AgentEventSayFiller:
		rt.logger.Debug("Ignoring agent event", zap.String("type", string(event.Type)))

	default:
		rt.logger.Warn("Received unhandled event", zap.String("type", string(event.Type)))
	}
}

func (rt *instanceRuntime) setStatus(status entities.InstanceStatus) {
	ctx, cancel := context.WithTimeout(rt.ctx, storeTimeout)
	defer cancel()

	if err := rt.instances.UpdateStatus(ctx, rt.instance.ID, status); err != nil {
		rt.logger.Error("Failed to update instance status",
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
