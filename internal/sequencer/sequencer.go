package sequencer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

const defaultQueueSize = 256

// State is the playback state of a sequencer
type State int

const (
	// StateIdle means no utterance is active
	StateIdle State = iota
	// StateBuffering means an utterance is active and the device is idle
	StateBuffering
	// StatePlaying means the device is rendering the chunk before the cursor
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Reporter is notified once every time an utterance completes.
// ReportIdle must not block.
type Reporter interface {
	ReportIdle()
}

// Config holds sequencer tuning
type Config struct {
	// StallTimeout bounds how long a resource may play without an idle
	// report. Zero waits forever.
	StallTimeout time.Duration
	// QueueSize is the capacity of the event queue
	QueueSize int
}

// Snapshot is a point-in-time view of a sequencer
type Snapshot struct {
	State           string `json:"state"`
	MessageID       string `json:"message_id,omitempty"`
	Cursor          int    `json:"cursor"`
	FinalSeen       bool   `json:"final_seen"`
	Buffered        int    `json:"buffered"`
	PlayingResource string `json:"playing_resource,omitempty"`
	Completions     int    `json:"completions"`
}

type utterance struct {
	messageID string
	cursor    int
	final     bool
}

type event interface{}

type chunkEvent struct{ chunk entities.Chunk }

type interruptEvent struct{}

type playerEvent struct{ event entities.PlayerEvent }

type stallEvent struct{ resourceID string }

type snapshotRequest struct{ reply chan Snapshot }

// Sequencer turns an out-of-order stream of chunks into ordered playback on
// a single device. All state is owned by the goroutine running Run; every
// input goes through one queue.
type Sequencer struct {
	device       repositories.PlaybackDevice
	reporter     Reporter
	logger       *zap.Logger
	stallTimeout time.Duration

	events chan event
	done   chan struct{}

	state       State
	active      *utterance
	completed   *utterance
	buffer      *Buffer
	playing     string
	stall       *time.Timer
	completions int
}

// New creates a sequencer driving device
func New(cfg Config, device repositories.PlaybackDevice, reporter Reporter, logger *zap.Logger) *Sequencer {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Sequencer{
		device:       device,
		reporter:     reporter,
		logger:       logger,
		stallTimeout: cfg.StallTimeout,
		events:       make(chan event, queueSize),
		done:         make(chan struct{}),
		buffer:       NewBuffer(),
	}
}

// Run processes events until ctx is done. It must be called once.
func (s *Sequencer) Run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// Done is closed once Run has returned
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}

// Submit queues a chunk received from the agent
func (s *Sequencer) Submit(chunk entities.Chunk) {
	if !s.enqueue(chunkEvent{chunk}) {
		s.logger.Debug("Dropping chunk for stopped sequencer",
			zap.String("messageID", chunk.MessageID),
			zap.Int("sequence", chunk.Sequence))
	}
}

// Interrupt queues an explicit interrupt
func (s *Sequencer) Interrupt() {
	s.enqueue(interruptEvent{})
}

// HandlePlayerEvent queues a lifecycle signal from the device
func (s *Sequencer) HandlePlayerEvent(ev entities.PlayerEvent) {
	s.enqueue(playerEvent{ev})
}

// Snapshot returns the state as seen after every previously queued event
func (s *Sequencer) Snapshot(ctx context.Context) (Snapshot, error) {
	req := snapshotRequest{reply: make(chan Snapshot, 1)}
	if !s.enqueue(req) {
		return Snapshot{}, errors.New("sequencer stopped")
	}

	select {
	case snap := <-req.reply:
		return snap, nil
	case <-s.done:
		return Snapshot{}, errors.New("sequencer stopped")
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *Sequencer) enqueue(ev event) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Sequencer) handle(ev event) {
	switch ev := ev.(type) {
	case chunkEvent:
		s.handleChunk(ev.chunk)
	case interruptEvent:
		s.interrupt("interrupt requested")
	case playerEvent:
		s.handlePlayerEvent(ev.event)
	case stallEvent:
		s.handleStall(ev.resourceID)
	case snapshotRequest:
		ev.reply <- s.snapshot()
	}
}

func (s *Sequencer) handleChunk(chunk entities.Chunk) {
	if s.active != nil && s.active.messageID != chunk.MessageID {
		s.interrupt("replaced by new message")
	}

	if s.active == nil && !s.adopt(chunk) {
		return
	}

	if chunk.Final {
		s.active.final = true
	}

	if chunk.Sequence < s.active.cursor {
		s.dropStale(chunk, s.active.cursor)
		return
	}

	if !s.buffer.Put(chunk) {
		s.logger.Warn("Dropping duplicate chunk",
			zap.String("messageID", chunk.MessageID),
			zap.Int("sequence", chunk.Sequence),
			zap.Bool("final", chunk.Final))
		return
	}

	if s.state == StateBuffering {
		s.advance()
	}
}

// adopt makes the chunk's message the active utterance. An utterance that
// completed by exhaustion resumes at its cursor; one that completed on a
// final chunk accepts nothing more. A chunk below the starting cursor is
// dropped without adopting anything.
func (s *Sequencer) adopt(chunk entities.Chunk) bool {
	u := &utterance{messageID: chunk.MessageID}

	if prev := s.completed; prev != nil && prev.messageID == chunk.MessageID {
		if prev.final {
			s.logger.Debug("Dropping chunk for finished message",
				zap.String("messageID", chunk.MessageID))
			return false
		}
		u.cursor = prev.cursor
	}

	if chunk.Sequence < u.cursor {
		s.dropStale(chunk, u.cursor)
		return false
	}

	s.completed = nil
	s.active = u
	s.state = StateBuffering

	s.logger.Debug("Utterance started",
		zap.String("messageID", u.messageID),
		zap.Int("cursor", u.cursor))
	return true
}

func (s *Sequencer) dropStale(chunk entities.Chunk, cursor int) {
	s.logger.Debug("Dropping stale chunk",
		zap.String("messageID", chunk.MessageID),
		zap.Int("sequence", chunk.Sequence),
		zap.Int("cursor", cursor))
}

func (s *Sequencer) advance() {
	for s.active != nil && s.state == StateBuffering {
		u := s.active

		chunk, ok := s.buffer.Take(u.messageID, u.cursor)
		if !ok {
			if s.buffer.HasAfter(u.messageID, u.cursor) {
				s.logger.Debug("Waiting for missing chunk",
					zap.String("messageID", u.messageID),
					zap.Int("cursor", u.cursor))
				return
			}
			s.complete("exhausted")
			return
		}

		u.cursor++

		switch {
		case chunk.Playable():
			s.play(chunk)
		case chunk.Final:
			s.complete("final chunk")
			return
		default:
			s.logger.Debug("Skipping chunk without audio",
				zap.String("messageID", chunk.MessageID),
				zap.Int("sequence", chunk.Sequence))
		}
	}
}

func (s *Sequencer) play(chunk entities.Chunk) {
	resource := entities.AudioResource{
		ID:        uuid.NewString(),
		MessageID: chunk.MessageID,
		Sequence:  chunk.Sequence,
		Src:       chunk.Audio.Src,
	}

	if err := s.device.Play(resource); err != nil {
		s.logger.Error("Failed to play chunk",
			zap.String("messageID", chunk.MessageID),
			zap.Int("sequence", chunk.Sequence),
			zap.Error(err))
		return
	}

	s.playing = resource.ID
	s.state = StatePlaying
	s.armStall(resource.ID)

	s.logger.Debug("Playing chunk",
		zap.String("messageID", chunk.MessageID),
		zap.Int("sequence", chunk.Sequence),
		zap.String("resourceID", resource.ID))
}

func (s *Sequencer) complete(reason string) {
	u := s.active
	s.completions++
	s.completed = u
	s.active = nil
	s.buffer.Clear()
	s.state = StateIdle

	s.logger.Info("Utterance completed",
		zap.String("messageID", u.messageID),
		zap.Int("cursor", u.cursor),
		zap.String("reason", reason))

	s.reporter.ReportIdle()
}

func (s *Sequencer) interrupt(reason string) {
	wasPlaying := s.state == StatePlaying
	discarded := s.buffer.Len()

	s.disarmStall()
	if wasPlaying {
		if err := s.device.Stop(); err != nil {
			s.logger.Warn("Failed to stop device", zap.Error(err))
		}
	}

	var messageID string
	if s.active != nil {
		messageID = s.active.messageID
	}

	s.active = nil
	s.completed = nil
	s.buffer.Clear()
	s.playing = ""
	s.state = StateIdle

	s.logger.Info("Playback interrupted",
		zap.String("reason", reason),
		zap.String("messageID", messageID),
		zap.Bool("wasPlaying", wasPlaying),
		zap.Int("discarded", discarded))
}

func (s *Sequencer) handlePlayerEvent(ev entities.PlayerEvent) {
	switch ev.Status {
	case entities.PlayerStatusPlaying:
		s.logger.Debug("Player playing", zap.String("resourceID", ev.ResourceID))
	case entities.PlayerStatusAutoPaused:
		s.logger.Info("Player paused", zap.String("resourceID", ev.ResourceID))
	case entities.PlayerStatusIdle:
		if s.state == StatePlaying {
			if ev.ResourceID != s.playing {
				s.logger.Debug("Ignoring stale idle report",
					zap.String("resourceID", ev.ResourceID),
					zap.String("playing", s.playing))
				return
			}
			s.disarmStall()
			s.playing = ""
			s.state = StateBuffering
		}
		s.advance()
	default:
		s.logger.Warn("Unknown player status", zap.String("status", string(ev.Status)))
	}
}

func (s *Sequencer) handleStall(resourceID string) {
	if s.state != StatePlaying || s.playing != resourceID {
		return
	}

	s.logger.Warn("Playback stalled, skipping resource",
		zap.String("resourceID", resourceID),
		zap.Duration("timeout", s.stallTimeout))

	s.stall = nil
	if err := s.device.Stop(); err != nil {
		s.logger.Warn("Failed to stop stalled device", zap.Error(err))
	}
	s.playing = ""
	s.state = StateBuffering
	s.advance()
}

func (s *Sequencer) armStall(resourceID string) {
	if s.stallTimeout <= 0 {
		return
	}
	s.disarmStall()
	s.stall = time.AfterFunc(s.stallTimeout, func() {
		s.enqueue(stallEvent{resourceID})
	})
}

func (s *Sequencer) disarmStall() {
	if s.stall != nil {
		s.stall.Stop()
		s.stall = nil
	}
}

func (s *Sequencer) snapshot() Snapshot {
	snap := Snapshot{
		State:           s.state.String(),
		Buffered:        s.buffer.Len(),
		PlayingResource: s.playing,
		Completions:     s.completions,
	}
	if s.active != nil {
		snap.MessageID = s.active.messageID
		snap.Cursor = s.active.cursor
		snap.FinalSeen = s.active.final
	}
	return snap
}

func (s *Sequencer) teardown() {
	s.disarmStall()
	if s.state == StatePlaying {
		if err := s.device.Stop(); err != nil {
			s.logger.Debug("Failed to stop device on teardown", zap.Error(err))
		}
	}
	s.active = nil
	s.completed = nil
	s.buffer.Clear()
	s.playing = ""
	s.state = StateIdle
	s.logger.Info("Sequencer stopped")
}
