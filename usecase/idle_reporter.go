package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

const idleQueueSize = 16

// IdleReporter marks an agent IDLE once per completed utterance. Reports are
// posted from its own goroutine so the sequencer never waits on the network.
type IdleReporter struct {
	agent   entities.AgentCredentials
	client  repositories.AgentStatusClient
	timeout time.Duration
	pending chan struct{}
	logger  *zap.Logger
}

// NewIdleReporter creates a reporter for agent
func NewIdleReporter(agent entities.AgentCredentials, client repositories.AgentStatusClient, timeout time.Duration, logger *zap.Logger) *IdleReporter {
	return &IdleReporter{
		agent:   agent,
		client:  client,
		timeout: timeout,
		pending: make(chan struct{}, idleQueueSize),
		logger:  logger,
	}
}

// ReportIdle queues one status update. It never blocks.
func (r *IdleReporter) ReportIdle() {
	select {
	case r.pending <- struct{}{}:
	default:
		r.logger.Warn("Dropping idle report, queue full")
	}
}

// Run posts queued reports until ctx is done. Reports still queued at that
// point are posted before it returns.
func (r *IdleReporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case <-r.pending:
			r.post()
		}
	}
}

func (r *IdleReporter) flush() {
	for {
		select {
		case <-r.pending:
			r.logger.Debug("Posting idle report queued before shutdown")
			r.post()
		default:
			return
		}
	}
}

func (r *IdleReporter) post() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.UpdateStatus(ctx, r.agent, entities.AgentStatusIdle); err != nil {
		r.logger.Error("Failed to mark agent idle", zap.Error(err))
	}
}
