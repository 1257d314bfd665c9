package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/repositories"
)

// InstanceCleanupService deletes closed instances once they are older than
// the retention period
type InstanceCleanupService struct {
	instanceRepo repositories.InstanceRepository
	interval     time.Duration
	retention    time.Duration
	logger       *zap.Logger
	stopChan     chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

// NewInstanceCleanupService creates a new instance cleanup service
func NewInstanceCleanupService(instanceRepo repositories.InstanceRepository, interval, retention time.Duration, logger *zap.Logger) *InstanceCleanupService {
	return &InstanceCleanupService{
		instanceRepo: instanceRepo,
		interval:     interval,
		retention:    retention,
		logger:       logger,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *InstanceCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Instance cleanup service started",
		zap.Duration("interval", s.interval),
		zap.Duration("retention", s.retention))
}

// Stop stops the cleanup service and waits for a running pass to finish
func (s *InstanceCleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.logger.Info("Instance cleanup service stopped")
	})
}

// cleanupLoop runs the cleanup process periodically
func (s *InstanceCleanupService) cleanupLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs one cleanup pass and returns how many instances were removed
func (s *InstanceCleanupService) RunOnce() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.retention)
	removed, err := s.instanceRepo.DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to delete closed instances", zap.Error(err))
		return 0
	}

	if removed > 0 {
		s.logger.Info("Instance cleanup completed", zap.Int64("removed", removed))
	} else {
		s.logger.Debug("Instance cleanup completed, nothing to remove")
	}
	return removed
}
