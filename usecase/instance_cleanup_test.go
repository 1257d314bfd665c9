package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/adapters"
	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

func TestInstanceCleanupService_RunOnce(t *testing.T) {
	repo := adapters.NewMemoryInstanceRepository()
	ctx := context.Background()

	closed := entities.NewInstance("agent-1", "s", "output-1")
	live := entities.NewInstance("agent-2", "s", "output-2")
	repo.Create(ctx, closed)
	repo.Create(ctx, live)
	repo.UpdateStatus(ctx, closed.ID, entities.InstanceStatusClosed)

	// a negative retention puts the cutoff in the future
	service := NewInstanceCleanupService(repo, time.Hour, -time.Minute, zap.NewNop())
	if removed := service.RunOnce(); removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}

	if _, err := repo.GetByID(ctx, closed.ID); !errors.Is(err, repositories.ErrInstanceNotFound) {
		t.Error("Closed instance should be deleted")
	}
	if _, err := repo.GetByID(ctx, live.ID); err != nil {
		t.Error("Live instance should be kept")
	}
}

func TestInstanceCleanupService_KeepsRecent(t *testing.T) {
	repo := adapters.NewMemoryInstanceRepository()
	ctx := context.Background()

	closed := entities.NewInstance("agent-1", "s", "output-1")
	repo.Create(ctx, closed)
	repo.UpdateStatus(ctx, closed.ID, entities.InstanceStatusClosed)

	service := NewInstanceCleanupService(repo, time.Hour, time.Hour, zap.NewNop())
	if removed := service.RunOnce(); removed != 0 {
		t.Errorf("Expected recent instance kept, got %d removed", removed)
	}
}

func TestInstanceCleanupService_Loop(t *testing.T) {
	repo := adapters.NewMemoryInstanceRepository()
	ctx := context.Background()

	closed := entities.NewInstance("agent-1", "s", "output-1")
	repo.Create(ctx, closed)
	repo.UpdateStatus(ctx, closed.ID, entities.InstanceStatusClosed)

	service := NewInstanceCleanupService(repo, 10*time.Millisecond, -time.Minute, zap.NewNop())
	service.Start()
	defer service.Stop()

	waitFor(t, "cleanup pass", func() bool {
		_, err := repo.GetByID(ctx, closed.ID)
		return errors.Is(err, repositories.ErrInstanceNotFound)
	})

	service.Stop()
	service.Stop()
}
