package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

func TestMemoryInstanceRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryInstanceRepository()
	ctx := context.Background()

	instance := entities.NewInstance("agent-1", "secret", "output-1")
	if err := repo.Create(ctx, instance); err != nil {
		t.Fatalf("Failed to create instance: %v", err)
	}
	if instance.ID == "" {
		t.Fatal("Expected generated instance ID")
	}

	retrieved, err := repo.GetByID(ctx, instance.ID)
	if err != nil {
		t.Fatalf("Failed to get instance: %v", err)
	}
	if retrieved.Agent.AgentID != "agent-1" {
		t.Errorf("Expected agent ID agent-1, got %s", retrieved.Agent.AgentID)
	}
	if retrieved.Status != entities.InstanceStatusConnecting {
		t.Errorf("Expected status %s, got %s", entities.InstanceStatusConnecting, retrieved.Status)
	}

	// copies must not leak into the store
	retrieved.Status = entities.InstanceStatusClosed
	again, _ := repo.GetByID(ctx, instance.ID)
	if again.Status != entities.InstanceStatusConnecting {
		t.Error("Modifying a returned instance should not change the store")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, repositories.ErrInstanceNotFound) {
		t.Errorf("Expected ErrInstanceNotFound, got %v", err)
	}
}

func TestMemoryInstanceRepository_OutputBusy(t *testing.T) {
	repo := NewMemoryInstanceRepository()
	ctx := context.Background()

	first := entities.NewInstance("agent-1", "secret", "output-1")
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Failed to create instance: %v", err)
	}

	second := entities.NewInstance("agent-2", "secret", "output-1")
	if err := repo.Create(ctx, second); !errors.Is(err, repositories.ErrOutputBusy) {
		t.Fatalf("Expected ErrOutputBusy, got %v", err)
	}

	live, err := repo.GetLiveByOutputID(ctx, "output-1")
	if err != nil || live.ID != first.ID {
		t.Fatalf("Expected live instance %s, got %v (%v)", first.ID, live, err)
	}

	if err := repo.UpdateStatus(ctx, first.ID, entities.InstanceStatusClosed); err != nil {
		t.Fatalf("Failed to close instance: %v", err)
	}
	if _, err := repo.GetLiveByOutputID(ctx, "output-1"); !errors.Is(err, repositories.ErrInstanceNotFound) {
		t.Errorf("Closed instance should release its output, got %v", err)
	}

	if err := repo.Create(ctx, second); err != nil {
		t.Errorf("Output should be free after close: %v", err)
	}
}

func TestMemoryInstanceRepository_UpdateStatus(t *testing.T) {
	repo := NewMemoryInstanceRepository()
	ctx := context.Background()

	instance := entities.NewInstance("agent-1", "secret", "output-1")
	repo.Create(ctx, instance)

	if err := repo.UpdateStatus(ctx, instance.ID, entities.InstanceStatusAuthenticated); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	retrieved, _ := repo.GetByID(ctx, instance.ID)
	if retrieved.Status != entities.InstanceStatusAuthenticated {
		t.Errorf("Expected authenticated, got %s", retrieved.Status)
	}
	if retrieved.ClosedAt != nil {
		t.Error("ClosedAt should be unset while live")
	}

	repo.UpdateStatus(ctx, instance.ID, entities.InstanceStatusClosed)
	retrieved, _ = repo.GetByID(ctx, instance.ID)
	if retrieved.ClosedAt == nil {
		t.Error("ClosedAt should be set once closed")
	}

	if err := repo.UpdateStatus(ctx, "missing", entities.InstanceStatusClosed); !errors.Is(err, repositories.ErrInstanceNotFound) {
		t.Errorf("Expected ErrInstanceNotFound, got %v", err)
	}
}

func TestMemoryInstanceRepository_ListAndDelete(t *testing.T) {
	repo := NewMemoryInstanceRepository()
	ctx := context.Background()

	a := entities.NewInstance("agent-1", "secret", "output-1")
	b := entities.NewInstance("agent-2", "secret", "output-2")
	repo.Create(ctx, a)
	repo.Create(ctx, b)

	instances, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("Expected 2 instances, got %d", len(instances))
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := repo.GetLiveByOutputID(ctx, "output-1"); !errors.Is(err, repositories.ErrInstanceNotFound) {
		t.Error("Deleting should release the output")
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, repositories.ErrInstanceNotFound) {
		t.Errorf("Expected ErrInstanceNotFound on second delete, got %v", err)
	}
}

func TestMemoryInstanceRepository_DeleteClosedBefore(t *testing.T) {
	repo := NewMemoryInstanceRepository()
	ctx := context.Background()

	closed := entities.NewInstance("agent-1", "secret", "output-1")
	live := entities.NewInstance("agent-2", "secret", "output-2")
	repo.Create(ctx, closed)
	repo.Create(ctx, live)
	repo.UpdateStatus(ctx, closed.ID, entities.InstanceStatusClosed)

	// nothing closed before an hour ago
	removed, err := repo.DeleteClosedBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteClosedBefore failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected 0 removed, got %d", removed)
	}

	removed, _ = repo.DeleteClosedBefore(ctx, time.Now().Add(time.Second))
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if _, err := repo.GetByID(ctx, live.ID); err != nil {
		t.Error("Live instance must be kept")
	}
}
