package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

// TestInstanceRepository_Integration requires a running MongoDB instance
// (skipped if MONGODB_URI is not set)
func TestInstanceRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	client, err := NewClient(ctx, mongoURI, "voicerelay_test", logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		client.Database.Drop(ctx)
		client.Close(ctx)
	}()

	repo, err := NewInstanceRepository(ctx, client.Database, logger)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		instance := entities.NewInstance("agent-1", "secret", "output-1")
		if err := repo.Create(ctx, instance); err != nil {
			t.Fatalf("Failed to create instance: %v", err)
		}

		retrieved, err := repo.GetByID(ctx, instance.ID)
		if err != nil {
			t.Fatalf("Failed to get instance: %v", err)
		}
		if retrieved.OutputID != "output-1" {
			t.Errorf("Expected output-1, got %s", retrieved.OutputID)
		}
		if retrieved.Agent.Secret != "" {
			t.Error("Agent secret must not be persisted")
		}
	})

	t.Run("OutputBusy", func(t *testing.T) {
		instance := entities.NewInstance("agent-2", "secret", "output-1")
		if err := repo.Create(ctx, instance); !errors.Is(err, repositories.ErrOutputBusy) {
			t.Errorf("Expected ErrOutputBusy, got %v", err)
		}
	})

	t.Run("CloseAndCleanup", func(t *testing.T) {
		live, err := repo.GetLiveByOutputID(ctx, "output-1")
		if err != nil {
			t.Fatalf("Failed to get live instance: %v", err)
		}

		if err := repo.UpdateStatus(ctx, live.ID, entities.InstanceStatusClosed); err != nil {
			t.Fatalf("Failed to close instance: %v", err)
		}
		if _, err := repo.GetLiveByOutputID(ctx, "output-1"); !errors.Is(err, repositories.ErrInstanceNotFound) {
			t.Errorf("Expected no live instance, got %v", err)
		}

		removed, err := repo.DeleteClosedBefore(ctx, time.Now().Add(time.Second))
		if err != nil {
			t.Fatalf("DeleteClosedBefore failed: %v", err)
		}
		if removed != 1 {
			t.Errorf("Expected 1 removed, got %d", removed)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, "missing", entities.InstanceStatusClosed); !errors.Is(err, repositories.ErrInstanceNotFound) {
			t.Errorf("Expected ErrInstanceNotFound, got %v", err)
		}
		if err := repo.Delete(ctx, "missing"); !errors.Is(err, repositories.ErrInstanceNotFound) {
			t.Errorf("Expected ErrInstanceNotFound, got %v", err)
		}
	})
}
