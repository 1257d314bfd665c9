package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/satriahrh/voicerelay/domain/entities"
)

var (
	// ErrInstanceNotFound is returned when no instance matches the lookup
	ErrInstanceNotFound = errors.New("instance not found")
	// ErrOutputBusy is returned when an output already has a live instance
	ErrOutputBusy = errors.New("output already has a live instance")
)

// InstanceRepository stores agent instances keyed by instance ID
type InstanceRepository interface {
	Create(ctx context.Context, instance *entities.Instance) error
	GetByID(ctx context.Context, id string) (*entities.Instance, error)
	// GetLiveByOutputID returns the non-closed instance bound to an output
	GetLiveByOutputID(ctx context.Context, outputID string) (*entities.Instance, error)
	List(ctx context.Context) ([]*entities.Instance, error)
	UpdateStatus(ctx context.Context, id string, status entities.InstanceStatus) error
	Delete(ctx context.Context, id string) error
	// DeleteClosedBefore removes closed instances closed before cutoff and
	// returns how many were removed
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
