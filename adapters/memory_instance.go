package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

// MemoryInstanceRepository is an in-memory implementation of InstanceRepository.
// Instances do not survive a restart.
type MemoryInstanceRepository struct {
	mu        sync.RWMutex
	instances map[string]*entities.Instance // id -> instance
	outputs   map[string]string             // output_id -> id of its live instance
}

var _ repositories.InstanceRepository = (*MemoryInstanceRepository)(nil)

// NewMemoryInstanceRepository creates a new in-memory instance repository
func NewMemoryInstanceRepository() *MemoryInstanceRepository {
	return &MemoryInstanceRepository{
		instances: make(map[string]*entities.Instance),
		outputs:   make(map[string]string),
	}
}

// Create stores a new instance. It fails with ErrOutputBusy when the output
// already has a live instance.
func (m *MemoryInstanceRepository) Create(ctx context.Context, instance *entities.Instance) error {
	if instance == nil {
		return errors.New("instance cannot be nil")
	}

	if err := instance.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if instance.IsLive() {
		if _, busy := m.outputs[instance.OutputID]; busy {
			return repositories.ErrOutputBusy
		}
	}

	// Generate ID if not provided
	if instance.ID == "" {
		instance.ID = uuid.New().String()
	}
	if _, exists := m.instances[instance.ID]; exists {
		return errors.New("instance with this ID already exists")
	}

	now := time.Now()
	instance.CreatedAt = now
	instance.UpdatedAt = now

	instanceCopy := *instance
	m.instances[instance.ID] = &instanceCopy
	if instance.IsLive() {
		m.outputs[instance.OutputID] = instance.ID
	}

	return nil
}

// GetByID returns a copy of the instance
func (m *MemoryInstanceRepository) GetByID(ctx context.Context, id string) (*entities.Instance, error) {
	if id == "" {
		return nil, errors.New("instance ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	instance, exists := m.instances[id]
	if !exists {
		return nil, repositories.ErrInstanceNotFound
	}

	// Return a copy to prevent external modifications
	instanceCopy := *instance
	return &instanceCopy, nil
}

// GetLiveByOutputID returns the live instance bound to outputID
func (m *MemoryInstanceRepository) GetLiveByOutputID(ctx context.Context, outputID string) (*entities.Instance, error) {
	if outputID == "" {
		return nil, errors.New("output ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.outputs[outputID]
	if !exists {
		return nil, repositories.ErrInstanceNotFound
	}

	instanceCopy := *m.instances[id]
	return &instanceCopy, nil
}

// List returns every instance, newest first
func (m *MemoryInstanceRepository) List(ctx context.Context) ([]*entities.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*entities.Instance, 0, len(m.instances))
	for _, instance := range m.instances {
		instanceCopy := *instance
		result = append(result, &instanceCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// UpdateStatus moves an instance to status. Closing releases its output.
func (m *MemoryInstanceRepository) UpdateStatus(ctx context.Context, id string, status entities.InstanceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	instance, exists := m.instances[id]
	if !exists {
		return repositories.ErrInstanceNotFound
	}

	instance.SetStatus(status)
	if !instance.IsLive() && m.outputs[instance.OutputID] == id {
		delete(m.outputs, instance.OutputID)
	}

	return nil
}

// Delete removes an instance
func (m *MemoryInstanceRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("instance ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	instance, exists := m.instances[id]
	if !exists {
		return repositories.ErrInstanceNotFound
	}

	delete(m.instances, id)
	if m.outputs[instance.OutputID] == id {
		delete(m.outputs, instance.OutputID)
	}

	return nil
}

// DeleteClosedBefore removes closed instances closed before cutoff
func (m *MemoryInstanceRepository) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, instance := range m.instances {
		if instance.IsLive() || instance.ClosedAt == nil || !instance.ClosedAt.Before(cutoff) {
			continue
		}
		delete(m.instances, id)
		removed++
	}

	return removed, nil
}
