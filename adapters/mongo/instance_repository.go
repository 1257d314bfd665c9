package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

const instancesCollection = "instances"

var liveStatuses = bson.A{
	string(entities.InstanceStatusConnecting),
	string(entities.InstanceStatusAuthenticated),
}

// InstanceRepository stores instances in MongoDB. Agent secrets are never persisted.
type InstanceRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.InstanceRepository = (*InstanceRepository)(nil)

// NewInstanceRepository creates a MongoDB instance repository and ensures its indexes
func NewInstanceRepository(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*InstanceRepository, error) {
	collection := db.Collection(instancesCollection)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// Index on output_id and status for busy-output lookups
		{Keys: bson.D{{Key: "output_id", Value: 1}, {Key: "status", Value: 1}}},
		// Index on status and closed_at for cleanup operations
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "closed_at", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instance indexes: %w", err)
	}
	logger.Info("Instance indexes created successfully")

	return &InstanceRepository{
		collection: collection,
		logger:     logger,
	}, nil
}

// Create implements repositories.InstanceRepository
func (r *InstanceRepository) Create(ctx context.Context, instance *entities.Instance) error {
	if instance == nil {
		return errors.New("instance cannot be nil")
	}
	if err := instance.Validate(); err != nil {
		return err
	}

	if instance.IsLive() {
		_, err := r.GetLiveByOutputID(ctx, instance.OutputID)
		switch {
		case err == nil:
			return repositories.ErrOutputBusy
		case !errors.Is(err, repositories.ErrInstanceNotFound):
			return err
		}
	}

	if instance.ID == "" {
		instance.ID = uuid.New().String()
	}
	now := time.Now()
	instance.CreatedAt = now
	instance.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, instance); err != nil {
		r.logger.Error("Failed to create instance", zap.Error(err), zap.String("output_id", instance.OutputID))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	r.logger.Debug("Instance created",
		zap.String("instance_id", instance.ID),
		zap.String("output_id", instance.OutputID))
	return nil
}

// GetByID implements repositories.InstanceRepository
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entities.Instance, error) {
	if id == "" {
		return nil, errors.New("instance ID cannot be empty")
	}
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetLiveByOutputID implements repositories.InstanceRepository
func (r *InstanceRepository) GetLiveByOutputID(ctx context.Context, outputID string) (*entities.Instance, error) {
	if outputID == "" {
		return nil, errors.New("output ID cannot be empty")
	}
	return r.findOne(ctx, bson.M{
		"output_id": outputID,
		"status":    bson.M{"$in": liveStatuses},
	})
}

func (r *InstanceRepository) findOne(ctx context.Context, filter bson.M) (*entities.Instance, error) {
	var instance entities.Instance
	err := r.collection.FindOne(ctx, filter).Decode(&instance)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrInstanceNotFound
		}
		r.logger.Error("Failed to get instance", zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return &instance, nil
}

// List implements repositories.InstanceRepository
func (r *InstanceRepository) List(ctx context.Context) ([]*entities.Instance, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer cursor.Close(ctx)

	instances := []*entities.Instance{}
	if err := cursor.All(ctx, &instances); err != nil {
		r.logger.Error("Failed to decode instances", zap.Error(err))
		return nil, fmt.Errorf("failed to decode instances: %w", err)
	}

	return instances, nil
}

// UpdateStatus implements repositories.InstanceRepository
func (r *InstanceRepository) UpdateStatus(ctx context.Context, id string, status entities.InstanceStatus) error {
	now := time.Now()
	set := bson.M{
		"status":     status,
		"updated_at": now,
	}
	if status == entities.InstanceStatusClosed {
		set["closed_at"] = now
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		r.logger.Error("Failed to update instance status", zap.Error(err), zap.String("instance_id", id))
		return fmt.Errorf("failed to update instance status: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrInstanceNotFound
	}

	r.logger.Debug("Instance status updated",
		zap.String("instance_id", id),
		zap.String("status", string(status)))
	return nil
}

// Delete implements repositories.InstanceRepository
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.Error("Failed to delete instance", zap.Error(err), zap.String("instance_id", id))
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	if result.DeletedCount == 0 {
		return repositories.ErrInstanceNotFound
	}

	r.logger.Info("Instance deleted", zap.String("instance_id", id))
	return nil
}

// DeleteClosedBefore implements repositories.InstanceRepository
func (r *InstanceRepository) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{
		"status":    entities.InstanceStatusClosed,
		"closed_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		r.logger.Error("Failed to delete closed instances", zap.Error(err))
		return 0, fmt.Errorf("failed to delete closed instances: %w", err)
	}

	return result.DeletedCount, nil
}
