package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/sandiwara/domain/entities"
	"github.com/satriahrh/sandiwara/domain/repositories"
)

const synthesesCollection = "syntheses"

// SynthesisRepository stores synthesis history in the "syntheses" collection
type SynthesisRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.SynthesisRepository = (*SynthesisRepository)(nil)

func NewSynthesisRepository(db *mongo.Database, logger *zap.Logger) *SynthesisRepository {
	return &SynthesisRepository{
		collection: db.Collection(synthesesCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the session_id and started_at indexes used by lookups.
func (r *SynthesisRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "started_at", Value: -1}},
		},
	})
	if err != nil {
		r.logger.Error("Failed to create synthesis indexes", zap.Error(err))
		return fmt.Errorf("failed to create synthesis indexes: %w", err)
	}
	r.logger.Info("Synthesis indexes created successfully")
	return nil
}

// Create implements repositories.SynthesisRepository
func (r *SynthesisRepository) Create(ctx context.Context, record *entities.SynthesisRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		r.logger.Error("Failed to create synthesis record",
			zap.String("session_id", record.SessionID),
			zap.Error(err))
		return fmt.Errorf("failed to create synthesis record: %w", err)
	}

	r.logger.Debug("Synthesis record created",
		zap.String("id", record.ID),
		zap.String("session_id", record.SessionID),
		zap.String("status", string(record.Status)))
	return nil
}

// GetByID implements repositories.SynthesisRepository
func (r *SynthesisRepository) GetByID(ctx context.Context, id string) (*entities.SynthesisRecord, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetBySessionID implements repositories.SynthesisRepository
func (r *SynthesisRepository) GetBySessionID(ctx context.Context, sessionID string) (*entities.SynthesisRecord, error) {
	return r.findOne(ctx, bson.M{"session_id": sessionID})
}

func (r *SynthesisRepository) findOne(ctx context.Context, filter bson.M) (*entities.SynthesisRecord, error) {
	var record entities.SynthesisRecord
	err := r.collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get synthesis record: %w", err)
	}
	return &record, nil
}

// ListRecent implements repositories.SynthesisRepository
func (r *SynthesisRepository) ListRecent(ctx context.Context, limit int) ([]*entities.SynthesisRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list synthesis records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*entities.SynthesisRecord
	for cursor.Next(ctx) {
		var record entities.SynthesisRecord
		if err := cursor.Decode(&record); err != nil {
			r.logger.Error("Failed to decode synthesis record", zap.Error(err))
			continue
		}
		records = append(records, &record)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return records, nil
}
