package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cdichat/voicebridge/domain/entities"
	"github.com/cdichat/voicebridge/domain/repositories"
)

type CommandAuditRepository struct {
	collection *mongo.Collection
}

// NewCommandAuditRepository creates a new MongoDB command audit repository
func NewCommandAuditRepository(db *mongo.Database) repositories.CommandAuditRepository {
	return &CommandAuditRepository{
		collection: db.Collection("command_audit"),
	}
}

type auditDocument struct {
	UserID      string    `bson:"user_id"`
	CommandName string    `bson:"command_name"`
	Timestamp   time.Time `bson:"timestamp"`
}

// Record implements repositories.CommandAuditRepository
func (r *CommandAuditRepository) Record(ctx context.Context, userID string, record entities.ExecutionRecord) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	if record.CommandName == "" {
		return errors.New("command name cannot be empty")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	doc := auditDocument{
		UserID:      userID,
		CommandName: record.CommandName,
		Timestamp:   record.Timestamp,
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to record command execution: %w", err)
	}
	return nil
}

// Recent implements repositories.CommandAuditRepository
func (r *CommandAuditRepository) Recent(ctx context.Context, userID string, limit int) ([]entities.ExecutionRecord, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	opts := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query command audit for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode command audit records: %w", err)
	}

	records := make([]entities.ExecutionRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, entities.ExecutionRecord{
			CommandName: doc.CommandName,
			Timestamp:   doc.Timestamp,
		})
	}

	return records, nil
}
