package store

import (
	"context"
	"fmt"
	"time"

	"github.com/docpanel/docpanel/errors"
	"github.com/docpanel/docpanel/session"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements session storage using MongoDB.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration.
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "docpanel",
		Collection: "sessions",
	}
}

// NewMongoStore creates a new MongoDB-based session store.
func NewMongoStore(config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	}
	if _, err := store.collection.Indexes().CreateOne(context.Background(), indexModel); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

// Save upserts a session record.
func (s *MongoStore) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: session record cannot be nil or unidentified", errors.ErrInvalidInput)
	}

	filter := bson.M{"_id": record.ID}
	update := bson.M{"$set": record}
	opts := options.Update().SetUpsert(true)
	if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save session in MongoDB: %w", err)
	}
	return nil
}

// Load retrieves a session record by id.
func (s *MongoStore) Load(ctx context.Context, id string) (*session.Record, error) {
	var record session.Record
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session from MongoDB: %w", err)
	}
	return &record, nil
}

// Delete removes a session record.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete session from MongoDB: %w", err)
	}
	return nil
}

// List returns all stored session ids.
func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions in MongoDB: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode session id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions in MongoDB: %w", err)
	}
	return ids, nil
}

// Exists reports whether a session record is present.
func (s *MongoStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check session in MongoDB: %w", err)
	}
	return n > 0, nil
}

// Close disconnects the MongoDB client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
