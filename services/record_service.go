package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cirrusdrive/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecordStore is the Mongo implementation of RecordStore.
type MongoRecordStore struct {
	collection *mongo.Collection

	mu       sync.Mutex
	lastTime map[string]time.Time // per-owner high-water mark for upload times
}

func NewMongoRecordStore(db *mongo.Database) *MongoRecordStore {
	store := &MongoRecordStore{
		collection: db.Collection("files"),
		lastTime:   make(map[string]time.Time),
	}
	store.createIndexes()
	return store
}

func (s *MongoRecordStore) createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ownerTimeIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "owner_id", Value: 1},
			{Key: "upload_time", Value: -1},
		},
	}
	ownerNameIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "owner_id", Value: 1},
			{Key: "name", Value: 1},
		},
	}

	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{ownerTimeIndex, ownerNameIndex})
	if err != nil {
		log.Printf("Warning: failed to create file indexes: %v", err)
	}
}

// nextUploadTime returns a timestamp strictly after every timestamp
// previously handed out for this owner. Mongo stores times at millisecond
// precision, so collisions within one millisecond are bumped by one.
func (s *MongoRecordStore) nextUploadTime(ownerID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if last, ok := s.lastTime[ownerID]; ok && !now.After(last) {
		now = last.Add(time.Millisecond)
	}
	s.lastTime[ownerID] = now
	return now
}

func (s *MongoRecordStore) Create(ctx context.Context, rec *models.File) error {
	rec.ID = primitive.NewObjectID()
	rec.UploadTime = s.nextUploadTime(rec.OwnerID)

	_, err := s.collection.InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMetadataWriteFailed, err)
	}
	return nil
}

func (s *MongoRecordStore) Get(ctx context.Context, id string) (*models.File, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid file ID %q", ErrNotFound, id)
	}

	var rec models.File
	err = s.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &rec, nil
}

// Delete removes the record in one retrieve-then-remove step and returns
// what was removed.
func (s *MongoRecordStore) Delete(ctx context.Context, id string) (*models.File, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid file ID %q", ErrNotFound, id)
	}

	var rec models.File
	err = s.collection.FindOneAndDelete(ctx, bson.M{"_id": objID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataWriteFailed, err)
	}
	return &rec, nil
}

func (s *MongoRecordStore) DeleteByOwnerAndName(ctx context.Context, ownerID, name string) (*models.File, error) {
	var rec models.File
	err := s.collection.FindOneAndDelete(ctx, bson.M{"owner_id": ownerID, "name": name}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataWriteFailed, err)
	}
	return &rec, nil
}

func (s *MongoRecordStore) ListByOwner(ctx context.Context, ownerID string) ([]models.File, error) {
	sort := bson.D{
		{Key: "upload_time", Value: -1},
		{Key: "_id", Value: -1},
	}
	cursor, err := s.collection.Find(ctx, bson.M{"owner_id": ownerID}, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer cursor.Close(ctx)

	var files []models.File
	if err = cursor.All(ctx, &files); err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}
	return files, nil
}
