package services

import (
	"context"
	"fmt"

	"cirrusdrive/models"
	"cirrusdrive/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLedger maintains the used_storage counter on the user document.
// Every mutation is a server-side $inc so concurrent uploads and deletes
// by the same user commute; nothing here reads a counter and writes it
// back.
type MongoLedger struct {
	userCollection *mongo.Collection
	fileCollection *mongo.Collection
}

func NewMongoLedger(db *mongo.Database) *MongoLedger {
	return &MongoLedger{
		userCollection: db.Collection("users"),
		fileCollection: db.Collection("files"),
	}
}

// CheckAndReserve reserves delta bytes in one conditional update: the $inc
// only applies when used + delta stays within the free limit, so two
// racing uploads can never jointly pass the check and exceed it.
func (l *MongoLedger) CheckAndReserve(ctx context.Context, userID string, delta int64) (Reservation, error) {
	objID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return Reservation{}, fmt.Errorf("%w: invalid user ID %q", ErrNotFound, userID)
	}

	filter := bson.M{
		"_id": objID,
		"$expr": bson.M{
			"$lte": bson.A{
				bson.M{"$add": bson.A{"$used_storage", delta}},
				"$free_limit",
			},
		},
	}
	update := bson.M{"$inc": bson.M{"used_storage": delta}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.User
	err = l.userCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user)
	if err == nil {
		return Reservation{
			Accepted:    true,
			CurrentUsed: user.UsedStorage,
			Limit:       user.FreeLimit,
		}, nil
	}
	if err != mongo.ErrNoDocuments {
		return Reservation{}, fmt.Errorf("%w: %v", ErrLedgerUpdateFailed, err)
	}

	// Either the user is gone or the reservation would exceed the limit.
	err = l.userCollection.FindOne(ctx, bson.M{"_id": objID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return Reservation{}, ErrNotFound
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("%w: %v", ErrLedgerUpdateFailed, err)
	}

	return Reservation{
		Accepted:    false,
		CurrentUsed: user.UsedStorage,
		Limit:       user.FreeLimit,
	}, nil
}

func (l *MongoLedger) Apply(ctx context.Context, userID string, delta int64) (int64, error) {
	objID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid user ID %q", ErrNotFound, userID)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$inc": bson.M{"used_storage": delta}}

	var user models.User
	err = l.userCollection.FindOneAndUpdate(ctx, bson.M{"_id": objID}, update, opts).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUpdateFailed, err)
	}

	if user.UsedStorage < 0 {
		utils.LogIntegrityWarning("used_storage underflow for user %s: %d after delta %d, clamping to 0",
			userID, user.UsedStorage, delta)
		_, err = l.userCollection.UpdateOne(ctx,
			bson.M{"_id": objID, "used_storage": bson.M{"$lt": 0}},
			bson.M{"$set": bson.M{"used_storage": int64(0)}},
		)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to clamp underflow: %v", ErrLedgerUpdateFailed, err)
		}
		return 0, nil
	}

	return user.UsedStorage, nil
}

// Reconcile sets the counter to the sum of the owner's file record sizes.
// Safe to run at any time and as often as needed.
func (l *MongoLedger) Reconcile(ctx context.Context, userID string) (int64, error) {
	objID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid user ID %q", ErrNotFound, userID)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner_id": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$size"},
		}}},
	}

	cursor, err := l.fileCollection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("%w: aggregation failed: %v", ErrLedgerUpdateFailed, err)
	}
	defer cursor.Close(ctx)

	var total int64
	if cursor.Next(ctx) {
		var result struct {
			Total int64 `bson:"total"`
		}
		if err := cursor.Decode(&result); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrLedgerUpdateFailed, err)
		}
		total = result.Total
	}

	result, err := l.userCollection.UpdateOne(ctx,
		bson.M{"_id": objID},
		bson.M{"$set": bson.M{"used_storage": total}},
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUpdateFailed, err)
	}
	if result.MatchedCount == 0 {
		return 0, ErrNotFound
	}

	return total, nil
}
