package db

import (
	"context"
	"time"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel/codes"
)

// ReattemptableColl tracks resources whose processing failed transiently and is eligible for retry.
type ReattemptableColl struct {
	Service *Service
	Coll    *mongo.Collection
	log     *logger.Log
}

// NewReattemptableColl creates the reattemptable collection and its indexes.
func NewReattemptableColl(ctx context.Context, collName string, service *Service, log *logger.Log) (*ReattemptableColl, error) {
	c := &ReattemptableColl{
		log:     log,
		Service: service,
	}

	c.Coll = c.Service.mongoClient.Database(databaseName).Collection(collName)

	if err := c.createIndex(ctx); err != nil {
		return nil, err
	}

	c.log.Info("Started")

	return c, nil
}

func (c *ReattemptableColl) createIndex(ctx context.Context) error {
	ctx, span := c.Service.tracer.Start(ctx, "db:reattemptable:createIndex")
	defer span.End()

	resourceUniq := mongo.IndexModel{
		Keys:    bson.D{bson.E{Key: "resource_id", Value: 1}, bson.E{Key: "resource_type", Value: 1}},
		Options: options.Index().SetName("resource_uniq").SetUnique(true),
	}

	_, err := c.Coll.Indexes().CreateMany(ctx, []mongo.IndexModel{resourceUniq})
	return err
}

// Upsert records or updates a failure for the given resource.
func (c *ReattemptableColl) Upsert(ctx context.Context, r *model.ReattemptableResource) error {
	ctx, span := c.Service.tracer.Start(ctx, "db:reattemptable:upsert")
	defer span.End()

	filter := bson.M{"resource_id": r.ResourceID, "resource_type": r.ResourceType}
	update := bson.M{"$set": r}
	opts := options.UpdateOne().SetUpsert(true)

	_, err := c.Coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.log.Error(err, "cant upsert reattemptable resource", "resource_id", r.ResourceID)
		return err
	}

	return nil
}

// Delete removes a resource once it has succeeded or been permanently abandoned.
func (c *ReattemptableColl) Delete(ctx context.Context, resourceID string, resourceType model.ResourceType) error {
	ctx, span := c.Service.tracer.Start(ctx, "db:reattemptable:delete")
	defer span.End()

	_, err := c.Coll.DeleteOne(ctx, bson.M{"resource_id": resourceID, "resource_type": resourceType})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

// DueForRetry returns transient resources whose LastRetryAt is older than minGap, excluding any
// whose FirstFailureAt is older than the reattempt retention window (those are abandoned).
func (c *ReattemptableColl) DueForRetry(ctx context.Context, minGap time.Duration, retention time.Duration) ([]*model.ReattemptableResource, error) {
	ctx, span := c.Service.tracer.Start(ctx, "db:reattemptable:dueForRetry")
	defer span.End()

	now := time.Now()
	filter := bson.M{
		"error_type":       model.ErrorTransient,
		"last_retry_at":    bson.M{"$lte": now.Add(-minGap)},
		"first_failure_at": bson.M{"$gte": now.Add(-retention)},
	}

	cursor, err := c.Coll.Find(ctx, filter)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*model.ReattemptableResource
	if err := cursor.All(ctx, &docs); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return docs, nil
}

// PruneExpired removes resources whose retention window has elapsed, regardless of error type, and
// returns the removed resources so the caller can escalate any that name a DID to UNTRUSTED.
func (c *ReattemptableColl) PruneExpired(ctx context.Context, retention time.Duration) ([]*model.ReattemptableResource, error) {
	ctx, span := c.Service.tracer.Start(ctx, "db:reattemptable:pruneExpired")
	defer span.End()

	filter := bson.M{"first_failure_at": bson.M{"$lt": time.Now().Add(-retention)}}

	cursor, err := c.Coll.Find(ctx, filter)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer cursor.Close(ctx)

	var expired []*model.ReattemptableResource
	if err := cursor.All(ctx, &expired); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	if _, err := c.Coll.DeleteMany(ctx, filter); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return expired, nil
}
