package db

import (
	"context"
	"time"
	"trustresolver/pkg/logger"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel/codes"
)

const leaderLockID = "resolver_leader"

// LeaderLockColl is the durable fallback for leader election: a single TTL-indexed document that
// a leader must periodically renew. It backs up the Redis fast path when Redis is unavailable.
type LeaderLockColl struct {
	Service *Service
	Coll    *mongo.Collection
	log     *logger.Log
}

// LeaderLockDoc is the leader_lock document, holding the current holder's identity and the time
// the lease expires. The expires_at field carries a TTL index so stale locks self-clean.
type LeaderLockDoc struct {
	ID        string    `bson:"_id"`
	HolderID  string    `bson:"holder_id"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// NewLeaderLockColl creates the leader_lock collection and its TTL index.
func NewLeaderLockColl(ctx context.Context, collName string, service *Service, log *logger.Log) (*LeaderLockColl, error) {
	c := &LeaderLockColl{
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

func (c *LeaderLockColl) createIndex(ctx context.Context) error {
	ctx, span := c.Service.tracer.Start(ctx, "db:leader_lock:createIndex")
	defer span.End()

	ttlIdx := mongo.IndexModel{
		Keys:    bson.D{bson.E{Key: "expires_at", Value: 1}},
		Options: options.Index().SetName("expires_at_ttl").SetExpireAfterSeconds(0),
	}

	_, err := c.Coll.Indexes().CreateMany(ctx, []mongo.IndexModel{ttlIdx})
	return err
}

// TryAcquire attempts to become leader, succeeding if no unexpired lock is held by another holder.
func (c *LeaderLockColl) TryAcquire(ctx context.Context, holderID string, lease time.Duration) (bool, error) {
	ctx, span := c.Service.tracer.Start(ctx, "db:leader_lock:tryAcquire")
	defer span.End()

	now := time.Now()
	filter := bson.M{
		"_id": leaderLockID,
		"$or": []bson.M{
			{"expires_at": bson.M{"$lte": now}},
			{"holder_id": holderID},
		},
	}
	update := bson.M{"$set": bson.M{"_id": leaderLockID, "holder_id": holderID, "expires_at": now.Add(lease)}}
	opts := options.UpdateOne().SetUpsert(true)

	result, err := c.Coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	return result.MatchedCount > 0 || result.UpsertedCount > 0, nil
}

// Renew extends the lease for holderID, failing if it is no longer the recorded holder.
func (c *LeaderLockColl) Renew(ctx context.Context, holderID string, lease time.Duration) (bool, error) {
	ctx, span := c.Service.tracer.Start(ctx, "db:leader_lock:renew")
	defer span.End()

	filter := bson.M{"_id": leaderLockID, "holder_id": holderID}
	update := bson.M{"$set": bson.M{"expires_at": time.Now().Add(lease)}}

	result, err := c.Coll.UpdateOne(ctx, filter, update)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	return result.MatchedCount > 0, nil
}

// Release gives up leadership immediately, letting another instance acquire without waiting for TTL.
func (c *LeaderLockColl) Release(ctx context.Context, holderID string) error {
	ctx, span := c.Service.tracer.Start(ctx, "db:leader_lock:release")
	defer span.End()

	_, err := c.Coll.DeleteOne(ctx, bson.M{"_id": leaderLockID, "holder_id": holderID})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
