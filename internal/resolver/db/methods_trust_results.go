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

// TrustResultColl is the collection holding the authoritative per-DID trust verdicts.
type TrustResultColl struct {
	Service *Service
	Coll    *mongo.Collection
	log     *logger.Log
}

// NewTrustResultColl creates the trust_results collection and its indexes.
func NewTrustResultColl(ctx context.Context, collName string, service *Service, log *logger.Log) (*TrustResultColl, error) {
	c := &TrustResultColl{
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

func (c *TrustResultColl) createIndex(ctx context.Context) error {
	ctx, span := c.Service.tracer.Start(ctx, "db:trust_results:createIndex")
	defer span.End()

	didUniq := mongo.IndexModel{
		Keys:    bson.D{bson.E{Key: "did", Value: 1}},
		Options: options.Index().SetName("did_uniq").SetUnique(true),
	}
	expiresIdx := mongo.IndexModel{
		Keys:    bson.D{bson.E{Key: "expires_at", Value: 1}},
		Options: options.Index().SetName("expires_at_idx"),
	}

	_, err := c.Coll.Indexes().CreateMany(ctx, []mongo.IndexModel{didUniq, expiresIdx})
	return err
}

// Upsert replaces the persisted trust result for result.DID.
func (c *TrustResultColl) Upsert(ctx context.Context, result *model.TrustResult) error {
	ctx, span := c.Service.tracer.Start(ctx, "db:trust_results:upsert")
	defer span.End()

	filter := bson.M{"did": result.DID}
	update := bson.M{"$set": result}
	opts := options.UpdateOne().SetUpsert(true)

	_, err := c.Coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.log.Error(err, "cant upsert trust result", "did", result.DID)
		return err
	}

	return nil
}

// Get returns the persisted trust result for did, or mongo.ErrNoDocuments if absent.
func (c *TrustResultColl) Get(ctx context.Context, did string) (*model.TrustResult, error) {
	ctx, span := c.Service.tracer.Start(ctx, "db:trust_results:get")
	defer span.End()

	var result model.TrustResult
	err := c.Coll.FindOne(ctx, bson.M{"did": did}).Decode(&result)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	return &result, nil
}

// ExpiringBefore returns DIDs whose trust result expires before cutoff, for the TTL-refresh sweep.
func (c *TrustResultColl) ExpiringBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, span := c.Service.tracer.Start(ctx, "db:trust_results:expiringBefore")
	defer span.End()

	filter := bson.M{"expires_at": bson.M{"$lte": cutoff}}
	opts := options.Find().
		SetProjection(bson.M{"did": 1}).
		SetSort(bson.D{{Key: "expires_at", Value: 1}}).
		SetLimit(100)

	cursor, err := c.Coll.Find(ctx, filter, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		DID string `bson:"did"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	dids := make([]string, len(docs))
	for i, d := range docs {
		dids[i] = d.DID
	}

	return dids, nil
}
