package db

import (
	"context"
	"trustresolver/pkg/logger"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel/codes"
)

// lastProcessedBlockKey is the singleton resolver_state row tracking the last indexer block the
// polling loop fully processed.
const lastProcessedBlockKey = "last_processed_block"

// ResolverStateColl is the collection holding the polling loop's scalar checkpoint state.
type ResolverStateColl struct {
	Service *Service
	Coll    *mongo.Collection
	log     *logger.Log
}

type resolverStateDoc struct {
	Key   string `bson:"key"`
	Value int64  `bson:"value"`
}

// NewResolverStateColl creates the resolver_state collection and its indexes.
func NewResolverStateColl(ctx context.Context, collName string, service *Service, log *logger.Log) (*ResolverStateColl, error) {
	c := &ResolverStateColl{
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

func (c *ResolverStateColl) createIndex(ctx context.Context) error {
	ctx, span := c.Service.tracer.Start(ctx, "db:resolver_state:createIndex")
	defer span.End()

	keyUniq := mongo.IndexModel{
		Keys:    bson.D{bson.E{Key: "key", Value: 1}},
		Options: options.Index().SetName("key_uniq").SetUnique(true),
	}

	_, err := c.Coll.Indexes().CreateMany(ctx, []mongo.IndexModel{keyUniq})
	return err
}

// LastProcessedBlock returns the last block fully processed by the polling loop, or 0 if unset.
func (c *ResolverStateColl) LastProcessedBlock(ctx context.Context) (int64, error) {
	ctx, span := c.Service.tracer.Start(ctx, "db:resolver_state:lastProcessedBlock")
	defer span.End()

	var doc resolverStateDoc
	err := c.Coll.FindOne(ctx, bson.M{"key": lastProcessedBlockKey}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	return doc.Value, nil
}

// SetLastProcessedBlock advances the checkpoint once a block's events are fully applied.
func (c *ResolverStateColl) SetLastProcessedBlock(ctx context.Context, block int64) error {
	ctx, span := c.Service.tracer.Start(ctx, "db:resolver_state:setLastProcessedBlock")
	defer span.End()

	filter := bson.M{"key": lastProcessedBlockKey}
	update := bson.M{"$set": resolverStateDoc{Key: lastProcessedBlockKey, Value: block}}
	opts := options.UpdateOne().SetUpsert(true)

	_, err := c.Coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.log.Error(err, "cant set last processed block", "block", block)
		return err
	}

	return nil
}
