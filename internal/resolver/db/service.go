// Package db is the durable store for the trust resolver: trust results, credential evaluation
// results, the reattempt queue, polling checkpoint state and the advisory leader lock, all backed
// by MongoDB.
package db

import (
	"context"
	"time"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
	"trustresolver/pkg/trace"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var databaseName = "trust_resolver"

// Service is the database service
type Service struct {
	mongoClient *mongo.Client
	tracer      *trace.Tracer
	log         *logger.Log
	cfg         *model.Cfg

	TrustResults   *TrustResultColl
	Reattemptable  *ReattemptableColl
	ResolverState  *ResolverStateColl
	LeaderLock     *LeaderLockColl
}

// New creates a new database service
func New(ctx context.Context, cfg *model.Cfg, tracer *trace.Tracer, log *logger.Log) (*Service, error) {
	s := &Service{
		log:    log.New("db"),
		cfg:    cfg,
		tracer: tracer,
	}

	if err := s.connectMongo(ctx); err != nil {
		return nil, err
	}

	var err error
	s.TrustResults, err = NewTrustResultColl(ctx, "trust_results", s, log.New("trust_results"))
	if err != nil {
		return nil, err
	}

	s.Reattemptable, err = NewReattemptableColl(ctx, "reattemptable", s, log.New("reattemptable"))
	if err != nil {
		return nil, err
	}

	s.ResolverState, err = NewResolverStateColl(ctx, "resolver_state", s, log.New("resolver_state"))
	if err != nil {
		return nil, err
	}

	s.LeaderLock, err = NewLeaderLockColl(ctx, "leader_lock", s, log.New("leader_lock"))
	if err != nil {
		return nil, err
	}

	s.log.Info("Started")

	return s, nil
}

// connectMongo connects to MongoDB
func (s *Service) connectMongo(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(s.cfg.Common.Mongo.URI))
	if err != nil {
		return err
	}
	s.mongoClient = client

	if err := s.mongoClient.Ping(ctx, nil); err != nil {
		return err
	}

	s.log.Info("MongoDB connected")
	return nil
}

// Close closes the database connections
func (s *Service) Close(ctx context.Context) error {
	s.log.Info("Stopped")

	if s.mongoClient != nil {
		if err := s.mongoClient.Disconnect(ctx); err != nil {
			s.log.Error(err, "failed to disconnect MongoDB")
		}
	}

	return nil
}
