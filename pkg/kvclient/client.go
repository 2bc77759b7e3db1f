package kvclient

import (
	"context"
	"sync"
	"time"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
	"trustresolver/pkg/trace"

	"github.com/redis/go-redis/v9"
)

// StatusProbe is the result of the most recent health check against the key-value store.
type StatusProbe struct {
	Name    string
	Healthy bool
	Message string
}

// Client wraps the redis connection used for the leader-election fast path and the object cache.
type Client struct {
	RedisClient *redis.Client
	cfg         *model.Cfg
	log         *logger.Log
	tp          *trace.Tracer

	mu            sync.Mutex
	nextCheck     time.Time
	previousProbe *StatusProbe
}

// New creates a new instance of kv
func New(ctx context.Context, cfg *model.Cfg, tracer *trace.Tracer, log *logger.Log) (*Client, error) {
	c := &Client{
		cfg: cfg,
		log: log,
		tp:  tracer,
	}

	c.RedisClient = redis.NewClient(&redis.Options{
		Addr:     cfg.Common.KeyValue.Addr,
		Password: cfg.Common.KeyValue.Password,
		DB:       cfg.Common.KeyValue.DB,
	})

	c.log.Info("Started")

	return c, nil
}

// Status returns the status of the key-value store, caching the result for 10 seconds.
func (c *Client) Status(ctx context.Context) *StatusProbe {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.nextCheck) {
		return c.previousProbe
	}

	probe := &StatusProbe{Name: "kv", Healthy: true, Message: "OK"}

	if _, err := c.RedisClient.Ping(ctx).Result(); err != nil {
		probe.Healthy = false
		probe.Message = err.Error()
	}

	c.previousProbe = probe
	c.nextCheck = time.Now().Add(10 * time.Second)

	return probe
}

// Close closes the connection to the database
func (c *Client) Close(ctx context.Context) error {
	return c.RedisClient.Close()
}
