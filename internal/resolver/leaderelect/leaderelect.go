// Package leaderelect elects a single leader among resolver instances configured with
// role=leader. Only the leader runs the polling loop and mutates durable state; every other
// instance serves reads. Election uses a Redis SET NX PX as the fast path, with the Mongo
// leader_lock document as the durable record of record and fallback when Redis is unreachable.
package leaderelect

import (
	"context"
	"time"
	"trustresolver/internal/resolver/db"
	"trustresolver/pkg/helpers"
	"trustresolver/pkg/kvclient"
	"trustresolver/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisLockKey = "trustresolver:leader_lock"

// Elector holds the advisory leader lock and renews it on a ticker until Close is called.
type Elector struct {
	kv       *kvclient.Client
	db       *db.Service
	log      *logger.Log
	holderID string
	lease    time.Duration

	isLeader bool
}

// New creates an Elector identified by a random holder ID, unique to this process.
func New(kv *kvclient.Client, store *db.Service, lease time.Duration, log *logger.Log) *Elector {
	return &Elector{
		kv:       kv,
		db:       store,
		log:      log.New("leaderelect"),
		holderID: uuid.NewString(),
		lease:    lease,
	}
}

// TryAcquire attempts to become leader via the Redis fast path, falling back to the Mongo
// leader_lock document when Redis is unreachable.
func (e *Elector) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := e.tryRedis(ctx)
	if err == nil {
		e.isLeader = acquired
		return acquired, nil
	}

	e.log.Error(err, "redis leader lock unavailable, falling back to durable lock")

	acquired, err = e.db.LeaderLock.TryAcquire(ctx, e.holderID, e.lease)
	if err != nil {
		return false, err
	}

	e.isLeader = acquired
	return acquired, nil
}

// Renew extends the lease. It returns helpers.ErrLeaderLockLost if this instance is no longer
// the recorded holder, at which point the caller must stop any leader-only work immediately.
func (e *Elector) Renew(ctx context.Context) error {
	renewedRedis, err := e.renewRedis(ctx)
	if err != nil {
		e.log.Error(err, "redis leader lock renew failed, falling back to durable lock")
	} else if renewedRedis {
		e.isLeader = true
		return nil
	}

	renewed, err := e.db.LeaderLock.Renew(ctx, e.holderID, e.lease)
	if err != nil {
		return err
	}

	if !renewed {
		e.isLeader = false
		return helpers.ErrLeaderLockLost
	}

	e.isLeader = true
	return nil
}

// Release gives up leadership, letting another instance acquire without waiting for TTL expiry.
func (e *Elector) Release(ctx context.Context) error {
	e.isLeader = false

	if err := e.kv.RedisClient.Del(ctx, redisLockKey).Err(); err != nil {
		e.log.Error(err, "redis leader lock release failed")
	}

	return e.db.LeaderLock.Release(ctx, e.holderID)
}

// IsLeader reports whether this instance currently holds the lock, as of the last TryAcquire/Renew.
func (e *Elector) IsLeader() bool {
	return e.isLeader
}

func (e *Elector) tryRedis(ctx context.Context) (bool, error) {
	ok, err := e.kv.RedisClient.SetNX(ctx, redisLockKey, e.holderID, e.lease).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	holder, err := e.kv.RedisClient.Get(ctx, redisLockKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return holder == e.holderID, nil
}

func (e *Elector) renewRedis(ctx context.Context) (bool, error) {
	holder, err := e.kv.RedisClient.Get(ctx, redisLockKey).Result()
	if err == redis.Nil {
		return e.tryRedis(ctx)
	}
	if err != nil {
		return false, err
	}

	if holder != e.holderID {
		return false, nil
	}

	return e.kv.RedisClient.Expire(ctx, redisLockKey, e.lease).Result()
}
