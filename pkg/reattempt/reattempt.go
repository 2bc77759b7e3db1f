// Package reattempt schedules retries for resources whose processing failed transiently, on top
// of the durable reattemptable-resource collection.
package reattempt

import (
	"context"
	"errors"
	"time"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
)

// Store is the durable persistence surface a Scheduler needs.
type Store interface {
	Upsert(ctx context.Context, r *model.ReattemptableResource) error
	Delete(ctx context.Context, resourceID string, resourceType model.ResourceType) error
	DueForRetry(ctx context.Context, minGap time.Duration, retention time.Duration) ([]*model.ReattemptableResource, error)
	PruneExpired(ctx context.Context, retention time.Duration) ([]*model.ReattemptableResource, error)
}

// Scheduler records processing failures and surfaces which resources are due for another attempt.
type Scheduler struct {
	store Store
	log   *logger.Log
}

// New creates a Scheduler.
func New(store Store, log *logger.Log) *Scheduler {
	return &Scheduler{store: store, log: log.New("reattempt")}
}

type permanentError struct{ cause error }

// Permanent wraps err to mark it as non-retryable: RecordFailure will classify the resource as
// ErrorPermanent instead of the default ErrorTransient, so it is excluded from DueForRetry but
// still pruned once its retention window elapses.
func Permanent(err error) error {
	return &permanentError{cause: err}
}

func (p *permanentError) Error() string { return p.cause.Error() }
func (p *permanentError) Unwrap() error { return p.cause }

func classify(err error) model.ErrorType {
	var perm *permanentError
	if errors.As(err, &perm) {
		return model.ErrorPermanent
	}
	return model.ErrorTransient
}

// RecordFailure upserts resourceID's failure record, bumping RetryCount and LastRetryAt if
// existing is non-nil (the resource already failed before), or starting a fresh record otherwise.
func (s *Scheduler) RecordFailure(ctx context.Context, existing *model.ReattemptableResource, resourceID string, resourceType model.ResourceType, cause error) (*model.ReattemptableResource, error) {
	now := time.Now().UTC()

	resource := &model.ReattemptableResource{
		ResourceID:     resourceID,
		ResourceType:   resourceType,
		FirstFailureAt: now,
		LastRetryAt:    now,
		ErrorType:      classify(cause),
		RetryCount:     0,
	}
	if existing != nil {
		resource.FirstFailureAt = existing.FirstFailureAt
		resource.RetryCount = existing.RetryCount + 1
	}

	if err := s.store.Upsert(ctx, resource); err != nil {
		s.log.Info("failed to record reattemptable resource", "resourceId", resourceID, "error", err.Error())
		return nil, err
	}

	return resource, nil
}

// Succeeded clears resourceID's failure record once processing succeeds.
func (s *Scheduler) Succeeded(ctx context.Context, resourceID string, resourceType model.ResourceType) error {
	return s.store.Delete(ctx, resourceID, resourceType)
}

// Due returns the transient-failure resources eligible for another attempt: at least minGap since
// their last attempt, and still within the retention window since their first failure.
func (s *Scheduler) Due(ctx context.Context, minGap, retention time.Duration) ([]*model.ReattemptableResource, error) {
	return s.store.DueForRetry(ctx, minGap, retention)
}

// Prune removes resources (transient or permanent) whose retention window has elapsed and returns
// them, so the caller can escalate any that name a DID to UNTRUSTED.
func (s *Scheduler) Prune(ctx context.Context, retention time.Duration) ([]*model.ReattemptableResource, error) {
	expired, err := s.store.PruneExpired(ctx, retention)
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		s.log.Info("pruned expired reattemptable resources", "count", len(expired))
	}
	return expired, nil
}
