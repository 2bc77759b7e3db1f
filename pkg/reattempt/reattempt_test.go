package reattempt

import (
	"context"
	"errors"
	"testing"
	"time"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	upserted []*model.ReattemptableResource
	deleted  []string
	due      []*model.ReattemptableResource
	pruned   []*model.ReattemptableResource
}

func (f *fakeStore) Upsert(ctx context.Context, r *model.ReattemptableResource) error {
	f.upserted = append(f.upserted, r)
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, resourceID string, resourceType model.ResourceType) error {
	f.deleted = append(f.deleted, resourceID)
	return nil
}

func (f *fakeStore) DueForRetry(ctx context.Context, minGap, retention time.Duration) ([]*model.ReattemptableResource, error) {
	return f.due, nil
}

func (f *fakeStore) PruneExpired(ctx context.Context, retention time.Duration) ([]*model.ReattemptableResource, error) {
	return f.pruned, nil
}

func TestRecordFailureStartsFreshRecord(t *testing.T) {
	store := &fakeStore{}
	s := New(store, logger.NewSimple("test"))

	resource, err := s.RecordFailure(context.Background(), nil, "did:web:alice.example.com", model.ResourceDIDDoc, errors.New("timeout"))
	require.NoError(t, err)
	assert.Equal(t, model.ErrorTransient, resource.ErrorType)
	assert.Equal(t, 0, resource.RetryCount)
	require.Len(t, store.upserted, 1)
}

func TestRecordFailureBumpsRetryCount(t *testing.T) {
	store := &fakeStore{}
	s := New(store, logger.NewSimple("test"))

	existing := &model.ReattemptableResource{
		ResourceID:     "did:web:alice.example.com",
		ResourceType:   model.ResourceDIDDoc,
		FirstFailureAt: time.Now().UTC().Add(-time.Hour),
		RetryCount:     2,
	}

	resource, err := s.RecordFailure(context.Background(), existing, "did:web:alice.example.com", model.ResourceDIDDoc, errors.New("timeout"))
	require.NoError(t, err)
	assert.Equal(t, 3, resource.RetryCount)
	assert.Equal(t, existing.FirstFailureAt, resource.FirstFailureAt)
}

func TestRecordFailureClassifiesPermanentErrors(t *testing.T) {
	store := &fakeStore{}
	s := New(store, logger.NewSimple("test"))

	resource, err := s.RecordFailure(context.Background(), nil, "did:web:alice.example.com", model.ResourceVP, Permanent(errors.New("malformed document")))
	require.NoError(t, err)
	assert.Equal(t, model.ErrorPermanent, resource.ErrorType)
}

func TestSucceededDeletesRecord(t *testing.T) {
	store := &fakeStore{}
	s := New(store, logger.NewSimple("test"))

	err := s.Succeeded(context.Background(), "did:web:alice.example.com", model.ResourceDIDDoc)
	require.NoError(t, err)
	assert.Equal(t, []string{"did:web:alice.example.com"}, store.deleted)
}

func TestDueDelegatesToStore(t *testing.T) {
	want := []*model.ReattemptableResource{{ResourceID: "did:web:alice.example.com"}}
	store := &fakeStore{due: want}
	s := New(store, logger.NewSimple("test"))

	got, err := s.Due(context.Background(), time.Minute, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPruneReturnsExpiredResources(t *testing.T) {
	expired := []*model.ReattemptableResource{
		{ResourceID: "did:web:gone.example.com", ResourceType: model.ResourceDIDDoc},
	}
	store := &fakeStore{pruned: expired}
	s := New(store, logger.NewSimple("test"))

	got, err := s.Prune(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, expired, got)
}
