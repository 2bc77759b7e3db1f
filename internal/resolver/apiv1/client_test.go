package apiv1

import (
	"context"
	"errors"
	"testing"
	"trustresolver/pkg/helpers"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResults struct {
	results map[string]*model.TrustResult
	err     error
}

func (f *fakeResults) Get(ctx context.Context, did string) (*model.TrustResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	result, ok := f.results[did]
	if !ok {
		return nil, helpers.ErrNoTrustResult
	}
	return result, nil
}

type fakeIndexer struct {
	permissions map[string]*model.Permission
	registries  map[string]*model.TrustRegistry
	byDID       map[string][]*model.Permission
	schemas     map[int64]*model.CredentialSchema
	block       int64
}

func (f *fakeIndexer) ActivePermission(ctx context.Context, did string, schemaID int64, permType model.PermissionType) (*model.Permission, error) {
	key := did + ":" + string(permType)
	perm, ok := f.permissions[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return perm, nil
}

func (f *fakeIndexer) TrustRegistryByDID(ctx context.Context, did string) (*model.TrustRegistry, error) {
	reg, ok := f.registries[did]
	if !ok {
		return nil, errors.New("not found")
	}
	return reg, nil
}

func (f *fakeIndexer) PermissionsByDID(ctx context.Context, did string) ([]*model.Permission, error) {
	return f.byDID[did], nil
}

func (f *fakeIndexer) SchemaByID(ctx context.Context, id int64) (*model.CredentialSchema, error) {
	schema, ok := f.schemas[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return schema, nil
}

func (f *fakeIndexer) CurrentBlock(ctx context.Context) (int64, error) {
	return f.block, nil
}

type fakeState struct {
	block int64
}

func (f *fakeState) LastProcessedBlock(ctx context.Context) (int64, error) {
	return f.block, nil
}

func newTestClient(t *testing.T, results *fakeResults, idx *fakeIndexer, state *fakeState) *Client {
	t.Helper()
	if results == nil {
		results = &fakeResults{results: map[string]*model.TrustResult{}}
	}
	if idx == nil {
		idx = &fakeIndexer{}
	}
	if state == nil {
		state = &fakeState{}
	}
	c, err := New(context.Background(), &model.Cfg{}, results, idx, state, nil, nil, logger.NewSimple("test"))
	require.NoError(t, err)
	return c
}

func TestVerifiableServiceReturnsStoredResult(t *testing.T) {
	results := &fakeResults{results: map[string]*model.TrustResult{
		"did:web:alice.example.com": {DID: "did:web:alice.example.com", TrustStatus: model.TrustStatus("TRUSTED")},
	}}
	c := newTestClient(t, results, nil, nil)

	result, err := c.VerifiableService(context.Background(), "did:web:alice.example.com")
	require.NoError(t, err)
	assert.Equal(t, "did:web:alice.example.com", result.DID)
}

func TestVerifiableServiceMissing(t *testing.T) {
	c := newTestClient(t, nil, nil, nil)

	_, err := c.VerifiableService(context.Background(), "did:web:ghost.example.com")
	assert.Error(t, err)
}

func TestIssuerAuthorizationNoPermissionNotFound(t *testing.T) {
	c := newTestClient(t, nil, &fakeIndexer{permissions: map[string]*model.Permission{}}, nil)

	_, err := c.IssuerAuthorization(context.Background(), "did:web:alice.example.com", 5)
	assert.ErrorIs(t, err, helpers.ErrPermissionNotFound)
}

func TestIssuerAuthorizationMissingFee(t *testing.T) {
	idx := &fakeIndexer{permissions: map[string]*model.Permission{
		"did:web:alice.example.com:ISSUER": {ID: 1, GranteeDID: "did:web:alice.example.com"},
	}}
	c := newTestClient(t, nil, idx, nil)

	_, err := c.IssuerAuthorization(context.Background(), "did:web:alice.example.com", 5)
	assert.ErrorIs(t, err, helpers.ErrPermissionFeeRequired)
}

func TestIssuerAuthorizationSuccess(t *testing.T) {
	idx := &fakeIndexer{permissions: map[string]*model.Permission{
		"did:web:alice.example.com:ISSUER": {ID: 1, GranteeDID: "did:web:alice.example.com", IssuanceFee: 100},
	}}
	c := newTestClient(t, nil, idx, nil)

	answer, err := c.IssuerAuthorization(context.Background(), "did:web:alice.example.com", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(100), answer.Fees.IssuanceFee)
}

func TestVerifierAuthorizationNoFeeRequired(t *testing.T) {
	idx := &fakeIndexer{permissions: map[string]*model.Permission{
		"did:web:bob.example.com:VERIFIER": {ID: 2, GranteeDID: "did:web:bob.example.com"},
	}}
	c := newTestClient(t, nil, idx, nil)

	answer, err := c.VerifierAuthorization(context.Background(), "did:web:bob.example.com", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), answer.Permission.ID)
}

func TestEcosystemParticipantScopesToRegistry(t *testing.T) {
	idx := &fakeIndexer{
		registries: map[string]*model.TrustRegistry{
			"did:web:ecosystem.example.com": {ID: 3, DID: "did:web:ecosystem.example.com"},
		},
		byDID: map[string][]*model.Permission{
			"did:web:alice.example.com": {
				{ID: 1, SchemaID: 5},
				{ID: 2, SchemaID: 6},
			},
		},
		schemas: map[int64]*model.CredentialSchema{
			5: {ID: 5, TrID: 3},
			6: {ID: 6, TrID: 9},
		},
	}
	c := newTestClient(t, nil, idx, nil)

	answer, err := c.EcosystemParticipant(context.Background(), "did:web:ecosystem.example.com", "did:web:alice.example.com")
	require.NoError(t, err)
	require.Len(t, answer.Permissions, 1)
	assert.Equal(t, int64(1), answer.Permissions[0].ID)
}

func TestEcosystemParticipantNoneScoped(t *testing.T) {
	idx := &fakeIndexer{
		registries: map[string]*model.TrustRegistry{
			"did:web:ecosystem.example.com": {ID: 3, DID: "did:web:ecosystem.example.com"},
		},
		byDID: map[string][]*model.Permission{
			"did:web:alice.example.com": {{ID: 2, SchemaID: 6}},
		},
		schemas: map[int64]*model.CredentialSchema{
			6: {ID: 6, TrID: 9},
		},
	}
	c := newTestClient(t, nil, idx, nil)

	_, err := c.EcosystemParticipant(context.Background(), "did:web:ecosystem.example.com", "did:web:alice.example.com")
	assert.ErrorIs(t, err, helpers.ErrPermissionNotFound)
}

func TestHealthReportsRoleAndCheckpoint(t *testing.T) {
	c := newTestClient(t, nil, nil, &fakeState{block: 42})

	status, err := c.Health(context.Background(), "leader")
	require.NoError(t, err)
	assert.Equal(t, "leader", status.Role)
	assert.Equal(t, int64(42), status.LastProcessedBlock)
	assert.True(t, status.StoreHealthy)
	assert.True(t, status.CacheHealthy)
}
