package trustresolver

import (
	"context"
	"testing"
	"time"
	"trustresolver/pkg/helpers"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
	"trustresolver/pkg/vsreq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDIDResolver struct {
	calls int
	doc   *model.DIDDocument
	err   error
}

func (f *fakeDIDResolver) Resolve(ctx context.Context, did string) (*model.DIDDocument, error) {
	f.calls++
	return f.doc, f.err
}

type fakeDereferencer struct {
	presentations []model.VerifiablePresentation
	errs          []model.VPDereferenceError
}

func (f *fakeDereferencer) Dereference(ctx context.Context, doc *model.DIDDocument) ([]model.VerifiablePresentation, []model.VPDereferenceError) {
	return f.presentations, f.errs
}

type fakeCredentialEvaluator struct {
	eval    *model.CredentialEvaluation
	failure *model.FailedCredential
}

func (f *fakeCredentialEvaluator) Evaluate(ctx context.Context, cred *model.VerifiableCredential, presenterDID string, evalCtx *model.EvaluationContext) (*model.CredentialEvaluation, *model.FailedCredential) {
	if f.failure != nil {
		return nil, f.failure
	}
	eval := *f.eval
	eval.PresenterDID = presenterDID
	return &eval, nil
}

type fakeVSEvaluator struct {
	status model.TrustStatus
}

func (f *fakeVSEvaluator) Evaluate(ctx context.Context, did string, credentials []model.CredentialEvaluation, evalCtx *model.EvaluationContext, resolve vsreq.ResolveFunc) model.TrustStatus {
	return f.status
}

type fakeStore struct {
	upserts int
	get     *model.TrustResult
}

func (f *fakeStore) Get(ctx context.Context, did string) (*model.TrustResult, error) {
	return f.get, nil
}

func (f *fakeStore) Upsert(ctx context.Context, result *model.TrustResult) error {
	f.upserts++
	return nil
}

func testLog() *logger.Log {
	return logger.NewSimple("test")
}

func TestResolveAggregatesCredentialsAndVPErrors(t *testing.T) {
	dids := &fakeDIDResolver{doc: &model.DIDDocument{ID: "did:web:alice.example.com"}}
	vps := &fakeDereferencer{
		presentations: []model.VerifiablePresentation{
			{Holder: "did:web:alice.example.com", Credentials: []model.VerifiableCredential{{}}},
		},
		errs: []model.VPDereferenceError{{URL: "https://alice.example.com/bad", Error: "404"}},
	}
	creds := &fakeCredentialEvaluator{eval: &model.CredentialEvaluation{Result: model.CredentialValid, EcsType: model.ECSService}}
	vs := &fakeVSEvaluator{status: model.TrustStatusTrusted}

	r := New(dids, vps, creds, vs, nil, testLog())
	evalCtx := model.NewEvaluationContext(100, 3600, nil)

	result, err := r.Resolve(context.Background(), "did:web:alice.example.com", evalCtx)
	require.NoError(t, err)
	assert.Equal(t, model.TrustStatusTrusted, result.TrustStatus)
	assert.True(t, result.Production)
	require.Len(t, result.Credentials, 1)
	assert.Equal(t, "did:web:alice.example.com", result.Credentials[0].PresenterDID)
	require.Len(t, result.VPDereferenceErrors, 1)
	assert.Equal(t, int64(100), result.EvaluatedAtBlock)
}

func TestResolveMemoizesWithinContext(t *testing.T) {
	dids := &fakeDIDResolver{doc: &model.DIDDocument{ID: "did:web:alice.example.com"}}
	vps := &fakeDereferencer{}
	creds := &fakeCredentialEvaluator{eval: &model.CredentialEvaluation{Result: model.CredentialIgnored}}
	vs := &fakeVSEvaluator{status: model.TrustStatusUntrusted}

	r := New(dids, vps, creds, vs, nil, testLog())
	evalCtx := model.NewEvaluationContext(100, 3600, nil)

	first, err := r.Resolve(context.Background(), "did:web:alice.example.com", evalCtx)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "did:web:alice.example.com", evalCtx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dids.calls)
}

func TestResolveDetectsCircularReference(t *testing.T) {
	dids := &fakeDIDResolver{doc: &model.DIDDocument{ID: "did:web:alice.example.com"}}
	vps := &fakeDereferencer{}
	creds := &fakeCredentialEvaluator{eval: &model.CredentialEvaluation{Result: model.CredentialIgnored}}
	vs := &fakeVSEvaluator{status: model.TrustStatusUntrusted}

	r := New(dids, vps, creds, vs, nil, testLog())
	evalCtx := model.NewEvaluationContext(100, 3600, nil)
	evalCtx.VisitedDIDs["did:web:alice.example.com"] = struct{}{}

	result, err := r.Resolve(context.Background(), "did:web:alice.example.com", evalCtx)
	require.NoError(t, err)
	assert.Equal(t, model.TrustStatusUntrusted, result.TrustStatus)
	require.Len(t, result.FailedCredentials, 1)
	assert.Equal(t, model.ErrCodeCircularReference, result.FailedCredentials[0].ErrorCode)
	assert.Equal(t, 0, dids.calls)
}

func TestResolveHandlesPermanentDIDResolutionFailure(t *testing.T) {
	dids := &fakeDIDResolver{err: helpers.ErrDIDResolutionPermanent}
	vps := &fakeDereferencer{}
	creds := &fakeCredentialEvaluator{}
	vs := &fakeVSEvaluator{status: model.TrustStatusUntrusted}
	store := &fakeStore{}

	r := New(dids, vps, creds, vs, store, testLog())
	evalCtx := model.NewEvaluationContext(100, 3600, nil)

	result, err := r.Resolve(context.Background(), "did:web:ghost.example.com", evalCtx)
	require.NoError(t, err)
	assert.Equal(t, model.TrustStatusUntrusted, result.TrustStatus)
	require.Len(t, result.FailedCredentials, 1)
	assert.Equal(t, model.ErrCodeDIDResolutionFailed, result.FailedCredentials[0].ErrorCode)
	assert.Equal(t, 1, store.upserts)
}

func TestResolveSurfacesTransientDIDResolutionFailure(t *testing.T) {
	dids := &fakeDIDResolver{err: helpers.ErrDIDResolutionFailed}
	vps := &fakeDereferencer{}
	creds := &fakeCredentialEvaluator{}
	vs := &fakeVSEvaluator{status: model.TrustStatusUntrusted}
	store := &fakeStore{}

	r := New(dids, vps, creds, vs, store, testLog())
	evalCtx := model.NewEvaluationContext(100, 3600, nil)

	result, err := r.Resolve(context.Background(), "did:web:ghost.example.com", evalCtx)
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, store.upserts)
	_, stillVisited := evalCtx.VisitedDIDs["did:web:ghost.example.com"]
	assert.False(t, stillVisited)
}

func TestResolveUsesFreshCachedResult(t *testing.T) {
	dids := &fakeDIDResolver{doc: &model.DIDDocument{ID: "did:web:alice.example.com"}}
	vps := &fakeDereferencer{}
	creds := &fakeCredentialEvaluator{}
	vs := &fakeVSEvaluator{status: model.TrustStatusUntrusted}
	cached := &model.TrustResult{
		DID:              "did:web:alice.example.com",
		TrustStatus:      model.TrustStatusTrusted,
		EvaluatedAtBlock: 100,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}
	store := &fakeStore{get: cached}

	r := New(dids, vps, creds, vs, store, testLog())
	evalCtx := model.NewEvaluationContext(100, 3600, nil)

	result, err := r.Resolve(context.Background(), "did:web:alice.example.com", evalCtx)
	require.NoError(t, err)
	assert.Same(t, cached, result)
	assert.Equal(t, 0, dids.calls)
}
