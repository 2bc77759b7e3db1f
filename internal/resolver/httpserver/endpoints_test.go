package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"trustresolver/internal/resolver/apiv1"
	"trustresolver/pkg/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApiv1 struct {
	trustResult *model.TrustResult
	issuerAns   *apiv1.PermissionAnswer
	verifierAns *apiv1.PermissionAnswer
	participant *apiv1.ParticipantAnswer
	health      *apiv1.HealthStatus
	err         error

	gotDID            string
	gotSchemaID       int64
	gotEcosystemDID   string
	gotParticipantDID string
}

func (f *fakeApiv1) VerifiableService(ctx context.Context, did string) (*model.TrustResult, error) {
	f.gotDID = did
	return f.trustResult, f.err
}

func (f *fakeApiv1) IssuerAuthorization(ctx context.Context, did string, schemaID int64) (*apiv1.PermissionAnswer, error) {
	f.gotDID, f.gotSchemaID = did, schemaID
	return f.issuerAns, f.err
}

func (f *fakeApiv1) VerifierAuthorization(ctx context.Context, did string, schemaID int64) (*apiv1.PermissionAnswer, error) {
	f.gotDID, f.gotSchemaID = did, schemaID
	return f.verifierAns, f.err
}

func (f *fakeApiv1) EcosystemParticipant(ctx context.Context, ecosystemDID, participantDID string) (*apiv1.ParticipantAnswer, error) {
	f.gotEcosystemDID, f.gotParticipantDID = ecosystemDID, participantDID
	return f.participant, f.err
}

func (f *fakeApiv1) Health(ctx context.Context, role string) (*apiv1.HealthStatus, error) {
	return f.health, f.err
}

func newTestGinContext(params gin.Params) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = params
	return c
}

func TestEndpointVerifiableServicePassesDID(t *testing.T) {
	fake := &fakeApiv1{trustResult: &model.TrustResult{DID: "did:web:alice.example.com"}}
	s := &Service{apiv1: fake}

	c := newTestGinContext(gin.Params{{Key: "did", Value: "did:web:alice.example.com"}})
	res, err := s.endpointVerifiableService(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "did:web:alice.example.com", fake.gotDID)
	assert.Equal(t, fake.trustResult, res)
}

func TestEndpointIssuerAuthorizationParsesSchemaID(t *testing.T) {
	fake := &fakeApiv1{issuerAns: &apiv1.PermissionAnswer{}}
	s := &Service{apiv1: fake}

	c := newTestGinContext(gin.Params{
		{Key: "did", Value: "did:web:alice.example.com"},
		{Key: "schemaId", Value: "5"},
	})
	_, err := s.endpointIssuerAuthorization(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, int64(5), fake.gotSchemaID)
}

func TestEndpointIssuerAuthorizationRejectsBadSchemaID(t *testing.T) {
	s := &Service{apiv1: &fakeApiv1{}}

	c := newTestGinContext(gin.Params{
		{Key: "did", Value: "did:web:alice.example.com"},
		{Key: "schemaId", Value: "not-a-number"},
	})
	_, err := s.endpointIssuerAuthorization(context.Background(), c)
	assert.Error(t, err)
}

func TestEndpointEcosystemParticipantPassesBothDIDs(t *testing.T) {
	fake := &fakeApiv1{participant: &apiv1.ParticipantAnswer{}}
	s := &Service{apiv1: fake}

	c := newTestGinContext(gin.Params{
		{Key: "did", Value: "did:web:ecosystem.example.com"},
		{Key: "participantDid", Value: "did:web:alice.example.com"},
	})
	_, err := s.endpointEcosystemParticipant(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "did:web:ecosystem.example.com", fake.gotEcosystemDID)
	assert.Equal(t, "did:web:alice.example.com", fake.gotParticipantDID)
}

func TestEndpointHealthUsesConfiguredRole(t *testing.T) {
	fake := &fakeApiv1{health: &apiv1.HealthStatus{Role: "leader"}}
	s := &Service{apiv1: fake, cfg: &model.Cfg{Resolver: model.Resolver{Role: "leader"}}}

	res, err := s.endpointHealth(context.Background(), newTestGinContext(nil))
	require.NoError(t, err)
	assert.Equal(t, fake.health, res)
}
