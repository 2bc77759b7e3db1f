package vsreq

import (
	"context"
	"testing"
	"trustresolver/pkg/model"

	"github.com/stretchr/testify/assert"
)

func ctxWithEcosystem(eco string) *model.EvaluationContext {
	return model.NewEvaluationContext(100, 3600, []string{eco})
}

func TestEvaluateSelfIssuedServiceNeedsCoPresentedOrg(t *testing.T) {
	did := "did:web:alice.example.com"
	creds := []model.CredentialEvaluation{
		{Result: model.CredentialValid, EcsType: model.ECSService, EcosystemDID: "did:web:eco.example.com", IssuerDID: did, PresenterDID: did},
		{Result: model.CredentialValid, EcsType: model.ECSOrg, EcosystemDID: "did:web:eco.example.com", IssuerDID: "did:web:certify.example.com", PresenterDID: did},
	}

	status := New().Evaluate(context.Background(), did, creds, ctxWithEcosystem("did:web:eco.example.com"), nil)
	assert.Equal(t, model.TrustStatusTrusted, status)
}

func TestEvaluateSelfIssuedServiceWithoutOrgIsUntrusted(t *testing.T) {
	did := "did:web:alice.example.com"
	creds := []model.CredentialEvaluation{
		{Result: model.CredentialValid, EcsType: model.ECSService, EcosystemDID: "did:web:eco.example.com", IssuerDID: did, PresenterDID: did},
	}

	status := New().Evaluate(context.Background(), did, creds, ctxWithEcosystem("did:web:eco.example.com"), nil)
	assert.Equal(t, model.TrustStatusUntrusted, status)
}

func TestEvaluateExternallyIssuedServiceRecurses(t *testing.T) {
	did := "did:web:alice.example.com"
	issuer := "did:web:certify.example.com"
	creds := []model.CredentialEvaluation{
		{Result: model.CredentialValid, EcsType: model.ECSService, EcosystemDID: "did:web:eco.example.com", IssuerDID: issuer, PresenterDID: did},
	}

	resolve := func(ctx context.Context, resolveDID string) (*model.TrustResult, error) {
		assert.Equal(t, issuer, resolveDID)
		return &model.TrustResult{
			DID: issuer,
			Credentials: []model.CredentialEvaluation{
				{Result: model.CredentialValid, EcsType: model.ECSOrg, PresenterDID: issuer},
			},
		}, nil
	}

	status := New().Evaluate(context.Background(), did, creds, ctxWithEcosystem("did:web:eco.example.com"), resolve)
	assert.Equal(t, model.TrustStatusTrusted, status)
}

func TestEvaluateDropsDisallowedEcosystems(t *testing.T) {
	did := "did:web:alice.example.com"
	creds := []model.CredentialEvaluation{
		{Result: model.CredentialValid, EcsType: model.ECSService, EcosystemDID: "did:web:not-allowed.example.com", IssuerDID: did, PresenterDID: did},
	}

	status := New().Evaluate(context.Background(), did, creds, ctxWithEcosystem("did:web:eco.example.com"), nil)
	assert.Equal(t, model.TrustStatusUntrusted, status)
}

func TestEvaluatePartialWhenOnlySomeEcosystemsSatisfied(t *testing.T) {
	did := "did:web:alice.example.com"
	creds := []model.CredentialEvaluation{
		{Result: model.CredentialValid, EcsType: model.ECSService, EcosystemDID: "did:web:eco-a.example.com", IssuerDID: did, PresenterDID: did},
		{Result: model.CredentialValid, EcsType: model.ECSOrg, EcosystemDID: "did:web:eco-a.example.com", PresenterDID: did},
		{Result: model.CredentialValid, EcsType: model.ECSService, EcosystemDID: "did:web:eco-b.example.com", IssuerDID: did, PresenterDID: did},
	}

	evalCtx := model.NewEvaluationContext(100, 3600, []string{"did:web:eco-a.example.com", "did:web:eco-b.example.com"})
	status := New().Evaluate(context.Background(), did, creds, evalCtx, nil)
	assert.Equal(t, model.TrustStatusPartial, status)
}
