// Package vsreq evaluates whether a DID's valid credentials satisfy the Verifiable-Service trust
// requirements (VS-REQ-2/3/4) for each ecosystem it participates in, and aggregates the per-ecosystem
// verdicts into one TrustStatus.
package vsreq

import (
	"context"
	"trustresolver/pkg/model"
)

// ResolveFunc recursively resolves trust for another DID within the same evaluation tree, so
// memoization and cycle detection carry over. The trust resolver supplies this; vsreq never
// imports it directly, to avoid a dependency cycle.
type ResolveFunc func(ctx context.Context, did string) (*model.TrustResult, error)

// Evaluator runs the VS-requirement aggregation.
type Evaluator struct{}

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate groups did's valid credentials by ecosystem, drops ecosystems outside evalCtx's
// allowlist, checks VS-REQ-2/3/4 for each remaining group, and aggregates: all satisfied → TRUSTED,
// some satisfied → PARTIAL, none (or no eligible group at all) → UNTRUSTED.
func (e *Evaluator) Evaluate(ctx context.Context, did string, credentials []model.CredentialEvaluation, evalCtx *model.EvaluationContext, resolve ResolveFunc) model.TrustStatus {
	groups := groupByEcosystem(credentials, evalCtx)
	if len(groups) == 0 {
		return model.TrustStatusUntrusted
	}

	satisfied := 0
	for _, group := range groups {
		if e.ecosystemSatisfied(ctx, did, group, evalCtx, resolve) {
			satisfied++
		}
	}

	switch {
	case satisfied == len(groups):
		return model.TrustStatusTrusted
	case satisfied > 0:
		return model.TrustStatusPartial
	default:
		return model.TrustStatusUntrusted
	}
}

func groupByEcosystem(credentials []model.CredentialEvaluation, evalCtx *model.EvaluationContext) map[string][]model.CredentialEvaluation {
	groups := make(map[string][]model.CredentialEvaluation)
	for _, c := range credentials {
		if c.Result != model.CredentialValid || c.EcosystemDID == "" {
			continue
		}
		if evalCtx != nil && !evalCtx.IsEcosystemAllowed(c.EcosystemDID) {
			continue
		}
		groups[c.EcosystemDID] = append(groups[c.EcosystemDID], c)
	}
	return groups
}

// ecosystemSatisfied checks VS-REQ-2/3/4 for one ecosystem group of DID did's valid credentials.
func (e *Evaluator) ecosystemSatisfied(ctx context.Context, did string, group []model.CredentialEvaluation, evalCtx *model.EvaluationContext, resolve ResolveFunc) bool {
	service := firstOfType(group, model.ECSService)
	if service == nil {
		// VS-REQ-2: an ecosystem with no ECS-SERVICE credential is unsatisfied.
		return false
	}

	if service.IssuerDID == did {
		// VS-REQ-3: self-issued ECS-SERVICE needs a co-presented ECS-ORG/ECS-PERSONA by the same DID.
		return hasOrgOrPersonaPresentedBy(group, did)
	}

	// VS-REQ-4: externally issued ECS-SERVICE; the issuer must itself carry a VALID ECS-ORG/ECS-PERSONA
	// credential presented by the issuer, per its own trust resolution.
	issuerResult, err := resolve(ctx, service.IssuerDID)
	if err != nil || issuerResult == nil {
		return false
	}

	return hasOrgOrPersonaPresentedBy(issuerResult.Credentials, service.IssuerDID)
}

func firstOfType(group []model.CredentialEvaluation, ecsType model.ECSType) *model.CredentialEvaluation {
	for i := range group {
		if group[i].EcsType == ecsType {
			return &group[i]
		}
	}
	return nil
}

func hasOrgOrPersonaPresentedBy(group []model.CredentialEvaluation, presenterDID string) bool {
	for _, c := range group {
		if c.Result != model.CredentialValid {
			continue
		}
		if c.EcsType != model.ECSOrg && c.EcsType != model.ECSPersona {
			continue
		}
		if c.PresenterDID == presenterDID {
			return true
		}
	}
	return false
}
