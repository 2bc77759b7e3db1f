package credeval

import (
	"context"
	"trustresolver/pkg/model"
)

// buildPermissionChain builds the evidence chain for a VALID credential: the ISSUER permission
// itself, an optional ISSUER_GRANTOR link (GRANTOR_VALIDATION mode only), and the schema's
// ECOSYSTEM permission. Missing grantor or ecosystem entries are tolerated; only the ISSUER entry
// is required, since the caller already confirmed it exists.
func (e *Evaluator) buildPermissionChain(ctx context.Context, issuerPerm *model.Permission, schema *model.CredentialSchema, evalCtx *model.EvaluationContext) []model.PermissionChainEntry {
	var chain []model.PermissionChainEntry

	chain = append(chain, e.chainEntry(ctx, issuerPerm, evalCtx))

	if schema.IssuerPermManagementMode == model.ManagementGrantorValidation && issuerPerm.ValidatorPermID != nil {
		if grantorPerm, err := e.chain.PermissionByID(ctx, *issuerPerm.ValidatorPermID); err == nil && grantorPerm != nil {
			chain = append(chain, e.chainEntry(ctx, grantorPerm, evalCtx))
		}
	}

	if schema.EcosystemDID != "" {
		if ecosystemPerm, err := e.chain.EcosystemPermission(ctx, schema.EcosystemDID); err == nil && ecosystemPerm != nil {
			chain = append(chain, e.chainEntry(ctx, ecosystemPerm, evalCtx))
		}
	}

	return chain
}

// chainEntry turns one on-chain Permission into a PermissionChainEntry, overriding its deposit
// with the DID's live trust deposit and, when the DID has already been resolved in this evaluation
// tree, filling didIsTrustedVS and the ECS-derived display fields from the memoized TrustResult.
// It never recurses: a DID not already in trustMemo is simply left at its zero value.
func (e *Evaluator) chainEntry(ctx context.Context, perm *model.Permission, evalCtx *model.EvaluationContext) model.PermissionChainEntry {
	entry := model.PermissionChainEntry{
		PermissionID:   perm.ID,
		Type:           perm.Type,
		DID:            perm.GranteeDID,
		Deposit:        perm.Deposit,
		State:          perm.State,
		EffectiveFrom:  perm.EffectiveFrom,
		EffectiveUntil: perm.EffectiveUntil,
	}

	if deposit, err := e.chain.TrustDeposit(ctx, perm.GranteeDID); err == nil {
		entry.Deposit = deposit
	}

	if evalCtx != nil {
		if memoized, ok := evalCtx.TrustMemo[perm.GranteeDID]; ok && memoized != nil {
			entry.DIDIsTrustedVS = memoized.TrustStatus == model.TrustStatusTrusted
			applyECSDisplayFields(&entry, memoized)
		}
	}

	return entry
}

func applyECSDisplayFields(entry *model.PermissionChainEntry, result *model.TrustResult) {
	for _, c := range result.Credentials {
		if c.Result != model.CredentialValid {
			continue
		}
		switch c.EcsType {
		case model.ECSService:
			if name, ok := c.Claims["name"].(string); ok {
				entry.ServiceName = name
			}
		case model.ECSOrg, model.ECSPersona:
			if name, ok := c.Claims["name"].(string); ok {
				entry.OrganizationName = name
			}
			if country, ok := c.Claims["countryCode"].(string); ok {
				entry.CountryCode = country
			}
			if jurisdiction, ok := c.Claims["legalJurisdiction"].(string); ok {
				entry.LegalJurisdiction = jurisdiction
			}
		}
	}
}
