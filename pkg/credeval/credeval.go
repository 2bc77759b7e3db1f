// Package credeval evaluates one dereferenced credential against the on-chain trust registry:
// signature verification, schema resolution, digest-SRI check, ECS classification, issuer
// authorization, and permission-chain construction. It never recurses into trust resolution of
// other DIDs itself; that is the trust resolver's job.
package credeval

import (
	"context"
	"strings"
	"time"
	"trustresolver/pkg/didresolver"
	"trustresolver/pkg/indexer"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
)

// ChainReader is the subset of the indexer/durable-store read surface the evaluator needs. It is
// satisfied by the indexer client directly or by a durable-store-backed cache in front of it.
type ChainReader interface {
	ResolveSchema(ctx context.Context, ref string) (*model.CredentialSchema, error)
	SchemaContent(ctx context.Context, schemaID int64) ([]byte, error)
	ActivePermission(ctx context.Context, did string, schemaID int64, permType model.PermissionType) (*model.Permission, error)
	PermissionByID(ctx context.Context, id int64) (*model.Permission, error)
	EcosystemPermission(ctx context.Context, ecosystemDID string) (*model.Permission, error)
	DigestCreatedAt(ctx context.Context, digestSRI string) (time.Time, bool, error)
	TrustDeposit(ctx context.Context, did string) (int64, error)
}

// DIDResolver is the narrow resolver surface credeval needs to look up verification key material.
type DIDResolver interface {
	Resolve(ctx context.Context, did string) (*model.DIDDocument, error)
}

// Evaluator evaluates credentials against the chain state reachable through a ChainReader.
type Evaluator struct {
	chain            ChainReader
	dids             DIDResolver
	log              *logger.Log
	ecsDigests       model.ECSDigests
	disableDigestSRI bool
}

// New creates an Evaluator.
func New(chain ChainReader, dids DIDResolver, ecsDigests model.ECSDigests, disableDigestSRI bool, log *logger.Log) *Evaluator {
	return &Evaluator{
		chain:            chain,
		dids:             dids,
		log:              log.New("credeval"),
		ecsDigests:       ecsDigests,
		disableDigestSRI: disableDigestSRI,
	}
}

// Evaluate runs the full credential-evaluator pipeline on one credential. Exactly one of the two
// return values is non-nil: a CredentialEvaluation on success (VALID or IGNORED), or a
// FailedCredential on the first step that fails.
func (e *Evaluator) Evaluate(ctx context.Context, cred *model.VerifiableCredential, presenterDID string, evalCtx *model.EvaluationContext) (*model.CredentialEvaluation, *model.FailedCredential) {
	credID := credentialID(cred)

	if err := e.verifySignature(ctx, cred); err != nil {
		e.log.Info("credential signature verification failed", "credentialId", credID, "error", err.Error())
		return nil, &model.FailedCredential{
			CredentialID: credID,
			IssuerDID:    cred.IssuerDID,
			ErrorCode:    model.ErrCodeSignatureInvalid,
			Detail:       err.Error(),
		}
	}

	schema, schemaRef := e.resolveSchemaRef(ctx, cred)

	var schemaContent []byte
	if schema != nil && cred.IsJSONSchemaCred && !e.disableDigestSRI {
		content, err := e.chain.SchemaContent(ctx, schema.ID)
		if err != nil {
			return nil, &model.FailedCredential{
				CredentialID: credID,
				IssuerDID:    cred.IssuerDID,
				ErrorCode:    model.ErrCodeEvaluationError,
				Detail:       err.Error(),
			}
		}
		schemaContent = content

		declaredSRI, _ := cred.ClaimsSubject["digestSRI"].(string)
		if declaredSRI != "" {
			computed := computeSRIWithAlg(schemaContent, sriAlgorithm(declaredSRI))
			if !strings.EqualFold(computed, declaredSRI) {
				return nil, &model.FailedCredential{
					CredentialID: credID,
					IssuerDID:    cred.IssuerDID,
					ErrorCode:    model.ErrCodeDigestSRIMismatch,
					Detail:       "computed " + computed + " != declared " + declaredSRI,
				}
			}
		}
	}

	var ecsType model.ECSType
	if schema != nil {
		if schemaContent == nil {
			content, err := e.chain.SchemaContent(ctx, schema.ID)
			if err == nil {
				schemaContent = content
			}
		}
		if schemaContent != nil {
			ecsType = classifyECS(schemaContent, e.ecsDigests)
		}
	}

	effectiveIssuedAt := e.effectiveIssuanceTime(ctx, cred)

	var permChain []model.PermissionChainEntry
	if schema != nil && cred.IssuerDID != "" {
		issuerPerm, err := e.chain.ActivePermission(ctx, cred.IssuerDID, schema.ID, model.PermissionIssuer)
		if err != nil || issuerPerm == nil {
			return nil, &model.FailedCredential{
				CredentialID: credID,
				IssuerDID:    cred.IssuerDID,
				ErrorCode:    model.ErrCodeIssuerNotAuthorized,
				Detail:       schemaRef,
			}
		}

		permChain = e.buildPermissionChain(ctx, issuerPerm, schema, evalCtx)
	}

	claims := map[string]any{}
	for k, v := range cred.ClaimsSubject {
		claims[k] = v
	}

	result := model.CredentialIgnored
	if ecsType != "" {
		result = model.CredentialValid
	}

	eval := &model.CredentialEvaluation{
		CredentialID:      credID,
		Result:            result,
		EcsType:           ecsType,
		PresenterDID:      presenterDID,
		IssuerDID:         cred.IssuerDID,
		Format:            cred.Format,
		EffectiveIssuedAt: effectiveIssuedAt,
		PermissionChain:   permChain,
		Claims:            claims,
	}
	if schema != nil {
		eval.SchemaID = schema.ID
		eval.EcosystemDID = schema.EcosystemDID
	}
	if declaredSRI, ok := cred.ClaimsSubject["digestSRI"].(string); ok {
		eval.DigestSRI = declaredSRI
	}

	return eval, nil
}

func (e *Evaluator) resolveSchemaRef(ctx context.Context, cred *model.VerifiableCredential) (*model.CredentialSchema, string) {
	ref := cred.SchemaRef
	if ref == "" {
		return nil, ""
	}

	schema, err := e.chain.ResolveSchema(ctx, ref)
	if err != nil || schema == nil {
		return nil, ref
	}
	return schema, ref
}

func (e *Evaluator) effectiveIssuanceTime(ctx context.Context, cred *model.VerifiableCredential) time.Time {
	if cred.Format == model.FormatAnonCreds {
		return time.Now().UTC()
	}

	if digestSRI, err := credentialDigestSRI(cred); err == nil && digestSRI != "" {
		if created, found, err := e.chain.DigestCreatedAt(ctx, digestSRI); err == nil && found {
			return created
		}
	}

	for _, field := range []string{cred.ValidFrom, cred.IssuanceDate} {
		if field == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, field); err == nil {
			return t
		}
	}

	return time.Now().UTC()
}

func credentialID(cred *model.VerifiableCredential) string {
	if id, ok := cred.Raw["id"].(string); ok {
		return id
	}
	return ""
}

var (
	_ DIDResolver = (*didresolver.Resolver)(nil)
	_ ChainReader = (*indexer.Client)(nil)
)
