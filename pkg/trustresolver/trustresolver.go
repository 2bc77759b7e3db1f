// Package trustresolver is the per-DID recursive trust-resolution orchestrator: given a DID, it
// resolves the DID Document, dereferences every linked Verifiable Presentation, evaluates every
// credential found, and aggregates the verdicts into one TrustResult, recursing into other DIDs'
// trust as the VS requirements demand while guarding against cycles.
package trustresolver

import (
	"context"
	"errors"
	"time"
	"trustresolver/pkg/credeval"
	"trustresolver/pkg/didresolver"
	"trustresolver/pkg/helpers"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
	"trustresolver/pkg/vpderef"
	"trustresolver/pkg/vsreq"
)

// didResolver is the narrow DID-resolution surface Resolver needs.
type didResolver interface {
	Resolve(ctx context.Context, did string) (*model.DIDDocument, error)
}

// vpDereferencer is the narrow VP-dereference surface Resolver needs.
type vpDereferencer interface {
	Dereference(ctx context.Context, doc *model.DIDDocument) ([]model.VerifiablePresentation, []model.VPDereferenceError)
}

// credentialEvaluator is the narrow per-credential evaluation surface Resolver needs.
type credentialEvaluator interface {
	Evaluate(ctx context.Context, cred *model.VerifiableCredential, presenterDID string, evalCtx *model.EvaluationContext) (*model.CredentialEvaluation, *model.FailedCredential)
}

// vsRequirementEvaluator is the narrow VS-requirement aggregation surface Resolver needs.
type vsRequirementEvaluator interface {
	Evaluate(ctx context.Context, did string, credentials []model.CredentialEvaluation, evalCtx *model.EvaluationContext, resolve vsreq.ResolveFunc) model.TrustStatus
}

// trustResultStore persists resolved TrustResults across resolution trees. Nil disables persistence.
type trustResultStore interface {
	Get(ctx context.Context, did string) (*model.TrustResult, error)
	Upsert(ctx context.Context, result *model.TrustResult) error
}

// Resolver answers Q1-Q4 by walking one DID's trust tree.
type Resolver struct {
	dids  didResolver
	vps   vpDereferencer
	creds credentialEvaluator
	vs    vsRequirementEvaluator
	store trustResultStore
	log   *logger.Log
}

// New creates a Resolver.
func New(dids didResolver, vps vpDereferencer, creds credentialEvaluator, vs vsRequirementEvaluator, store trustResultStore, log *logger.Log) *Resolver {
	return &Resolver{
		dids:  dids,
		vps:   vps,
		creds: creds,
		vs:    vs,
		store: store,
		log:   log.New("trustresolver"),
	}
}

// Resolve returns did's TrustResult within evalCtx's resolution tree: memoized results and
// in-progress ancestors short-circuit, everything else resolves DID Document -> linked VPs ->
// credentials -> VS-requirement aggregation, recursing into other DIDs' trust through evalCtx so
// memoization and cycle detection carry across the whole tree.
func (r *Resolver) Resolve(ctx context.Context, did string, evalCtx *model.EvaluationContext) (*model.TrustResult, error) {
	if memo, ok := evalCtx.TrustMemo[did]; ok {
		return memo, nil
	}

	if _, visited := evalCtx.VisitedDIDs[did]; visited {
		result := r.circularResult(did, evalCtx)
		evalCtx.TrustMemo[did] = result
		return result, nil
	}
	evalCtx.VisitedDIDs[did] = struct{}{}

	if cached := r.freshCachedResult(ctx, did, evalCtx); cached != nil {
		evalCtx.TrustMemo[did] = cached
		return cached, nil
	}

	doc, err := r.dids.Resolve(ctx, did)
	if err != nil {
		if !errors.Is(err, helpers.ErrDIDResolutionPermanent) {
			// Transient failure: leave any existing TrustResult unchanged and let the reattempt
			// subsystem retry this DID; it was never meaningfully "visited" for cycle detection.
			delete(evalCtx.VisitedDIDs, did)
			return nil, err
		}

		result := r.unresolvedResult(did, evalCtx, err)
		evalCtx.TrustMemo[did] = result
		r.persist(ctx, result)
		return result, nil
	}

	presentations, vpErrs := r.vps.Dereference(ctx, doc)

	var credentials []model.CredentialEvaluation
	var failed []model.FailedCredential
	for _, vp := range presentations {
		presenterDID := vp.Holder
		if presenterDID == "" {
			presenterDID = did
		}
		for i := range vp.Credentials {
			eval, failure := r.creds.Evaluate(ctx, &vp.Credentials[i], presenterDID, evalCtx)
			if failure != nil {
				failed = append(failed, *failure)
				continue
			}
			credentials = append(credentials, *eval)
		}
	}

	resolve := func(ctx context.Context, recurseDID string) (*model.TrustResult, error) {
		return r.Resolve(ctx, recurseDID, evalCtx)
	}
	status := r.vs.Evaluate(ctx, did, credentials, evalCtx, resolve)

	result := &model.TrustResult{
		DID:                 did,
		TrustStatus:         status,
		Production:          hasProductionCredential(credentials),
		EvaluatedAt:         time.Now().UTC(),
		EvaluatedAtBlock:    evalCtx.CurrentBlock,
		ExpiresAt:           time.Now().UTC().Add(time.Duration(evalCtx.CacheTTLSeconds) * time.Second),
		Credentials:         credentials,
		FailedCredentials:   failed,
		VPDereferenceErrors: vpErrs,
	}

	evalCtx.TrustMemo[did] = result
	r.persist(ctx, result)

	return result, nil
}

// freshCachedResult returns a durably stored result for did if it is still valid for evalCtx's
// current block, so repeated resolutions within the same block avoid re-walking the tree.
func (r *Resolver) freshCachedResult(ctx context.Context, did string, evalCtx *model.EvaluationContext) *model.TrustResult {
	if r.store == nil {
		return nil
	}
	stored, err := r.store.Get(ctx, did)
	if err != nil || stored == nil {
		return nil
	}
	if stored.EvaluatedAtBlock != evalCtx.CurrentBlock {
		return nil
	}
	if time.Now().UTC().After(stored.ExpiresAt) {
		return nil
	}
	return stored
}

func (r *Resolver) circularResult(did string, evalCtx *model.EvaluationContext) *model.TrustResult {
	return &model.TrustResult{
		DID:              did,
		TrustStatus:       model.TrustStatusUntrusted,
		EvaluatedAt:       time.Now().UTC(),
		EvaluatedAtBlock:  evalCtx.CurrentBlock,
		ExpiresAt:         time.Now().UTC().Add(time.Duration(evalCtx.CacheTTLSeconds) * time.Second),
		FailedCredentials: []model.FailedCredential{{IssuerDID: did, ErrorCode: model.ErrCodeCircularReference}},
	}
}

func (r *Resolver) unresolvedResult(did string, evalCtx *model.EvaluationContext, err error) *model.TrustResult {
	return &model.TrustResult{
		DID:              did,
		TrustStatus:       model.TrustStatusUntrusted,
		EvaluatedAt:       time.Now().UTC(),
		EvaluatedAtBlock:  evalCtx.CurrentBlock,
		ExpiresAt:         time.Now().UTC().Add(time.Duration(evalCtx.CacheTTLSeconds) * time.Second),
		FailedCredentials: []model.FailedCredential{{IssuerDID: did, ErrorCode: model.ErrCodeDIDResolutionFailed, Detail: err.Error()}},
	}
}

func (r *Resolver) persist(ctx context.Context, result *model.TrustResult) {
	if r.store == nil {
		return
	}
	if err := r.store.Upsert(ctx, result); err != nil {
		r.log.Info("trust result persistence failed", "did", result.DID, "error", err.Error())
	}
}

func hasProductionCredential(credentials []model.CredentialEvaluation) bool {
	for _, c := range credentials {
		if c.Result == model.CredentialValid && c.EcsType != "" {
			return true
		}
	}
	return false
}

var (
	_ didResolver            = (*didresolver.Resolver)(nil)
	_ vpDereferencer         = (*vpderef.Dereferencer)(nil)
	_ credentialEvaluator    = (*credeval.Evaluator)(nil)
	_ vsRequirementEvaluator = (*vsreq.Evaluator)(nil)
)
