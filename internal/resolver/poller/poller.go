// Package poller drives the trust resolver's core pipeline: on the elected leader only, it walks
// new indexer blocks one at a time, re-resolves every DID the block's events touched, re-evaluates
// their trust, and keeps already-resolved DIDs warm as their cached verdicts approach expiry.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"
	"trustresolver/internal/resolver/db"
	"trustresolver/internal/resolver/leaderelect"
	"trustresolver/pkg/didresolver"
	"trustresolver/pkg/helpers"
	"trustresolver/pkg/indexer"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
	"trustresolver/pkg/reattempt"
	"trustresolver/pkg/trustresolver"
	"trustresolver/pkg/vpderef"
)

// didResolver is the narrow DID-resolution surface Pass 1 needs: it both warms the cache ahead of
// Pass 2 and reports whether a failure is worth retrying.
type didResolver interface {
	Invalidate(did string)
	Resolve(ctx context.Context, did string) (*model.DIDDocument, error)
}

// vpDereferencer is the narrow VP-dereference surface Pass 1 needs.
type vpDereferencer interface {
	Dereference(ctx context.Context, doc *model.DIDDocument) ([]model.VerifiablePresentation, []model.VPDereferenceError)
}

// trustResolver is the narrow per-DID evaluation surface Pass 2 needs.
type trustResolver interface {
	Resolve(ctx context.Context, did string, evalCtx *model.EvaluationContext) (*model.TrustResult, error)
}

// trustResultStore is the narrow durable-result surface the poller needs beyond what the trust
// resolver itself already writes through.
type trustResultStore interface {
	Upsert(ctx context.Context, result *model.TrustResult) error
	ExpiringBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// stateStore is the narrow checkpoint surface the poller needs.
type stateStore interface {
	LastProcessedBlock(ctx context.Context) (int64, error)
	SetLastProcessedBlock(ctx context.Context, block int64) error
}

// eventSource is the narrow indexer-read surface the poller needs.
type eventSource interface {
	EventsSince(ctx context.Context, sinceBlock int64) ([]indexer.Event, error)
	CurrentBlock(ctx context.Context) (int64, error)
	ClearMemo()
}

// blockWatcher is the narrow push-notification surface the poller needs.
type blockWatcher interface {
	Start(ctx context.Context) <-chan int64
	Close()
}

// elector is the narrow leader-election surface the poller needs.
type elector interface {
	TryAcquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
	IsLeader() bool
}

// reattemptScheduler is the narrow retry-bookkeeping surface the poller needs.
type reattemptScheduler interface {
	RecordFailure(ctx context.Context, existing *model.ReattemptableResource, resourceID string, resourceType model.ResourceType, cause error) (*model.ReattemptableResource, error)
	Succeeded(ctx context.Context, resourceID string, resourceType model.ResourceType) error
	Due(ctx context.Context, minGap, retention time.Duration) ([]*model.ReattemptableResource, error)
	Prune(ctx context.Context, retention time.Duration) ([]*model.ReattemptableResource, error)
}

// Config carries the tunables the poll cycle reads out of model.Resolver.
type Config struct {
	PollInterval         time.Duration
	TrustTTL             time.Duration
	TTLRefreshRatio      float64
	ReattemptRetention   time.Duration
	LeaderLease          time.Duration
	AllowedEcosystemDIDs []string
}

// Service runs the leader-elected polling loop.
type Service struct {
	elector   elector
	events    eventSource
	watcher   blockWatcher
	dids      didResolver
	vps       vpDereferencer
	trust     trustResolver
	results   trustResultStore
	state     stateStore
	reattempt reattemptScheduler
	cfg       Config
	log       *logger.Log

	quitChan chan struct{}
	wg       *sync.WaitGroup
}

// New builds a Service. wg is the process-wide WaitGroup main.go blocks on during shutdown,
// mirroring the teacher's tree.Service convention.
func New(
	wg *sync.WaitGroup,
	elec elector,
	events eventSource,
	watcher blockWatcher,
	dids didResolver,
	vps vpDereferencer,
	trust trustResolver,
	results trustResultStore,
	state stateStore,
	reattempt reattemptScheduler,
	cfg Config,
	log *logger.Log,
) *Service {
	return &Service{
		elector:   elec,
		events:    events,
		watcher:   watcher,
		dids:      dids,
		vps:       vps,
		trust:     trust,
		results:   results,
		state:     state,
		reattempt: reattempt,
		cfg:       cfg,
		log:       log.New("poller"),
		quitChan:  make(chan struct{}),
		wg:        wg,
	}
}

// Run attempts to acquire leadership and, once held, drives the main loop until ctx is canceled or
// Close is called. It returns once the loop has fully exited, so callers typically invoke it in its
// own goroutine.
func (s *Service) Run(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	leaseRenew := time.NewTicker(s.cfg.LeaderLease / 2)
	defer leaseRenew.Stop()

	for {
		acquired, err := s.elector.TryAcquire(ctx)
		if err != nil {
			s.log.Error(err, "leader acquisition failed")
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-s.quitChan:
			return
		case <-time.After(s.cfg.PollInterval):
		}
	}

	s.log.Info("acquired leadership, starting block loop")
	blocks := s.watcher.Start(ctx)
	defer s.watcher.Close()

	for {
		s.runCycle(ctx)

		select {
		case <-ctx.Done():
			s.shutdown(ctx)
			return
		case <-s.quitChan:
			s.shutdown(ctx)
			return
		case <-leaseRenew.C:
			if err := s.elector.Renew(ctx); err != nil {
				s.log.Error(err, "leader lease renewal failed, stepping down")
				return
			}
		case _, ok := <-blocks:
			if !ok {
				return
			}
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

func (s *Service) shutdown(ctx context.Context) {
	if err := s.elector.Release(ctx); err != nil {
		s.log.Error(err, "leader lock release failed")
	}
}

// Close stops the loop and waits for it to exit.
func (s *Service) Close(ctx context.Context) error {
	close(s.quitChan)
	s.wg.Wait()
	s.log.Info("Stopped")
	return nil
}

// runCycle executes one poll cycle (§4.1-§4.5): clear the indexer memo, advance the block loop one
// block at a time, then run the TTL refresh and reattempt-expiry sweeps regardless of outcome.
func (s *Service) runCycle(ctx context.Context) {
	s.events.ClearMemo()

	if err := s.drainBlocks(ctx); err != nil {
		s.log.Error(err, "block loop aborted, will retry next cycle")
	}

	if err := s.refreshExpiring(ctx); err != nil {
		s.log.Error(err, "TTL refresh sweep failed")
	}

	expired, err := s.reattempt.Prune(ctx, s.cfg.ReattemptRetention)
	if err != nil {
		s.log.Error(err, "reattempt prune failed")
	}
	s.escalateExpired(ctx, expired)

	s.retryDue(ctx)
}

// escalateExpired writes UNTRUSTED for every DID_DOC/TRUST_EVAL resource that fell out of the
// reattempt window without ever succeeding, per §4.5/§8 scenario 4: a DID that never recovers must
// not simply vanish from the reattempt collection, it must end up marked untrusted.
func (s *Service) escalateExpired(ctx context.Context, expired []*model.ReattemptableResource) {
	if len(expired) == 0 {
		return
	}

	height, err := s.events.CurrentBlock(ctx)
	if err != nil {
		s.log.Error(err, "failed to read current block for reattempt-expiry escalation")
		return
	}

	for _, r := range expired {
		if r.ResourceType != model.ResourceDIDDoc && r.ResourceType != model.ResourceTrustEval {
			continue
		}

		result := &model.TrustResult{
			DID:              r.ResourceID,
			TrustStatus:      model.TrustStatusUntrusted,
			EvaluatedAt:      time.Now().UTC(),
			EvaluatedAtBlock: height,
			ExpiresAt:        time.Now().UTC().Add(s.cfg.TrustTTL),
			FailedCredentials: []model.FailedCredential{
				{IssuerDID: r.ResourceID, ErrorCode: model.ErrCodeReattemptExpired},
			},
		}
		if err := s.results.Upsert(ctx, result); err != nil {
			s.log.Error(err, "failed to escalate expired reattempt to UNTRUSTED", "did", r.ResourceID)
		}
	}
}

func (s *Service) drainBlocks(ctx context.Context) error {
	height, err := s.events.CurrentBlock(ctx)
	if err != nil {
		return err
	}

	last, err := s.state.LastProcessedBlock(ctx)
	if err != nil {
		return err
	}

	for last < height {
		target := last + 1

		events, err := s.events.EventsSince(ctx, last)
		if err != nil {
			return err
		}

		affected := affectedDIDs(events, target)
		if len(affected) > 0 {
			evalCtx := model.NewEvaluationContext(target, int64(s.cfg.TrustTTL.Seconds()), s.cfg.AllowedEcosystemDIDs)
			succeeded, _ := s.pass1(ctx, affected)
			s.pass2(ctx, succeeded, evalCtx)
		}

		if err := s.state.SetLastProcessedBlock(ctx, target); err != nil {
			return err
		}
		last = target
	}

	return nil
}

// affectedDIDs collects every DID touched by the given block's events, deduplicated. The indexer
// client surfaces typed on-chain objects rather than a raw {old, new} change feed, so the DID set
// is read directly off the fields that carry one: a trust registry's controlling DID and a
// permission's grantee.
func affectedDIDs(events []indexer.Event, block int64) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(did string) {
		if did == "" {
			return
		}
		if _, ok := seen[did]; ok {
			return
		}
		seen[did] = struct{}{}
		out = append(out, did)
	}

	for _, ev := range events {
		if ev.Block != block {
			continue
		}
		if ev.TrustRegistry != nil {
			add(ev.TrustRegistry.DID)
		}
		if ev.Permission != nil {
			add(ev.Permission.GranteeDID)
		}
	}

	return out
}

// pass1 re-resolves each affected DID's document and warms its VP cache (§4.2), returning the DIDs
// still worth handing to Pass 2. A permanent resolution failure is recorded and excluded here, but
// the DID still proceeds to Pass 2: the trust resolver re-resolves it there and, hitting the same
// permanent failure, writes the UNTRUSTED TrustResult itself (§4.6 step 4) rather than this loop
// duplicating that logic. A transient failure is recorded and excluded from this cycle's Pass 2
// entirely, since there is nothing fresh for the trust resolver to evaluate yet.
func (s *Service) pass1(ctx context.Context, dids []string) (proceed []string, transientlyFailed []string) {
	for _, did := range dids {
		s.dids.Invalidate(did)

		doc, err := s.dids.Resolve(ctx, did)
		if err != nil {
			cause := err
			if errors.Is(err, helpers.ErrDIDResolutionPermanent) {
				cause = reattempt.Permanent(err)
			} else {
				transientlyFailed = append(transientlyFailed, did)
			}
			if _, rerr := s.reattempt.RecordFailure(ctx, nil, did, model.ResourceDIDDoc, cause); rerr != nil {
				s.log.Error(rerr, "failed to record DID resolution failure", "did", did)
			}
			if errors.Is(err, helpers.ErrDIDResolutionPermanent) {
				proceed = append(proceed, did)
			}
			continue
		}

		_, vpErrs := s.vps.Dereference(ctx, doc)
		for _, vpErr := range vpErrs {
			if _, err := s.reattempt.RecordFailure(ctx, nil, vpErr.URL, model.ResourceVP, helpers.ErrVPDereferenceFailed); err != nil {
				s.log.Error(err, "failed to record VP dereference failure", "url", vpErr.URL)
			}
		}

		if err := s.reattempt.Succeeded(ctx, did, model.ResourceDIDDoc); err != nil {
			s.log.Info("failed to clear DID reattempt record", "did", did, "error", err.Error())
		}
		proceed = append(proceed, did)
	}

	return proceed, transientlyFailed
}

// pass2 invokes the trust resolver for every DID Pass 1 warmed successfully (§4.3), upserting the
// result on success and recording a transient TRUST_EVAL reattempt on failure.
func (s *Service) pass2(ctx context.Context, dids []string, evalCtx *model.EvaluationContext) {
	for _, did := range dids {
		result, err := s.trust.Resolve(ctx, did, evalCtx)
		if err != nil {
			if _, rerr := s.reattempt.RecordFailure(ctx, nil, did, model.ResourceTrustEval, err); rerr != nil {
				s.log.Error(rerr, "failed to record trust evaluation failure", "did", did)
			}
			continue
		}
		if err := s.results.Upsert(ctx, result); err != nil {
			s.log.Error(err, "trust result upsert failed", "did", did)
			continue
		}
		if err := s.reattempt.Succeeded(ctx, did, model.ResourceTrustEval); err != nil {
			s.log.Info("failed to clear trust-eval reattempt record", "did", did, "error", err.Error())
		}
	}
}

// refreshExpiring re-evaluates trust for every DID whose cached TrustResult is about to expire
// (§4.4), without advancing lastProcessedBlock.
func (s *Service) refreshExpiring(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(time.Duration(float64(s.cfg.TrustTTL) * s.cfg.TTLRefreshRatio))
	dids, err := s.results.ExpiringBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(dids) == 0 {
		return nil
	}

	height, err := s.events.CurrentBlock(ctx)
	if err != nil {
		return err
	}

	evalCtx := model.NewEvaluationContext(height, int64(s.cfg.TrustTTL.Seconds()), s.cfg.AllowedEcosystemDIDs)
	succeeded, _ := s.pass1(ctx, dids)
	s.pass2(ctx, succeeded, evalCtx)

	return nil
}

// retryDue re-runs Pass 1 + Pass 2 for every resource the reattempt subsystem says is due (§4.5).
func (s *Service) retryDue(ctx context.Context) {
	due, err := s.reattempt.Due(ctx, 24*time.Hour, s.cfg.ReattemptRetention)
	if err != nil {
		s.log.Error(err, "failed to list retry-eligible resources")
		return
	}
	if len(due) == 0 {
		return
	}

	var dids []string
	for _, r := range due {
		if r.ResourceType == model.ResourceDIDDoc || r.ResourceType == model.ResourceTrustEval {
			dids = append(dids, r.ResourceID)
		}
	}
	if len(dids) == 0 {
		return
	}

	height, err := s.events.CurrentBlock(ctx)
	if err != nil {
		s.log.Error(err, "failed to read current block for retry sweep")
		return
	}

	evalCtx := model.NewEvaluationContext(height, int64(s.cfg.TrustTTL.Seconds()), s.cfg.AllowedEcosystemDIDs)
	succeeded, _ := s.pass1(ctx, dids)
	s.pass2(ctx, succeeded, evalCtx)
}

var (
	_ didResolver        = (*didresolver.Resolver)(nil)
	_ vpDereferencer     = (*vpderef.Dereferencer)(nil)
	_ trustResolver      = (*trustresolver.Resolver)(nil)
	_ trustResultStore   = (*db.TrustResultColl)(nil)
	_ stateStore         = (*db.ResolverStateColl)(nil)
	_ eventSource        = (*indexer.Client)(nil)
	_ blockWatcher       = (*indexer.BlockNotifier)(nil)
	_ elector            = (*leaderelect.Elector)(nil)
	_ reattemptScheduler = (*reattempt.Scheduler)(nil)
)
