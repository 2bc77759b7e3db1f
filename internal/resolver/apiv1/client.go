// Package apiv1 is the thin query façade answering the four trust questions this resolver
// exists to serve. It does no evaluation of its own: Q1 reads the durable trust_results store;
// Q2-Q4 pass straight through to the indexer, per §4.10.
package apiv1

import (
	"context"
	"time"
	"trustresolver/pkg/helpers"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
)

// TrustResultReader is the narrow durable-store surface Q1 needs.
type TrustResultReader interface {
	Get(ctx context.Context, did string) (*model.TrustResult, error)
}

// IndexerReader is the narrow indexer surface Q2-Q4 need.
type IndexerReader interface {
	ActivePermission(ctx context.Context, did string, schemaID int64, permType model.PermissionType) (*model.Permission, error)
	TrustRegistryByDID(ctx context.Context, did string) (*model.TrustRegistry, error)
	PermissionsByDID(ctx context.Context, did string) ([]*model.Permission, error)
	SchemaByID(ctx context.Context, id int64) (*model.CredentialSchema, error)
	CurrentBlock(ctx context.Context) (int64, error)
}

// StateReader is the narrow checkpoint surface the health endpoint needs.
type StateReader interface {
	LastProcessedBlock(ctx context.Context) (int64, error)
}

// PermissionFees is the fee schedule riding along with a Q2/Q3 permission answer.
type PermissionFees struct {
	IssuanceFee     int64   `json:"issuanceFee"`
	VerificationFee int64   `json:"verificationFee"`
	Discount        float64 `json:"discount"`
}

// PermissionAnswer is the Q2/Q3 response shape.
type PermissionAnswer struct {
	Permission *model.Permission `json:"permission"`
	Fees       PermissionFees    `json:"fees"`
}

// ParticipantAnswer is the Q4 response shape.
type ParticipantAnswer struct {
	EcosystemDID   string              `json:"ecosystemDid"`
	ParticipantDID string              `json:"participantDid"`
	Permissions    []*model.Permission `json:"permissions"`
}

// HealthStatus is the GET /v1/healthz response shape, reusing the teacher's StatusProbe idea in
// plain-struct form (no gRPC-generated health type here — see DESIGN.md).
type HealthStatus struct {
	Role               string `json:"role"`
	LastProcessedBlock int64  `json:"lastProcessedBlock"`
	StoreHealthy       bool   `json:"storeHealthy"`
	CacheHealthy       bool   `json:"cacheHealthy"`
}

// StatusProbe is the minimal health-check result a dependency reports.
type StatusProbe struct {
	Healthy bool
	Message string
}

// DependencyProbe is the narrow health-reporting surface a collaborator exposes.
type DependencyProbe interface {
	Status(ctx context.Context) *StatusProbe
}

// Client is the public api object.
type Client struct {
	cfg     *model.Cfg
	log     *logger.Log
	results TrustResultReader
	indexer IndexerReader
	state   StateReader
	store   DependencyProbe
	cache   DependencyProbe
}

// New creates a new instance of the public api.
func New(ctx context.Context, cfg *model.Cfg, results TrustResultReader, idx IndexerReader, state StateReader, store, cache DependencyProbe, log *logger.Log) (*Client, error) {
	c := &Client{
		cfg:     cfg,
		log:     log.New("apiv1"),
		results: results,
		indexer: idx,
		state:   state,
		store:   store,
		cache:   cache,
	}

	c.log.Info("Started")

	return c, nil
}

// VerifiableService answers Q1: is did a trusted Verifiable Service.
func (c *Client) VerifiableService(ctx context.Context, did string) (*model.TrustResult, error) {
	result, err := c.results.Get(ctx, did)
	if err != nil {
		return nil, helpers.NewErrorFromError(err)
	}
	return result, nil
}

// IssuerAuthorization answers Q2: is did an authorized issuer for schemaID.
func (c *Client) IssuerAuthorization(ctx context.Context, did string, schemaID int64) (*PermissionAnswer, error) {
	return c.permissionAnswer(ctx, did, schemaID, model.PermissionIssuer)
}

// VerifierAuthorization answers Q3: is did an authorized verifier for schemaID.
func (c *Client) VerifierAuthorization(ctx context.Context, did string, schemaID int64) (*PermissionAnswer, error) {
	return c.permissionAnswer(ctx, did, schemaID, model.PermissionVerifier)
}

func (c *Client) permissionAnswer(ctx context.Context, did string, schemaID int64, permType model.PermissionType) (*PermissionAnswer, error) {
	perm, err := c.indexer.ActivePermission(ctx, did, schemaID, permType)
	if err != nil {
		return nil, helpers.ErrPermissionNotFound
	}

	if perm.IssuanceFee == 0 && perm.VerificationFee == 0 && permType == model.PermissionIssuer {
		return nil, helpers.ErrPermissionFeeRequired
	}

	return &PermissionAnswer{
		Permission: perm,
		Fees: PermissionFees{
			IssuanceFee:     perm.IssuanceFee,
			VerificationFee: perm.VerificationFee,
			Discount:        perm.Discount,
		},
	}, nil
}

// EcosystemParticipant answers Q4: is participantDID a participant of ecosystemDID's ecosystem,
// scoped to the trust registry the ecosystem DID controls.
func (c *Client) EcosystemParticipant(ctx context.Context, ecosystemDID, participantDID string) (*ParticipantAnswer, error) {
	registry, err := c.indexer.TrustRegistryByDID(ctx, ecosystemDID)
	if err != nil {
		return nil, helpers.ErrPermissionNotFound
	}

	all, err := c.indexer.PermissionsByDID(ctx, participantDID)
	if err != nil {
		return nil, helpers.NewErrorFromError(err)
	}

	var scoped []*model.Permission
	for _, perm := range all {
		schema, err := c.indexer.SchemaByID(ctx, perm.SchemaID)
		if err != nil || schema == nil {
			continue
		}
		if schema.TrID == registry.ID {
			scoped = append(scoped, perm)
		}
	}

	if len(scoped) == 0 {
		return nil, helpers.ErrPermissionNotFound
	}

	return &ParticipantAnswer{
		EcosystemDID:   ecosystemDID,
		ParticipantDID: participantDID,
		Permissions:    scoped,
	}, nil
}

// Health reports this instance's role, checkpoint and dependency reachability.
func (c *Client) Health(ctx context.Context, role string) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	block, err := c.state.LastProcessedBlock(ctx)
	if err != nil {
		c.log.Error(err, "health check: last processed block unavailable")
	}

	status := &HealthStatus{Role: role, LastProcessedBlock: block, StoreHealthy: true, CacheHealthy: true}
	if c.store != nil {
		if probe := c.store.Status(ctx); probe != nil {
			status.StoreHealthy = probe.Healthy
		}
	}
	if c.cache != nil {
		if probe := c.cache.Status(ctx); probe != nil {
			status.CacheHealthy = probe.Healthy
		}
	}

	return status, nil
}
