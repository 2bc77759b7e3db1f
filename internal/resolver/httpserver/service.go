package httpserver

import (
	"context"
	"net/http"
	"time"
	"trustresolver/internal/resolver/apiv1"
	"trustresolver/pkg/httphelpers"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
	"trustresolver/pkg/trace"

	"github.com/gin-gonic/gin"
)

// Apiv1 is the narrow façade surface the HTTP layer calls into.
type Apiv1 interface {
	VerifiableService(ctx context.Context, did string) (*model.TrustResult, error)
	IssuerAuthorization(ctx context.Context, did string, schemaID int64) (*apiv1.PermissionAnswer, error)
	VerifierAuthorization(ctx context.Context, did string, schemaID int64) (*apiv1.PermissionAnswer, error)
	EcosystemParticipant(ctx context.Context, ecosystemDID, participantDID string) (*apiv1.ParticipantAnswer, error)
	Health(ctx context.Context, role string) (*apiv1.HealthStatus, error)
}

// Service is the service object for httpserver.
type Service struct {
	cfg         *model.Cfg
	log         *logger.Log
	server      *http.Server
	apiv1       Apiv1
	tracer      *trace.Tracer
	gin         *gin.Engine
	httpHelpers *httphelpers.Client
}

// New creates a new httpserver service, wiring the four trust-question routes and healthz.
func New(ctx context.Context, cfg *model.Cfg, api Apiv1, tracer *trace.Tracer, log *logger.Log) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		log:    log.New("httpserver"),
		apiv1:  api,
		gin:    gin.New(),
		tracer: tracer,
		server: &http.Server{
			ReadHeaderTimeout: 3 * time.Second,
		},
	}

	var err error
	s.httpHelpers, err = httphelpers.New(ctx, s.tracer, s.cfg, s.log)
	if err != nil {
		return nil, err
	}

	rgRoot, err := s.httpHelpers.Server.Default(ctx, s.server, s.gin, s.cfg.Resolver.APIServer.Addr)
	if err != nil {
		return nil, err
	}

	rgV1 := rgRoot.Group("v1")

	s.httpHelpers.Server.RegEndpoint(ctx, rgV1, http.MethodGet, "healthz", http.StatusOK, s.endpointHealth)
	s.httpHelpers.Server.RegEndpoint(ctx, rgV1, http.MethodGet, "vs/:did", http.StatusOK, s.endpointVerifiableService)
	s.httpHelpers.Server.RegEndpoint(ctx, rgV1, http.MethodGet, "issuers/:did/schemas/:schemaId", http.StatusOK, s.endpointIssuerAuthorization)
	s.httpHelpers.Server.RegEndpoint(ctx, rgV1, http.MethodGet, "verifiers/:did/schemas/:schemaId", http.StatusOK, s.endpointVerifierAuthorization)
	s.httpHelpers.Server.RegEndpoint(ctx, rgV1, http.MethodGet, "ecosystems/:did/participants/:participantDid", http.StatusOK, s.endpointEcosystemParticipant)

	go func() {
		if err := s.httpHelpers.Server.ListenAndServe(ctx, s.server, s.cfg.Resolver.APIServer); err != nil {
			s.log.Trace("listen_error", "error", err)
		}
	}()

	s.log.Info("Started")

	return s, nil
}

// Close closing httpserver.
func (s *Service) Close(ctx context.Context) error {
	s.log.Info("Stopped")
	return nil
}
