package httpserver

import (
	"context"
	"strconv"
	"trustresolver/pkg/helpers"

	"github.com/gin-gonic/gin"
)

func (s *Service) endpointHealth(ctx context.Context, c *gin.Context) (any, error) {
	return s.apiv1.Health(ctx, s.cfg.Resolver.Role)
}

func (s *Service) endpointVerifiableService(ctx context.Context, c *gin.Context) (any, error) {
	did := c.Param("did")
	return s.apiv1.VerifiableService(ctx, did)
}

func (s *Service) endpointIssuerAuthorization(ctx context.Context, c *gin.Context) (any, error) {
	did := c.Param("did")
	schemaID, err := strconv.ParseInt(c.Param("schemaId"), 10, 64)
	if err != nil {
		return nil, helpers.NewErrorDetails("invalid_schema_id", err.Error())
	}
	return s.apiv1.IssuerAuthorization(ctx, did, schemaID)
}

func (s *Service) endpointVerifierAuthorization(ctx context.Context, c *gin.Context) (any, error) {
	did := c.Param("did")
	schemaID, err := strconv.ParseInt(c.Param("schemaId"), 10, 64)
	if err != nil {
		return nil, helpers.NewErrorDetails("invalid_schema_id", err.Error())
	}
	return s.apiv1.VerifierAuthorization(ctx, did, schemaID)
}

func (s *Service) endpointEcosystemParticipant(ctx context.Context, c *gin.Context) (any, error) {
	ecosystemDID := c.Param("did")
	participantDID := c.Param("participantDid")
	return s.apiv1.EcosystemParticipant(ctx, ecosystemDID, participantDID)
}
