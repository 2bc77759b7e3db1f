package model

import (
	"strings"
	"time"
)

// TrustStatus is the verdict a trust resolution produces for a DID.
type TrustStatus string

const (
	TrustStatusTrusted   TrustStatus = "TRUSTED"
	TrustStatusPartial   TrustStatus = "PARTIAL"
	TrustStatusUntrusted TrustStatus = "UNTRUSTED"
)

// CredentialFormat tags the three shapes a VerifiableCredential can take on the wire.
type CredentialFormat string

const (
	FormatW3CJSONLD  CredentialFormat = "w3c-jsonld"
	FormatW3CJWT     CredentialFormat = "w3c-jwt"
	FormatAnonCreds  CredentialFormat = "anoncreds"
)

// ECSType classifies a credential schema by its canonical digest.
type ECSType string

const (
	ECSService ECSType = "ECS-SERVICE"
	ECSOrg     ECSType = "ECS-ORG"
	ECSPersona ECSType = "ECS-PERSONA"
	ECSUA      ECSType = "ECS-UA"
)

// CredentialResultStatus tags whether an evaluated credential contributes to VS requirements.
type CredentialResultStatus string

const (
	CredentialValid   CredentialResultStatus = "VALID"
	CredentialIgnored CredentialResultStatus = "IGNORED"
)

// IssuerPermManagementMode governs how the permission-chain builder fills the ISSUER_GRANTOR entry.
type IssuerPermManagementMode string

const (
	ManagementOpen             IssuerPermManagementMode = "OPEN"
	ManagementEcosystem        IssuerPermManagementMode = "ECOSYSTEM"
	ManagementGrantorValidation IssuerPermManagementMode = "GRANTOR_VALIDATION"
)

// PermissionType enumerates the on-chain permission roles.
type PermissionType string

const (
	PermissionIssuer         PermissionType = "ISSUER"
	PermissionVerifier       PermissionType = "VERIFIER"
	PermissionIssuerGrantor  PermissionType = "ISSUER_GRANTOR"
	PermissionVerifierGrantor PermissionType = "VERIFIER_GRANTOR"
	PermissionEcosystem      PermissionType = "ECOSYSTEM"
	PermissionHolder         PermissionType = "HOLDER"
)

// PermissionState enumerates the on-chain permission lifecycle states.
type PermissionState string

const (
	PermissionActive  PermissionState = "ACTIVE"
	PermissionExpired PermissionState = "EXPIRED"
	PermissionRevoked PermissionState = "REVOKED"
)

// ErrorType classifies a ReattemptableResource's failure as transient or permanent.
type ErrorType string

const (
	ErrorTransient ErrorType = "TRANSIENT"
	ErrorPermanent ErrorType = "PERMANENT"
)

// ResourceType enumerates what kind of resource a ReattemptableResource tracks.
type ResourceType string

const (
	ResourceDIDDoc    ResourceType = "DID_DOC"
	ResourceVP        ResourceType = "VP"
	ResourceTrustEval ResourceType = "TRUST_EVAL"
)

// CredentialErrorCode enumerates the failure taxonomy for a single credential evaluation.
type CredentialErrorCode string

const (
	ErrCodeSignatureInvalid    CredentialErrorCode = "SIGNATURE_INVALID"
	ErrCodeDigestSRIMismatch   CredentialErrorCode = "DIGEST_SRI_MISMATCH"
	ErrCodeIssuerNotAuthorized CredentialErrorCode = "ISSUER_NOT_AUTHORIZED"
	ErrCodeEvaluationError     CredentialErrorCode = "EVALUATION_ERROR"
	ErrCodeCircularReference   CredentialErrorCode = "CIRCULAR_REFERENCE"
	ErrCodeDIDResolutionFailed CredentialErrorCode = "DID_RESOLUTION_FAILED"
	ErrCodeReattemptExpired    CredentialErrorCode = "REATTEMPT_EXPIRED"
)

// DIDDocument is the subset of a W3C DID Document this resolver consumes.
type DIDDocument struct {
	ID                 string               `json:"id" bson:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty" bson:"verification_method,omitempty"`
	Service            []ServiceEntry       `json:"service,omitempty" bson:"service,omitempty"`
}

// VerificationMethod is one key material entry of a DIDDocument's `verificationMethod` array.
type VerificationMethod struct {
	ID                 string         `json:"id" bson:"id"`
	Type               string         `json:"type" bson:"type"`
	Controller         string         `json:"controller,omitempty" bson:"controller,omitempty"`
	PublicKeyMultibase string         `json:"publicKeyMultibase,omitempty" bson:"public_key_multibase,omitempty"`
	PublicKeyJWK       map[string]any `json:"publicKeyJwk,omitempty" bson:"public_key_jwk,omitempty"`
}

// VerificationMethodByID finds the verification method matching id, either by full DID-URL or by
// its bare fragment.
func (d *DIDDocument) VerificationMethodByID(id string) *VerificationMethod {
	for i := range d.VerificationMethod {
		vm := &d.VerificationMethod[i]
		if vm.ID == id || strings.HasSuffix(id, "#"+strings.TrimPrefix(vm.ID, d.ID)) {
			return vm
		}
		if frag := fragment(vm.ID); frag != "" && frag == fragment(id) {
			return vm
		}
	}
	return nil
}

func fragment(didURL string) string {
	if idx := strings.Index(didURL, "#"); idx >= 0 {
		return didURL[idx+1:]
	}
	return ""
}

// ServiceEntry is one entry of a DIDDocument's `service` array.
type ServiceEntry struct {
	ID              string   `json:"id" bson:"id"`
	Type            []string `json:"type" bson:"type"`
	ServiceEndpoint string   `json:"serviceEndpoint" bson:"serviceEndpoint"`
}

const linkedVPServiceType = "LinkedVerifiablePresentation"

// LinkedVPEndpoints returns every http(s) LinkedVerifiablePresentation endpoint in the document.
func (d *DIDDocument) LinkedVPEndpoints() []string {
	var out []string
	for _, svc := range d.Service {
		if !containsType(svc.Type, linkedVPServiceType) {
			continue
		}
		if hasHTTPScheme(svc.ServiceEndpoint) {
			out = append(out, svc.ServiceEndpoint)
		}
	}
	return out
}

func containsType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func hasHTTPScheme(endpoint string) bool {
	return len(endpoint) > 7 && (endpoint[:7] == "http://" || (len(endpoint) > 8 && endpoint[:8] == "https://"))
}

// VerifiablePresentation is the JSON envelope a LinkedVP endpoint returns.
type VerifiablePresentation struct {
	Context      []string              `json:"@context,omitempty"`
	Type         []string              `json:"type,omitempty"`
	Holder       string                `json:"holder,omitempty"`
	Credentials  []VerifiableCredential `json:"verifiableCredential,omitempty"`
	SourceURL    string                `json:"-"`
}

// VerifiableCredential is a format-tagged union of the three credential shapes this resolver evaluates.
type VerifiableCredential struct {
	Format CredentialFormat `json:"-"`

	// Raw carries the original decoded document (object formats) for canonicalization / proof
	// extraction; CompactJWS carries the original compact serialization for the w3c-jwt format.
	Raw        map[string]any `json:"-"`
	CompactJWS string         `json:"-"`

	IssuerDID        string
	PresenterDID     string
	SchemaRef        string
	IsJSONSchemaCred bool
	IssuanceDate     string
	ValidFrom        string

	// AnonCredsSchemaID / AnonCredsCredDefID carry the anoncreds-specific identifiers when
	// Format == FormatAnonCreds.
	AnonCredsSchemaID  string
	AnonCredsCredDefID string

	ClaimsSubject map[string]any
}

// CredentialSchema is the on-chain schema record a credential's schema reference resolves to.
type CredentialSchema struct {
	ID                       int64                    `json:"id" bson:"id"`
	TrID                     int64                    `json:"tr_id" bson:"tr_id"`
	JSONSchema               string                   `json:"json_schema" bson:"json_schema"`
	IssuerPermManagementMode IssuerPermManagementMode `json:"issuer_perm_management_mode" bson:"issuer_perm_management_mode"`
	EcosystemDID             string                   `json:"ecosystem_did" bson:"ecosystem_did"`
}

// TrustRegistry is the on-chain entity owning a set of credential schemas.
type TrustRegistry struct {
	ID    int64  `json:"id" bson:"id"`
	DID   string `json:"did" bson:"did"`
	Alias string `json:"alias,omitempty" bson:"alias,omitempty"`
}

// Permission is the on-chain authorization record.
type Permission struct {
	ID               int64           `json:"id" bson:"id"`
	SchemaID         int64           `json:"schema_id" bson:"schema_id"`
	Type             PermissionType  `json:"type" bson:"type"`
	GranteeDID       string          `json:"grantee_did" bson:"grantee_did"`
	EffectiveFrom    time.Time       `json:"effective_from" bson:"effective_from"`
	EffectiveUntil   *time.Time      `json:"effective_until,omitempty" bson:"effective_until,omitempty"`
	Deposit          int64           `json:"deposit" bson:"deposit"`
	State            PermissionState `json:"state" bson:"state"`
	ValidatorPermID  *int64          `json:"validator_perm_id,omitempty" bson:"validator_perm_id,omitempty"`
	IssuanceFee      int64           `json:"issuance_fee" bson:"issuance_fee"`
	VerificationFee  int64           `json:"verification_fee" bson:"verification_fee"`
	Discount         float64         `json:"discount" bson:"discount"`
}

// FailedCredential records one credential's evaluation failure.
type FailedCredential struct {
	CredentialID string              `json:"credentialId,omitempty" bson:"credential_id,omitempty"`
	IssuerDID    string              `json:"issuerDid,omitempty" bson:"issuer_did,omitempty"`
	ErrorCode    CredentialErrorCode `json:"errorCode" bson:"error_code"`
	Detail       string              `json:"detail,omitempty" bson:"detail,omitempty"`
}

// VPDereferenceError records one LinkedVP endpoint's fetch/parse failure.
type VPDereferenceError struct {
	URL   string `json:"url" bson:"url"`
	Error string `json:"error" bson:"error"`
}

// PermissionChainEntry is one link in the evidence chain a VALID credential carries.
type PermissionChainEntry struct {
	PermissionID   int64          `json:"permissionId" bson:"permission_id"`
	Type           PermissionType `json:"type" bson:"type"`
	DID            string         `json:"did" bson:"did"`
	DIDIsTrustedVS bool           `json:"didIsTrustedVS" bson:"did_is_trusted_vs"`
	Deposit        int64          `json:"deposit" bson:"deposit"`
	State          PermissionState `json:"state" bson:"state"`
	EffectiveFrom  time.Time      `json:"effectiveFrom" bson:"effective_from"`
	EffectiveUntil *time.Time     `json:"effectiveUntil,omitempty" bson:"effective_until,omitempty"`

	ServiceName      string `json:"serviceName,omitempty" bson:"service_name,omitempty"`
	OrganizationName string `json:"organizationName,omitempty" bson:"organization_name,omitempty"`
	CountryCode      string `json:"countryCode,omitempty" bson:"country_code,omitempty"`
	LegalJurisdiction string `json:"legalJurisdiction,omitempty" bson:"legal_jurisdiction,omitempty"`
}

// CredentialEvaluation is the per-credential outcome of the credential evaluator.
type CredentialEvaluation struct {
	CredentialID        string                 `json:"credentialId,omitempty" bson:"credential_id,omitempty"`
	Result              CredentialResultStatus `json:"result" bson:"result"`
	EcsType             ECSType                `json:"ecsType,omitempty" bson:"ecs_type,omitempty"`
	EcosystemDID        string                 `json:"ecosystemDid,omitempty" bson:"ecosystem_did,omitempty"`
	PresenterDID        string                 `json:"presenterDid" bson:"presenter_did"`
	IssuerDID           string                 `json:"issuerDid" bson:"issuer_did"`
	Format              CredentialFormat       `json:"format" bson:"format"`
	EffectiveIssuedAt   time.Time              `json:"effectiveIssuedAt" bson:"effective_issued_at"`
	DigestSRI           string                 `json:"digestSri,omitempty" bson:"digest_sri,omitempty"`
	SchemaID            int64                  `json:"schemaId,omitempty" bson:"schema_id,omitempty"`
	PermissionChain     []PermissionChainEntry `json:"permissionChain,omitempty" bson:"permission_chain,omitempty"`
	Claims              map[string]any         `json:"claims,omitempty" bson:"-"`
}

// TrustResult is the authoritative per-DID verdict persisted by the trust resolver.
type TrustResult struct {
	DID              string                  `json:"did" bson:"did"`
	TrustStatus      TrustStatus             `json:"trustStatus" bson:"trust_status"`
	Production       bool                    `json:"production" bson:"production"`
	EvaluatedAt      time.Time               `json:"evaluatedAt" bson:"evaluated_at"`
	EvaluatedAtBlock int64                   `json:"evaluatedAtBlock" bson:"evaluated_at_block"`
	ExpiresAt        time.Time               `json:"expiresAt" bson:"expires_at"`
	Credentials      []CredentialEvaluation  `json:"credentials" bson:"credentials"`
	FailedCredentials []FailedCredential     `json:"failedCredentials" bson:"failed_credentials"`
	VPDereferenceErrors []VPDereferenceError `json:"vpDereferenceErrors,omitempty" bson:"vp_dereference_errors,omitempty"`
}

// ReattemptableResource is a durable record of a resource whose processing failed and is
// eligible for retry on a bounded cadence.
type ReattemptableResource struct {
	ResourceID     string       `bson:"resource_id"`
	ResourceType   ResourceType `bson:"resource_type"`
	FirstFailureAt time.Time    `bson:"first_failure_at"`
	LastRetryAt    time.Time    `bson:"last_retry_at"`
	ErrorType      ErrorType    `bson:"error_type"`
	RetryCount     int          `bson:"retry_count"`
}

// ProcessingState is the singleton scalar state the polling loop advances.
type ProcessingState struct {
	Key   string `bson:"key"`
	Value int64  `bson:"value"`
}

// EvaluationContext is the per-resolution-tree state threaded through every recursive call of the
// trust resolver: cycle detection, memoization, and the block/TTL/allowlist the tree was started with.
type EvaluationContext struct {
	VisitedDIDs          map[string]struct{}
	TrustMemo            map[string]*TrustResult
	CurrentBlock         int64
	CacheTTLSeconds       int64
	AllowedEcosystemDIDs map[string]struct{}
}

// NewEvaluationContext builds a fresh EvaluationContext for one top-level DID resolution.
func NewEvaluationContext(currentBlock, cacheTTLSeconds int64, allowedEcosystemDIDs []string) *EvaluationContext {
	allowed := make(map[string]struct{}, len(allowedEcosystemDIDs))
	for _, did := range allowedEcosystemDIDs {
		allowed[did] = struct{}{}
	}
	return &EvaluationContext{
		VisitedDIDs:          make(map[string]struct{}),
		TrustMemo:            make(map[string]*TrustResult),
		CurrentBlock:         currentBlock,
		CacheTTLSeconds:      cacheTTLSeconds,
		AllowedEcosystemDIDs: allowed,
	}
}

// IsEcosystemAllowed reports whether the given ecosystem DID is in this context's allowlist.
func (c *EvaluationContext) IsEcosystemAllowed(ecosystemDID string) bool {
	_, ok := c.AllowedEcosystemDIDs[ecosystemDID]
	return ok
}
