package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"
	"trustresolver/pkg/helpers"
	"trustresolver/pkg/model"
)

// schemaURIPattern matches the VPR schema-reference URI shape this resolver can resolve directly
// to an integer schema id without listing and matching: vpr:verana:<network>/cs/v1/js/<n>.
var schemaURIPattern = regexp.MustCompile(`^vpr:[^/]+/cs/v1/js/(\d+)$`)

// memo holds one poll cycle's on-chain read results, so repeated lookups of the same schema,
// permission or digest within one cycle don't re-hit the indexer. ClearMemo resets it at cycle start.
type memo struct {
	mu          sync.Mutex
	schemas     map[int64]*model.CredentialSchema
	content     map[int64][]byte
	permissions map[int64]*model.Permission
	digests     map[string]time.Time
	deposits    map[string]int64
}

func newMemo() *memo {
	return &memo{
		schemas:     make(map[int64]*model.CredentialSchema),
		content:     make(map[int64][]byte),
		permissions: make(map[int64]*model.Permission),
		digests:     make(map[string]time.Time),
		deposits:    make(map[string]int64),
	}
}

// ClearMemo resets the per-cycle request memo; the polling loop calls this at the start of every
// poll cycle so no stale intra-cycle reads bleed across cycles.
func (c *Client) ClearMemo() {
	c.memo.mu.Lock()
	defer c.memo.mu.Unlock()
	*c.memo = *newMemo()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	endpoint := base.ResolveReference(&url.URL{Path: path})
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return helpers.NewErrorFromError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return helpers.NewErrorDetails("indexer_request_failed", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

var errNotFound = fmt.Errorf("indexer: not found")

// ResolveSchema resolves a credential's schema reference, either a VPR schema URI
// (vpr:<network>/cs/v1/js/<n>, matched directly to an integer id) or a URL (matched by listing
// schemas and comparing json_schema/$id equality).
func (c *Client) ResolveSchema(ctx context.Context, ref string) (*model.CredentialSchema, error) {
	if m := schemaURIPattern.FindStringSubmatch(ref); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, err
		}
		return c.schemaByID(ctx, id)
	}

	return c.schemaByURL(ctx, ref)
}

func (c *Client) schemaByID(ctx context.Context, id int64) (*model.CredentialSchema, error) {
	c.memo.mu.Lock()
	if cached, ok := c.memo.schemas[id]; ok {
		c.memo.mu.Unlock()
		return cached, nil
	}
	c.memo.mu.Unlock()

	var body struct {
		CredentialSchema *model.CredentialSchema `json:"credential_schema"`
	}
	q := url.Values{"jsId": []string{strconv.FormatInt(id, 10)}}
	if err := c.getJSON(ctx, "/verana/indexer/v1/credential-schema-by-json-schema-id", q, &body); err != nil {
		return nil, err
	}

	c.memo.mu.Lock()
	c.memo.schemas[id] = body.CredentialSchema
	c.memo.mu.Unlock()

	return body.CredentialSchema, nil
}

func (c *Client) schemaByURL(ctx context.Context, ref string) (*model.CredentialSchema, error) {
	var body struct {
		Schemas           []*model.CredentialSchema `json:"schemas"`
		CredentialSchemas []*model.CredentialSchema `json:"credential_schemas"`
	}
	if err := c.getJSON(ctx, "/verana/indexer/v1/credential-schemas", url.Values{"json_schema": []string{ref}}, &body); err != nil {
		return nil, err
	}

	candidates := body.Schemas
	if len(candidates) == 0 {
		candidates = body.CredentialSchemas
	}
	for _, schema := range candidates {
		if schema.JSONSchema == ref || schemaDollarIDMatches(schema.JSONSchema, ref) {
			c.memo.mu.Lock()
			c.memo.schemas[schema.ID] = schema
			c.memo.mu.Unlock()
			return schema, nil
		}
	}

	return nil, errNotFound
}

func schemaDollarIDMatches(jsonSchema, ref string) bool {
	var doc struct {
		ID string `json:"$id"`
	}
	if err := json.Unmarshal([]byte(jsonSchema), &doc); err != nil {
		return false
	}
	return doc.ID == ref
}

// SchemaByID fetches a credential schema by its on-chain integer id, for callers that already hold
// the id rather than a schema-reference string (the query façade's ecosystem-participant lookup).
func (c *Client) SchemaByID(ctx context.Context, id int64) (*model.CredentialSchema, error) {
	return c.schemaByID(ctx, id)
}

// TrustRegistryByDID looks up the trust registry controlled by the given DID.
func (c *Client) TrustRegistryByDID(ctx context.Context, did string) (*model.TrustRegistry, error) {
	var body struct {
		TrustRegistries []*model.TrustRegistry `json:"trust_registries"`
	}
	if err := c.getJSON(ctx, "/verana/indexer/v1/trust-registries", url.Values{"did": []string{did}}, &body); err != nil {
		return nil, err
	}
	if len(body.TrustRegistries) == 0 {
		return nil, errNotFound
	}
	return body.TrustRegistries[0], nil
}

// PermissionsByDID lists every active permission granted to did, across all schemas and types.
func (c *Client) PermissionsByDID(ctx context.Context, did string) ([]*model.Permission, error) {
	var body struct {
		Permissions []*model.Permission `json:"permissions"`
	}
	q := url.Values{"did": []string{did}, "only_valid": []string{"true"}}
	if err := c.getJSON(ctx, "/verana/indexer/v1/permissions", q, &body); err != nil {
		return nil, err
	}
	return body.Permissions, nil
}

// SchemaContent fetches the raw on-chain JSON Schema bytes for schemaID.
func (c *Client) SchemaContent(ctx context.Context, schemaID int64) ([]byte, error) {
	c.memo.mu.Lock()
	if cached, ok := c.memo.content[schemaID]; ok {
		c.memo.mu.Unlock()
		return cached, nil
	}
	c.memo.mu.Unlock()

	var body struct {
		Content string `json:"content"`
	}
	q := url.Values{"jsId": []string{strconv.FormatInt(schemaID, 10)}}
	if err := c.getJSON(ctx, "/verana/indexer/v1/json-schema-content", q, &body); err != nil {
		return nil, err
	}

	content := []byte(body.Content)
	c.memo.mu.Lock()
	c.memo.content[schemaID] = content
	c.memo.mu.Unlock()

	return content, nil
}

// ActivePermission looks up the first ACTIVE permission matching (did, schemaID, permType).
func (c *Client) ActivePermission(ctx context.Context, did string, schemaID int64, permType model.PermissionType) (*model.Permission, error) {
	var body struct {
		Permissions []*model.Permission `json:"permissions"`
	}
	q := url.Values{
		"did":        []string{did},
		"schema_id":  []string{strconv.FormatInt(schemaID, 10)},
		"type":       []string{string(permType)},
		"only_valid": []string{"true"},
	}
	if err := c.getJSON(ctx, "/verana/indexer/v1/permissions", q, &body); err != nil {
		return nil, err
	}

	for _, perm := range body.Permissions {
		if perm.State == model.PermissionActive {
			c.memo.mu.Lock()
			c.memo.permissions[perm.ID] = perm
			c.memo.mu.Unlock()
			return perm, nil
		}
	}

	return nil, errNotFound
}

// PermissionByID fetches a single permission by its on-chain id.
func (c *Client) PermissionByID(ctx context.Context, id int64) (*model.Permission, error) {
	c.memo.mu.Lock()
	if cached, ok := c.memo.permissions[id]; ok {
		c.memo.mu.Unlock()
		return cached, nil
	}
	c.memo.mu.Unlock()

	var body struct {
		Permission *model.Permission `json:"permission"`
	}
	q := url.Values{"id": []string{strconv.FormatInt(id, 10)}}
	if err := c.getJSON(ctx, "/verana/indexer/v1/permission", q, &body); err != nil {
		return nil, err
	}

	c.memo.mu.Lock()
	c.memo.permissions[id] = body.Permission
	c.memo.mu.Unlock()

	return body.Permission, nil
}

// EcosystemPermission looks up the ECOSYSTEM permission for ecosystemDID.
func (c *Client) EcosystemPermission(ctx context.Context, ecosystemDID string) (*model.Permission, error) {
	var body struct {
		Permissions []*model.Permission `json:"permissions"`
	}
	q := url.Values{
		"did":        []string{ecosystemDID},
		"type":       []string{string(model.PermissionEcosystem)},
		"only_valid": []string{"true"},
	}
	if err := c.getJSON(ctx, "/verana/indexer/v1/permissions", q, &body); err != nil {
		return nil, err
	}
	if len(body.Permissions) == 0 {
		return nil, errNotFound
	}
	return body.Permissions[0], nil
}

// DigestCreatedAt looks up when digestSRI was first seen on-chain. found is false on a clean miss.
func (c *Client) DigestCreatedAt(ctx context.Context, digestSRI string) (time.Time, bool, error) {
	c.memo.mu.Lock()
	if cached, ok := c.memo.digests[digestSRI]; ok {
		c.memo.mu.Unlock()
		return cached, true, nil
	}
	c.memo.mu.Unlock()

	var body struct {
		Digest struct {
			Created time.Time `json:"created"`
		} `json:"digest"`
	}
	q := url.Values{"digestSri": []string{digestSRI}}
	err := c.getJSON(ctx, "/verana/indexer/v1/digest", q, &body)
	if err == errNotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	c.memo.mu.Lock()
	c.memo.digests[digestSRI] = body.Digest.Created
	c.memo.mu.Unlock()

	return body.Digest.Created, true, nil
}

// TrustDeposit returns did's current trust deposit amount.
func (c *Client) TrustDeposit(ctx context.Context, did string) (int64, error) {
	c.memo.mu.Lock()
	if cached, ok := c.memo.deposits[did]; ok {
		c.memo.mu.Unlock()
		return cached, nil
	}
	c.memo.mu.Unlock()

	var body struct {
		TrustDeposit struct {
			Amount int64 `json:"amount"`
		} `json:"trust_deposit"`
	}
	q := url.Values{"did": []string{did}}
	if err := c.getJSON(ctx, "/verana/indexer/v1/trust-deposit", q, &body); err != nil {
		return 0, err
	}

	c.memo.mu.Lock()
	c.memo.deposits[did] = body.TrustDeposit.Amount
	c.memo.mu.Unlock()

	return body.TrustDeposit.Amount, nil
}
