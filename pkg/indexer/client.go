// Package indexer is the client for the external VPR indexer: it pulls on-chain events
// (trust registries, credential schemas, permissions) since a given block, and pushes new-block
// notifications over a websocket channel so the polling loop can react without busy-waiting.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"trustresolver/pkg/helpers"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
)

// Event is one on-chain change the indexer reports, already decoded into this resolver's model.
type Event struct {
	Block             int64                    `json:"block"`
	TrustRegistry      *model.TrustRegistry     `json:"trust_registry,omitempty"`
	CredentialSchema  *model.CredentialSchema  `json:"credential_schema,omitempty"`
	Permission        *model.Permission        `json:"permission,omitempty"`
}

// rawEvent mirrors the indexer's wire shape, which this resolver normalizes: some indexer
// deployments key credential schema events as "schemas", others as "credential_schemas".
type rawEvent struct {
	Block            int64                   `json:"block"`
	TrustRegistry     *model.TrustRegistry    `json:"trust_registry,omitempty"`
	Schemas          *model.CredentialSchema `json:"schemas,omitempty"`
	CredentialSchemas *model.CredentialSchema `json:"credential_schemas,omitempty"`
	Permission       *model.Permission       `json:"permission,omitempty"`
}

func (r rawEvent) normalize() Event {
	schema := r.Schemas
	if schema == nil {
		schema = r.CredentialSchemas
	}
	return Event{
		Block:            r.Block,
		TrustRegistry:    r.TrustRegistry,
		CredentialSchema: schema,
		Permission:       r.Permission,
	}
}

// Client is the indexer HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	eventsPath string
	log        *logger.Log
	memo       *memo
}

// New creates a new indexer client.
func New(cfg *model.Indexer, log *logger.Log) (*Client, error) {
	if err := helpers.CheckSimple(cfg); err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.RequestTimout) * time.Second},
		baseURL:    cfg.BaseURL,
		eventsPath: cfg.EventsPath,
		log:        log.New("indexer"),
		memo:       newMemo(),
	}, nil
}

// EventsSince fetches every on-chain event the indexer has recorded after sinceBlock.
func (c *Client) EventsSince(ctx context.Context, sinceBlock int64) ([]Event, error) {
	rel, err := url.Parse(c.eventsPath)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	endpoint := base.ResolveReference(rel)

	q := endpoint.Query()
	q.Set("since_block", fmt.Sprintf("%d", sinceBlock))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, helpers.NewErrorFromError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		buf := &bytes.Buffer{}
		_, _ = io.Copy(buf, resp.Body)
		return nil, helpers.NewErrorDetails("indexer_request_failed", buf.String())
	}

	var body struct {
		Events []rawEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, helpers.NewErrorFromError(err)
	}

	events := make([]Event, len(body.Events))
	for i, raw := range body.Events {
		events[i] = raw.normalize()
	}

	return events, nil
}

// CurrentBlock returns the indexer's current chain head, used as the upper bound for a poll pass.
func (c *Client) CurrentBlock(ctx context.Context) (int64, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return 0, err
	}
	endpoint := base.ResolveReference(&url.URL{Path: "/verana/indexer/v1/block"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, helpers.NewErrorFromError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, helpers.NewErrorDetails("indexer_request_failed", resp.Status)
	}

	var body struct {
		Block int64 `json:"block"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, helpers.NewErrorFromError(err)
	}

	return body.Block, nil
}
