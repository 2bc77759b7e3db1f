// Package didresolver dispatches a DID string to its method-specific resolution and returns a
// DID Document. Only did:web and did:webvh are implemented; any other method fails permanently.
package didresolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"trustresolver/pkg/cache"
	"trustresolver/pkg/helpers"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
)

// Resolver resolves DIDs to DID Documents, caching successful fetches.
type Resolver struct {
	httpClient *http.Client
	cache      *cache.ObjectCache
	log        *logger.Log
}

// New creates a Resolver backed by the given object cache.
func New(objectCache *cache.ObjectCache, log *logger.Log) *Resolver {
	return &Resolver{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      objectCache,
		log:        log.New("didresolver"),
	}
}

// Invalidate drops did's cached document, if any, so the next Resolve re-fetches it. The polling
// loop calls this at the start of Pass 1 for every affected DID.
func (r *Resolver) Invalidate(did string) {
	docURL, err := r.docURL(did)
	if err != nil {
		return
	}
	r.cache.Invalidate(docURL)
}

func (r *Resolver) docURL(did string) (string, error) {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) != 3 || parts[0] != "did" {
		return "", helpers.ErrDIDResolutionPermanent
	}

	switch parts[1] {
	case "web":
		return didWebToURL(parts[2])
	case "webvh":
		idx := strings.LastIndex(parts[2], ":")
		if idx < 0 {
			return "", helpers.ErrDIDResolutionPermanent
		}
		return didWebToURL(parts[2][idx+1:])
	default:
		return "", helpers.ErrDIDResolutionPermanent
	}
}

// Resolve dispatches did to its method handler and returns the DID Document.
//
// A resolution failure wraps helpers.ErrDIDResolutionPermanent when the method is unsupported or
// the DID is malformed (never worth retrying), and helpers.ErrDIDResolutionFailed otherwise
// (network/parse failures the reattempt subsystem should retry).
func (r *Resolver) Resolve(ctx context.Context, did string) (*model.DIDDocument, error) {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) != 3 || parts[0] != "did" {
		return nil, helpers.ErrDIDResolutionPermanent
	}

	switch parts[1] {
	case "web":
		return r.resolveWeb(ctx, did, parts[2])
	case "webvh":
		return r.resolveWebVH(ctx, did, parts[2])
	default:
		r.log.Info("unsupported DID method", "did", did, "method", parts[1])
		return nil, helpers.ErrDIDResolutionPermanent
	}
}

// resolveWeb implements the did:web method: https://w3c-ccg.github.io/did-method-web/
func (r *Resolver) resolveWeb(ctx context.Context, did, methodSpecificID string) (*model.DIDDocument, error) {
	docURL, err := didWebToURL(methodSpecificID)
	if err != nil {
		return nil, helpers.ErrDIDResolutionPermanent
	}

	return r.fetchDocument(ctx, did, docURL)
}

// resolveWebVH implements did:webvh resolution by stripping the trailing SCID segment and
// resolving the remainder exactly as did:web.
func (r *Resolver) resolveWebVH(ctx context.Context, did, methodSpecificID string) (*model.DIDDocument, error) {
	idx := strings.LastIndex(methodSpecificID, ":")
	if idx < 0 {
		return nil, helpers.ErrDIDResolutionPermanent
	}

	docURL, err := didWebToURL(methodSpecificID[idx+1:])
	if err != nil {
		return nil, helpers.ErrDIDResolutionPermanent
	}

	return r.fetchDocument(ctx, did, docURL)
}

// didWebToURL converts a did:web method-specific-id to the well-known document URL it resolves to.
func didWebToURL(methodSpecificID string) (string, error) {
	segments := strings.Split(methodSpecificID, ":")
	for i, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return "", err
		}
		segments[i] = decoded
	}

	host := segments[0]
	path := segments[1:]

	if len(path) == 0 {
		return fmt.Sprintf("https://%s/.well-known/did.json", host), nil
	}

	return fmt.Sprintf("https://%s/%s/did.json", host, strings.Join(path, "/")), nil
}

func (r *Resolver) fetchDocument(ctx context.Context, did, docURL string) (*model.DIDDocument, error) {
	if entry := r.cache.Get(docURL); entry != nil {
		var doc model.DIDDocument
		if err := json.Unmarshal(entry.Body, &doc); err == nil {
			return &doc, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, helpers.ErrDIDResolutionPermanent
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.Error(err, "DID document fetch failed", "did", did, "url", docURL)
		return nil, helpers.ErrDIDResolutionFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, helpers.ErrDIDResolutionPermanent
	}
	if resp.StatusCode != http.StatusOK {
		return nil, helpers.ErrDIDResolutionFailed
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, helpers.ErrDIDResolutionFailed
	}

	var doc model.DIDDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		r.log.Error(err, "DID document unmarshal failed", "did", did)
		return nil, helpers.ErrDIDResolutionPermanent
	}

	r.cache.Set(docURL, body)

	return &doc, nil
}
