// Package vpderef dereferences the LinkedVerifiablePresentation service entries of a DID Document,
// fetching each endpoint in parallel and collecting per-endpoint failures separately from the
// successfully dereferenced presentations.
package vpderef

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"
	"trustresolver/pkg/cache"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"
)

// Dereferencer fetches LinkedVerifiablePresentation bodies, caching successful fetches.
type Dereferencer struct {
	httpClient *http.Client
	cache      *cache.ObjectCache
	log        *logger.Log
}

// New creates a Dereferencer backed by the given object cache.
func New(objectCache *cache.ObjectCache, log *logger.Log) *Dereferencer {
	return &Dereferencer{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      objectCache,
		log:        log.New("vpderef"),
	}
}

type result struct {
	url string
	vp  *model.VerifiablePresentation
	err error
}

// Dereference fetches every LinkedVerifiablePresentation endpoint of doc concurrently. It never
// returns an error itself: per-endpoint failures are reported as model.VPDereferenceError entries
// alongside the presentations that did resolve, so one unreachable endpoint never blocks the rest.
func (d *Dereferencer) Dereference(ctx context.Context, doc *model.DIDDocument) ([]model.VerifiablePresentation, []model.VPDereferenceError) {
	endpoints := doc.LinkedVPEndpoints()
	if len(endpoints) == 0 {
		return nil, nil
	}

	results := make(chan result, len(endpoints))
	var wg sync.WaitGroup
	for _, endpoint := range endpoints {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			vp, err := d.fetchVP(ctx, url)
			results <- result{url: url, vp: vp, err: err}
		}(endpoint)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var vps []model.VerifiablePresentation
	var errs []model.VPDereferenceError
	for r := range results {
		if r.err != nil {
			errs = append(errs, model.VPDereferenceError{URL: r.url, Error: r.err.Error()})
			continue
		}
		vps = append(vps, *r.vp)
	}

	return vps, errs
}

func (d *Dereferencer) fetchVP(ctx context.Context, url string) (*model.VerifiablePresentation, error) {
	if entry := d.cache.Get(url); entry != nil {
		var vp model.VerifiablePresentation
		if err := json.Unmarshal(entry.Body, &vp); err == nil {
			vp.SourceURL = url
			return &vp, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.log.Error(err, "VP endpoint fetch failed", "url", url)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{url: url, status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var vp model.VerifiablePresentation
	if err := json.Unmarshal(body, &vp); err != nil {
		d.log.Error(err, "VP body unmarshal failed", "url", url)
		return nil, err
	}

	d.cache.Set(url, body)
	vp.SourceURL = url

	return &vp, nil
}

type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.status) + " fetching " + e.url
}
