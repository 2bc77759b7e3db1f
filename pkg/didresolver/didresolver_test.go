package didresolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"trustresolver/pkg/cache"
	"trustresolver/pkg/helpers"
	"trustresolver/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.well-known/did.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"did:web:example.com"}`))
	}))
	defer srv.Close()

	resolver := New(cache.New(time.Minute), logger.NewSimple("test"))

	doc, err := resolver.fetchDocument(context.Background(), "did:web:example.com", srv.URL+"/.well-known/did.json")
	require.NoError(t, err)
	assert.Equal(t, "did:web:example.com", doc.ID)

	// second fetch should hit the object cache, not the server
	doc2, err := resolver.fetchDocument(context.Background(), "did:web:example.com", srv.URL+"/.well-known/did.json")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, doc2.ID)
}

func TestResolveUnsupportedMethod(t *testing.T) {
	resolver := New(cache.New(time.Minute), logger.NewSimple("test"))

	_, err := resolver.Resolve(context.Background(), "did:key:z6Mk")
	assert.ErrorIs(t, err, helpers.ErrDIDResolutionPermanent)
}

func TestResolveMalformedDID(t *testing.T) {
	resolver := New(cache.New(time.Minute), logger.NewSimple("test"))

	_, err := resolver.Resolve(context.Background(), "not-a-did")
	assert.ErrorIs(t, err, helpers.ErrDIDResolutionPermanent)
}

func TestDidWebToURLWithPath(t *testing.T) {
	url, err := didWebToURL("example.com:user:alice")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/user/alice/did.json", url)
}
