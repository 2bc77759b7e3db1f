package vpderef

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"trustresolver/pkg/cache"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"

	"github.com/stretchr/testify/assert"
)

func TestDereferenceCollectsSuccessesAndFailures(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"holder":"did:web:holder.example"}`))
	}))
	defer okSrv.Close()

	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer badSrv.Close()

	doc := &model.DIDDocument{
		ID: "did:web:example.com",
		Service: []model.ServiceEntry{
			{ID: "#vp1", Type: []string{"LinkedVerifiablePresentation"}, ServiceEndpoint: okSrv.URL},
			{ID: "#vp2", Type: []string{"LinkedVerifiablePresentation"}, ServiceEndpoint: badSrv.URL},
		},
	}

	deref := New(cache.New(time.Minute), logger.NewSimple("test"))
	vps, errs := deref.Dereference(context.Background(), doc)

	assert.Len(t, vps, 1)
	assert.Equal(t, "did:web:holder.example", vps[0].Holder)
	assert.Len(t, errs, 1)
	assert.Equal(t, badSrv.URL, errs[0].URL)
}

func TestDereferenceNoEndpoints(t *testing.T) {
	doc := &model.DIDDocument{ID: "did:web:example.com"}

	deref := New(cache.New(time.Minute), logger.NewSimple("test"))
	vps, errs := deref.Dereference(context.Background(), doc)

	assert.Empty(t, vps)
	assert.Empty(t, errs)
}

func TestDereferenceCachesOnSecondFetch(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"holder":"did:web:holder.example"}`))
	}))
	defer srv.Close()

	doc := &model.DIDDocument{
		ID: "did:web:example.com",
		Service: []model.ServiceEntry{
			{ID: "#vp1", Type: []string{"LinkedVerifiablePresentation"}, ServiceEndpoint: srv.URL},
		},
	}

	deref := New(cache.New(time.Minute), logger.NewSimple("test"))
	_, _ = deref.Dereference(context.Background(), doc)
	_, _ = deref.Dereference(context.Background(), doc)

	assert.Equal(t, 1, hits)
}
