package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsSinceNormalizesSchemaKeyShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("since_block"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"block": 101, "schemas": map[string]any{"id": 1, "tr_id": 1}},
				{"block": 102, "credential_schemas": map[string]any{"id": 2, "tr_id": 1}},
			},
		})
	}))
	defer srv.Close()

	client, err := New(&model.Indexer{BaseURL: srv.URL, EventsPath: "/events", RequestTimout: 5}, logger.NewSimple("test"))
	require.NoError(t, err)

	events, err := client.EventsSince(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, int64(1), events[0].CredentialSchema.ID)
	assert.Equal(t, int64(2), events[1].CredentialSchema.ID)
}

func TestCurrentBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"block": 42})
	}))
	defer srv.Close()

	client, err := New(&model.Indexer{BaseURL: srv.URL, EventsPath: "/events", RequestTimout: 5}, logger.NewSimple("test"))
	require.NoError(t, err)

	block, err := client.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), block)
}

func TestEventsSinceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client, err := New(&model.Indexer{BaseURL: srv.URL, EventsPath: "/events", RequestTimout: 5}, logger.NewSimple("test"))
	require.NoError(t, err)

	_, err = client.EventsSince(context.Background(), 0)
	assert.Error(t, err)
}
