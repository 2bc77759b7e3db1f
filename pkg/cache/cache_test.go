package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectCacheGetSet(t *testing.T) {
	c := New(50 * time.Millisecond)
	defer c.Stop()

	assert.Nil(t, c.Get("did:web:example.com"))

	c.Set("did:web:example.com", []byte(`{"id":"did:web:example.com"}`))
	entry := c.Get("did:web:example.com")
	if assert.NotNil(t, entry) {
		assert.Equal(t, `{"id":"did:web:example.com"}`, string(entry.Body))
	}

	assert.Equal(t, 1, c.Len())
}

func TestObjectCacheExpires(t *testing.T) {
	c := New(10 * time.Millisecond)
	defer c.Stop()

	c.Set("k", []byte("v"))
	assert.NotNil(t, c.Get("k"))

	time.Sleep(60 * time.Millisecond)
	assert.Nil(t, c.Get("k"))
}

func TestObjectCacheInvalidate(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("k", []byte("v"))
	assert.NotNil(t, c.Get("k"))

	c.Invalidate("k")
	assert.Nil(t, c.Get("k"))
}
