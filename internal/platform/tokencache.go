package platform

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// expirySkew is subtracted from vendor-reported lifetimes so a token is never used in its last minute.
const expirySkew = time.Minute

// TokenCache keeps bearer tokens per scope (vendor + tenant) until shortly before they expire.
type TokenCache struct {
	c *cache.Cache
}

// NewTokenCache creates an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{c: cache.New(cache.NoExpiration, 10*time.Minute)}
}

// Get returns a live token for scope.
func (t *TokenCache) Get(scope string) (string, bool) {
	v, ok := t.c.Get(scope)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// Set stores token for ttl minus a safety skew. ttl <= 0 keeps it until invalidated.
func (t *TokenCache) Set(scope, token string, ttl time.Duration) {
	if ttl <= 0 {
		t.c.Set(scope, token, cache.NoExpiration)
		return
	}
	if ttl > 2*expirySkew {
		ttl -= expirySkew
	}
	t.c.Set(scope, token, ttl)
}

// Invalidate drops the token for scope.
func (t *TokenCache) Invalidate(scope string) {
	t.c.Delete(scope)
}
