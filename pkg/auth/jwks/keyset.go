package jwks

import (
	"time"

	"github.com/go-jose/go-jose/v4"
)

// KeySet is an immutable set of public verification keys fetched from one
// JWKS endpoint.
type KeySet struct {
	url       string
	keys      []jose.JSONWebKey
	byID      map[string]jose.JSONWebKey
	fetchedAt time.Time
	expiresAt time.Time
}

func newKeySet(url string, keys []jose.JSONWebKey, fetchedAt time.Time, ttl time.Duration) *KeySet {
	byID := make(map[string]jose.JSONWebKey, len(keys))
	for _, k := range keys {
		if k.KeyID != "" {
			byID[k.KeyID] = k
		}
	}
	return &KeySet{
		url:       url,
		keys:      keys,
		byID:      byID,
		fetchedAt: fetchedAt,
		expiresAt: fetchedAt.Add(ttl),
	}
}

// URL returns the endpoint the keys were fetched from.
func (s *KeySet) URL() string { return s.url }

// Len returns the number of keys.
func (s *KeySet) Len() int { return len(s.keys) }

// FetchedAt returns when the keys were fetched.
func (s *KeySet) FetchedAt() time.Time { return s.fetchedAt }

// ExpiresAt returns when the keys stop being fresh.
func (s *KeySet) ExpiresAt() time.Time { return s.expiresAt }

// Keys returns a copy of the keys in document order.
func (s *KeySet) Keys() []jose.JSONWebKey {
	out := make([]jose.JSONWebKey, len(s.keys))
	copy(out, s.keys)
	return out
}

// Lookup returns the key with the given key id.
func (s *KeySet) Lookup(kid string) (jose.JSONWebKey, bool) {
	k, ok := s.byID[kid]
	return k, ok
}
