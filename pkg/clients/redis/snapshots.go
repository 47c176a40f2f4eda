package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/jwks"
)

// KeySetSnapshots stores JWKS snapshots for [jwks.Cache]. Keys are derived
// from a hash of the JWKS URL so arbitrary URLs stay within one namespace.
type KeySetSnapshots struct {
	client *Client
	prefix string
	ttl    time.Duration
}

var _ jwks.SnapshotStore = (*KeySetSnapshots)(nil)

// NewKeySetSnapshots uses the key prefix and snapshot TTL of the client
// configuration.
func NewKeySetSnapshots(client *Client) *KeySetSnapshots {
	cfg := client.Config()
	prefix, ttl := cfg.KeyPrefix, cfg.SnapshotTTL
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &KeySetSnapshots{client: client, prefix: prefix, ttl: ttl}
}

// LoadSnapshot returns nil, nil when no snapshot is stored for url.
func (s *KeySetSnapshots) LoadSnapshot(ctx context.Context, url string) ([]byte, error) {
	doc, found, err := s.client.Get(ctx, s.key(url))
	if err != nil || !found {
		return nil, err
	}
	return doc, nil
}

// SaveSnapshot overwrites the snapshot for url and restarts its TTL.
func (s *KeySetSnapshots) SaveSnapshot(ctx context.Context, url string, doc []byte) error {
	return s.client.Set(ctx, s.key(url), doc, s.ttl)
}

func (s *KeySetSnapshots) key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return s.prefix + "jwks:" + hex.EncodeToString(sum[:])
}
