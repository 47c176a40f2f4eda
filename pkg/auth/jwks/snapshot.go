package jwks

import (
	"context"
	"encoding/json"
	"time"
)

// SnapshotStore keeps the last good JWKS document per URL outside the
// process. A cache with a store falls back to the snapshot when it has no
// entry of its own and the provider cannot be reached, so a freshly started
// replica keeps accepting tokens during a provider outage.
//
// LoadSnapshot returns nil, nil when no snapshot exists.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, url string) ([]byte, error)
	SaveSnapshot(ctx context.Context, url string, doc []byte) error
}

// WithSnapshots sets the snapshot store.
func WithSnapshots(s SnapshotStore) Option {
	return func(c *Cache) { c.shared = s }
}

type snapshot struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Document  json.RawMessage `json:"document"`
}

func (c *Cache) snapshotContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
}

// loadSnapshot returns the shared key set for url, or nil. Failures are
// logged and treated as a miss.
func (c *Cache) loadSnapshot(ctx context.Context, url string) *KeySet {
	if c.shared == nil {
		return nil
	}
	ctx, cancel := c.snapshotContext(ctx)
	defer cancel()

	raw, err := c.shared.LoadSnapshot(ctx, url)
	if err != nil {
		c.logger.WarnContext(ctx, "jwks: failed to load snapshot", "url", url, "error", err)
		return nil
	}
	if raw == nil {
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.WarnContext(ctx, "jwks: discarding unreadable snapshot", "url", url, "error", err)
		return nil
	}
	keys, _, err := parse(snap.Document)
	if err != nil || len(keys) == 0 {
		c.logger.WarnContext(ctx, "jwks: discarding snapshot without usable keys", "url", url, "error", err)
		return nil
	}
	return newKeySet(url, keys, snap.FetchedAt, c.cfg.TTL)
}

func (c *Cache) saveSnapshot(ctx context.Context, url string, fetchedAt time.Time, doc []byte) {
	if c.shared == nil {
		return
	}
	raw, err := json.Marshal(snapshot{FetchedAt: fetchedAt.UTC(), Document: doc})
	if err != nil {
		c.logger.WarnContext(ctx, "jwks: failed to encode snapshot", "url", url, "error", err)
		return
	}
	ctx, cancel := c.snapshotContext(ctx)
	defer cancel()
	if err := c.shared.SaveSnapshot(ctx, url, raw); err != nil {
		c.logger.WarnContext(ctx, "jwks: failed to save snapshot", "url", url, "error", err)
	}
}
