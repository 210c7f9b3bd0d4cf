package keyregistry

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"auction-settlement/pkg/logger"

	"github.com/coocood/freecache"
)

// PEMSource loads the PEM-encoded key of one bidder from a remote store.
// It returns an error wrapping ErrKeyNotFound when the bidder has no key.
type PEMSource interface {
	LoadPEM(ctx context.Context, bidderID string) ([]byte, error)
}

// CachedRegistry fronts a PEMSource with a freecache TTL cache of PEM bytes.
type CachedRegistry struct {
	source PEMSource
	cache  *freecache.Cache
	ttl    time.Duration
	log    logger.Logger
}

// NewCachedRegistry allocates a cache of sizeMB megabytes.
func NewCachedRegistry(source PEMSource, sizeMB int, ttl time.Duration, log logger.Logger) *CachedRegistry {
	return &CachedRegistry{
		source: source,
		cache:  freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:    ttl,
		log:    log,
	}
}

func (r *CachedRegistry) PublicKey(ctx context.Context, bidderID string) (*rsa.PublicKey, error) {
	if !ValidBidderID(bidderID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBidderID, bidderID)
	}

	if data, err := r.cache.Get([]byte(bidderID)); err == nil {
		if pub, err := ParsePublicKeyPEM(data); err == nil {
			return pub, nil
		}
		r.cache.Del([]byte(bidderID))
	} else if !errors.Is(err, freecache.ErrNotFound) {
		r.log.Warn("Key cache lookup failed", "bidder_id", bidderID, "error", err)
	}

	data, err := r.source.LoadPEM(ctx, bidderID)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("key for %s: %w", bidderID, err)
	}

	if err := r.cache.Set([]byte(bidderID), data, int(r.ttl.Seconds())); err != nil {
		r.log.Warn("Key cache store failed", "bidder_id", bidderID, "error", err)
	}
	return pub, nil
}

// Reload drops every cached key so the next lookup reads the source again.
// It returns the number of keys dropped.
func (r *CachedRegistry) Reload() (int, error) {
	n := r.cache.EntryCount()
	r.cache.Clear()
	return int(n), nil
}
