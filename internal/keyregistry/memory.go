package keyregistry

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
)

// MemoryRegistry is a map-backed registry, used for embedded setups and tests.
type MemoryRegistry struct {
	mutex sync.RWMutex
	keys  map[string]*rsa.PublicKey
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{keys: make(map[string]*rsa.PublicKey)}
}

func (r *MemoryRegistry) Put(bidderID string, pub *rsa.PublicKey) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.keys[bidderID] = pub
}

func (r *MemoryRegistry) PublicKey(_ context.Context, bidderID string) (*rsa.PublicKey, error) {
	if !ValidBidderID(bidderID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBidderID, bidderID)
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	pub, ok := r.keys[bidderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, bidderID)
	}
	return pub, nil
}
