package keyregistry

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"auction-settlement/pkg/logger"
)

// FileRegistry serves keys from a directory of PEM files named after the bidder.
// Reload replaces the in-memory snapshot; a miss falls back to reading the file.
type FileRegistry struct {
	dir    string
	prefix string
	suffix string

	mutex sync.RWMutex
	keys  map[string]*rsa.PublicKey
	log   logger.Logger
}

// NewFileRegistry loads every key under dir. pattern holds exactly one %s,
// which stands for the bidder id (for example "%s_public.pem").
func NewFileRegistry(dir, pattern string, log logger.Logger) (*FileRegistry, error) {
	if strings.Count(pattern, "%s") != 1 {
		return nil, fmt.Errorf("key file pattern %q must contain exactly one %%s", pattern)
	}
	prefix, suffix, _ := strings.Cut(pattern, "%s")

	r := &FileRegistry{
		dir:    dir,
		prefix: prefix,
		suffix: suffix,
		keys:   make(map[string]*rsa.PublicKey),
		log:    log,
	}
	if _, err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rescans the directory. Unparseable files are logged and skipped.
func (r *FileRegistry) Reload() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("read key directory %s: %w", r.dir, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		bidderID, ok := r.bidderIDFor(e.Name())
		if !ok {
			continue
		}
		pub, err := r.readKey(bidderID)
		if err != nil {
			r.log.Warn("Skipping unreadable bidder key", "bidder_id", bidderID, "error", err)
			continue
		}
		keys[bidderID] = pub
	}

	r.mutex.Lock()
	r.keys = keys
	r.mutex.Unlock()

	r.log.Debug("Bidder keys reloaded", "dir", r.dir, "count", len(keys))
	return len(keys), nil
}

// Len reports how many keys the current snapshot holds.
func (r *FileRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.keys)
}

func (r *FileRegistry) PublicKey(_ context.Context, bidderID string) (*rsa.PublicKey, error) {
	if !ValidBidderID(bidderID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBidderID, bidderID)
	}

	r.mutex.RLock()
	pub, ok := r.keys[bidderID]
	r.mutex.RUnlock()
	if ok {
		return pub, nil
	}

	pub, err := r.readKey(bidderID)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	r.keys[bidderID] = pub
	r.mutex.Unlock()
	return pub, nil
}

func (r *FileRegistry) bidderIDFor(name string) (string, bool) {
	if !strings.HasPrefix(name, r.prefix) || !strings.HasSuffix(name, r.suffix) {
		return "", false
	}
	if len(name) <= len(r.prefix)+len(r.suffix) {
		return "", false
	}
	id := name[len(r.prefix) : len(name)-len(r.suffix)]
	return id, ValidBidderID(id)
}

func (r *FileRegistry) readKey(bidderID string) (*rsa.PublicKey, error) {
	path := filepath.Join(r.dir, r.prefix+bidderID+r.suffix)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, bidderID)
		}
		return nil, fmt.Errorf("read key file: %w", err)
	}
	pub, err := ParsePublicKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("key for %s: %w", bidderID, err)
	}
	return pub, nil
}
