package redis

import (
	"context"
	"errors"
	"fmt"

	"auction-settlement/internal/keyregistry"

	"github.com/go-redis/redis/v8"
)

// KeyStore reads bidder public keys from a hash: field = bidder id, value = PEM.
type KeyStore struct {
	client *redis.Client
	hash   string
}

func NewKeyStore(client *redis.Client, hash string) *KeyStore {
	return &KeyStore{client: client, hash: hash}
}

func (s *KeyStore) LoadPEM(ctx context.Context, bidderID string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.hash, bidderID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", keyregistry.ErrKeyNotFound, bidderID)
		}
		return nil, fmt.Errorf("load key from redis: %w", err)
	}
	return data, nil
}

func (s *KeyStore) StorePEM(ctx context.Context, bidderID string, pem []byte) error {
	return s.client.HSet(ctx, s.hash, bidderID, pem).Err()
}
