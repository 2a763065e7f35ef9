package redisindex

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/santiagoj/homeguard/internal/repository"
)

const (
	// keyPrefix namespaces pairing-code index entries in Redis
	keyPrefix = "paircode:"
	// entryTTL bounds staleness of the index; the backend remains the
	// source of truth and misses simply fall back to it.
	entryTTL = 24 * time.Hour
)

type pairingIndex struct {
	client *redis.Client
}

// New creates a Redis-backed pairing-code index
func New(client *redis.Client) repository.PairingIndex {
	return &pairingIndex{client: client}
}

// Get returns the identity key cached for a pairing code, or "" on a miss.
// A miss is not an error.
func (i *pairingIndex) Get(ctx context.Context, pairingCode string) (string, error) {
	val, err := i.client.Get(ctx, keyPrefix+pairingCode).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (i *pairingIndex) Set(ctx context.Context, pairingCode, identityKey string) error {
	return i.client.Set(ctx, keyPrefix+pairingCode, identityKey, entryTTL).Err()
}

func (i *pairingIndex) Delete(ctx context.Context, pairingCode string) error {
	return i.client.Del(ctx, keyPrefix+pairingCode).Err()
}
