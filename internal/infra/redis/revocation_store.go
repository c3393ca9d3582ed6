package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const revokedSessionsKey = "sessions:revoked"

// RevocationStore shares revoked session ids across instances through a
// Redis set, so a displaced device is rejected by every node.
type RevocationStore struct {
	client *redis.Client
}

func NewRevocationStore(client *redis.Client) *RevocationStore {
	return &RevocationStore{client: client}
}

func (s *RevocationStore) Revoke(ctx context.Context, sessionID string) error {
	return s.client.SAdd(ctx, revokedSessionsKey, sessionID).Err()
}

func (s *RevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	return s.client.SIsMember(ctx, revokedSessionsKey, sessionID).Result()
}
