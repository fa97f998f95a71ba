package accounts

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetKeyPrefix = "accounts:reset:"

// TokenStore keeps single-use reset tokens in Redis.
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// Put stores token for accountID until ttl elapses.
func (s *TokenStore) Put(ctx context.Context, token string, accountID int64, ttl time.Duration) error {
	return s.client.Set(ctx, resetKeyPrefix+token, accountID, ttl).Err()
}

// Take returns the account of token and deletes it.
func (s *TokenStore) Take(ctx context.Context, token string) (int64, error) {
	v, err := s.client.GetDel(ctx, resetKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrInvalidToken
		}
		return 0, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Delete drops token.
func (s *TokenStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, resetKeyPrefix+token).Err()
}
