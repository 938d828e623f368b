package billing

import (
	"time"

	"github.com/membergate/membergate/internal/pkg/cache"
)

// RedisTransactionCache backs the transaction lookup cache with the shared
// Redis connection.
type RedisTransactionCache struct{}

func (RedisTransactionCache) Get(key string) (string, error) {
	return cache.Get(key)
}

func (RedisTransactionCache) Set(key string, value string, ttl time.Duration) error {
	return cache.Set(key, value, ttl)
}
