package smscode

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StoreConfig contains configuration for creating a code store
type StoreConfig struct {
	// RedisClient is required for Redis stores
	RedisClient *redis.Client
	// DataDir is required for file-based stores
	DataDir string
}

// NewCodeStore creates a new code store based on the persistence type. Redis
// is the right choice when multiple instances share the verification load.
func NewCodeStore(persistenceType string, config StoreConfig) (CodeStore, error) {
	switch persistenceType {
	case "redis":
		if config.RedisClient == nil {
			return nil, fmt.Errorf("redis client required for redis store")
		}
		return NewRedisCodeStore(config.RedisClient), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file store")
		}
		return NewFileCodeStore(config.DataDir)
	case "memory":
		return NewInMemoryCodeStore(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: redis, file, memory)", persistenceType)
	}
}
