package config

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
// Redis backs the SMS code store when running multiple instances,
// so codes issued by one instance can be verified on another.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" env-default:"localhost"`
	Port     uint16 `env:"REDIS_PORT" env-default:"6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// Addr returns the host:port address for the Redis server
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ToRedisOptions converts the config to go-redis client options
func (r RedisConfig) ToRedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     r.Addr(),
		Password: r.Password,
		DB:       r.DB,
	}
}

// Validate checks that the Redis configuration is usable
func (r RedisConfig) Validate() error {
	return Validate(
		func() ValidationErrors {
			return CollectErrors(
				RequireNonEmpty("host", r.Host),
				RequireValidPort("port", r.Port),
				RequireNonNegative("db", r.DB),
			)
		},
	)
}

// NewRedisConfigFromEnv creates a RedisConfig from environment variables
func NewRedisConfigFromEnv() RedisConfig {
	return RedisConfig{
		Host:     GetEnvOrDefault("REDIS_HOST", "localhost"),
		Port:     GetEnvUint16("REDIS_PORT", 6379),
		Password: GetEnv("REDIS_PASSWORD"),
		DB:       GetEnvInt("REDIS_DB", 0),
	}
}
