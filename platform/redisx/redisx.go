// Package redisx builds go-redis clients from configuration.
// This is part of the platform layer and contains no business logic.
package redisx

import (
	"context"
	"crypto/tls"
	"fmt"

	"glasswallet_backend/platform/config"

	"github.com/redis/go-redis/v9"
)

// ParseOptions parses a redis URL, optionally relaxing TLS verification.
func ParseOptions(redisURL string, tlsInsecure bool) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if tlsInsecure {
		if opt.TLSConfig != nil {
			clone := opt.TLSConfig.Clone()
			clone.InsecureSkipVerify = true
			opt.TLSConfig = clone
		} else {
			opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}
	return opt, nil
}

// NewClient returns a connected client, or nil when REDIS_URL is unset.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}
	opt, err := ParseOptions(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
