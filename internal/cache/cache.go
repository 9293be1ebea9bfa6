/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for library reads.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/storybeam/radio/internal/models"
)

// Default TTL values for the cached record types.
const (
	DefaultStationTTL = 5 * time.Minute
	DefaultLibraryTTL = 2 * time.Minute
	DefaultHostsTTL   = 5 * time.Minute
)

// Redis cache keys. The station record is a singleton, so it lives
// under a fixed key and can be read before the station ID is known.
const (
	KeyStation = "storybeam:cache:station"
	KeyLibrary = "storybeam:cache:library:" // + station_id
	KeyHosts   = "storybeam:cache:hosts:"   // + station_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StationTTL time.Duration
	LibraryTTL time.Duration
	HostsTTL   time.Duration

	// DisableOnError trips the circuit breaker on the first Redis
	// failure instead of retrying every read.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		StationTTL:     DefaultStationTTL,
		LibraryTTL:     DefaultLibraryTTL,
		HostsTTL:       DefaultHostsTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A missing
// or unreachable Redis degrades every operation to a no-op miss.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a cache instance. Connection failure is not an error; the
// cache starts disabled and the service runs straight off the database.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

func (c *Cache) delete(ctx context.Context, keys ...string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// Station caching

// GetStation retrieves the cached station record.
func (c *Cache) GetStation(ctx context.Context) (*models.Station, bool) {
	var station models.Station
	found, err := c.get(ctx, KeyStation, &station)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("station_id", station.ID).Msg("station cache hit")
	return &station, true
}

// SetStation caches the station record.
func (c *Cache) SetStation(ctx context.Context, station *models.Station) error {
	return c.set(ctx, KeyStation, station, c.config.StationTTL)
}

// Library caching

// GetLibrary retrieves the cached enabled-track list for a station.
func (c *Cache) GetLibrary(ctx context.Context, stationID string) ([]models.Track, bool) {
	var tracks []models.Track
	found, err := c.get(ctx, KeyLibrary+stationID, &tracks)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("station_id", stationID).Int("count", len(tracks)).Msg("library cache hit")
	return tracks, true
}

// SetLibrary caches the enabled-track list for a station.
func (c *Cache) SetLibrary(ctx context.Context, stationID string, tracks []models.Track) error {
	return c.set(ctx, KeyLibrary+stationID, tracks, c.config.LibraryTTL)
}

// Host caching

// GetHosts retrieves the cached active hosts for a station.
func (c *Cache) GetHosts(ctx context.Context, stationID string) ([]models.Host, bool) {
	var hosts []models.Host
	found, err := c.get(ctx, KeyHosts+stationID, &hosts)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("station_id", stationID).Int("count", len(hosts)).Msg("hosts cache hit")
	return hosts, true
}

// SetHosts caches the active hosts for a station.
func (c *Cache) SetHosts(ctx context.Context, stationID string, hosts []models.Host) error {
	return c.set(ctx, KeyHosts+stationID, hosts, c.config.HostsTTL)
}

// Invalidation

// InvalidateStation removes the cached station record.
func (c *Cache) InvalidateStation(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating station cache")
	return c.delete(ctx, KeyStation)
}

// InvalidateLibrary removes the cached track list.
func (c *Cache) InvalidateLibrary(ctx context.Context, stationID string) error {
	c.logger.Debug().Str("station_id", stationID).Msg("invalidating library cache")
	return c.delete(ctx, KeyLibrary+stationID)
}

// InvalidateHosts removes the cached host list.
func (c *Cache) InvalidateHosts(ctx context.Context, stationID string) error {
	c.logger.Debug().Str("station_id", stationID).Msg("invalidating hosts cache")
	return c.delete(ctx, KeyHosts+stationID)
}

// InvalidateAll removes every cached record for a station.
func (c *Cache) InvalidateAll(ctx context.Context, stationID string) error {
	c.logger.Debug().Str("station_id", stationID).Msg("invalidating all station caches")
	return c.delete(ctx, KeyStation, KeyLibrary+stationID, KeyHosts+stationID)
}
