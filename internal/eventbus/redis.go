/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/storybeam/radio/internal/events"
)

// RedisBridge fans local events out over Redis pub/sub and injects
// remote events into the local bus. A circuit breaker stops publishing
// after repeated failures so playback never waits on a dead broker.
type RedisBridge struct {
	client *redis.Client
	bus    *events.Bus
	logger zerolog.Logger
	nodeID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	failCount int
	maxFails  int
	tripped   bool
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxFailures int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
	}
}

// NewRedisBridge connects the local bus to Redis. Connection failure is
// not fatal: the bridge starts tripped and the service stays local-only.
func NewRedisBridge(cfg RedisConfig, bus *events.Bus, nodeID string, logger zerolog.Logger) (*RedisBridge, error) {
	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	rb := &RedisBridge{
		client:   client,
		bus:      bus,
		logger:   logger.With().Str("component", "eventbus-redis").Logger(),
		nodeID:   nodeID,
		ctx:      ctx,
		cancel:   cancel,
		maxFails: cfg.MaxFailures,
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rb.logger.Warn().Err(err).Msg("Redis unavailable, event bridging disabled")
		rb.tripped = true
		return rb, nil
	}

	rb.logger.Info().Str("addr", cfg.Addr).Msg("Redis event bridge initialized")
	return rb, nil
}

// Start begins relaying in both directions for the given event types.
func (rb *RedisBridge) Start(eventTypes []events.EventType) {
	if rb.isTripped() {
		return
	}
	for _, eventType := range eventTypes {
		rb.wg.Add(2)
		go rb.relayOut(eventType)
		go rb.relayIn(eventType)
	}
}

// relayOut forwards local events of one type to Redis.
func (rb *RedisBridge) relayOut(eventType events.EventType) {
	defer rb.wg.Done()

	sub := rb.bus.Subscribe(eventType)
	defer rb.bus.Unsubscribe(eventType, sub)

	for {
		select {
		case <-rb.ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if remoteOrigin(payload) || rb.isTripped() {
				continue
			}
			data, err := marshalEnvelope(eventType, payload, rb.nodeID)
			if err != nil {
				rb.logger.Error().Err(err).Msg("failed to marshal event envelope")
				continue
			}
			pubCtx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
			err = rb.client.Publish(pubCtx, channelName(eventType), data).Err()
			cancel()
			if err != nil {
				rb.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Redis publish failed")
				rb.recordFailure()
				continue
			}
			rb.recordSuccess()
		}
	}
}

// relayIn injects remote events of one type into the local bus.
func (rb *RedisBridge) relayIn(eventType events.EventType) {
	defer rb.wg.Done()

	pubsub := rb.client.Subscribe(rb.ctx, channelName(eventType))
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				rb.logger.Warn().Str("event_type", string(eventType)).Msg("Redis channel closed")
				rb.recordFailure()
				return
			}
			env, err := unmarshalEnvelope([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Msg("bad event envelope")
				continue
			}
			if env.NodeID == rb.nodeID {
				continue
			}
			rb.bus.Publish(eventType, withOrigin(env.Payload, env.NodeID))
		}
	}
}

// Close stops all relays and the Redis connection.
func (rb *RedisBridge) Close() error {
	rb.cancel()
	rb.wg.Wait()
	return rb.client.Close()
}

func channelName(eventType events.EventType) string {
	return "storybeam:events:" + string(eventType)
}

func (rb *RedisBridge) isTripped() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.tripped
}

func (rb *RedisBridge) recordFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.failCount++
	if rb.failCount >= rb.maxFails && !rb.tripped {
		rb.tripped = true
		rb.logger.Warn().Int("failures", rb.failCount).Msg("Redis failure threshold reached, bridging disabled")
	}
}

func (rb *RedisBridge) recordSuccess() {
	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}
