/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/storybeam/radio/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBridge mirrors local events onto NATS subjects and injects
// remote events into the local bus.
type NATSBridge struct {
	conn   *nats.Conn
	bus    *events.Bus
	logger zerolog.Logger
	nodeID string

	mu      sync.Mutex
	subs    []*nats.Subscription
	stops   []chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewNATSBridge connects the local bus to NATS.
func NewNATSBridge(cfg NATSConfig, bus *events.Bus, nodeID string, logger zerolog.Logger) (*NATSBridge, error) {
	opts := []nats.Option{
		nats.Name("storybeam-radio-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	logger = logger.With().Str("component", "eventbus-nats").Logger()
	logger.Info().Str("url", cfg.URL).Msg("NATS event bridge initialized")

	return &NATSBridge{
		conn:   conn,
		bus:    bus,
		logger: logger,
		nodeID: nodeID,
	}, nil
}

// Start begins relaying in both directions for the given event types.
func (nb *NATSBridge) Start(eventTypes []events.EventType) error {
	for _, eventType := range eventTypes {
		if err := nb.relayIn(eventType); err != nil {
			return err
		}
		nb.relayOut(eventType)
	}
	return nil
}

func (nb *NATSBridge) relayIn(eventType events.EventType) error {
	sub, err := nb.conn.Subscribe(subjectName(eventType), func(msg *nats.Msg) {
		env, err := unmarshalEnvelope(msg.Data)
		if err != nil {
			nb.logger.Error().Err(err).Msg("bad event envelope")
			return
		}
		if env.NodeID == nb.nodeID {
			return
		}
		nb.bus.Publish(eventType, withOrigin(env.Payload, env.NodeID))
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subjectName(eventType), err)
	}

	nb.mu.Lock()
	nb.subs = append(nb.subs, sub)
	nb.mu.Unlock()
	return nil
}

func (nb *NATSBridge) relayOut(eventType events.EventType) {
	stop := make(chan struct{})
	nb.mu.Lock()
	nb.stops = append(nb.stops, stop)
	nb.mu.Unlock()

	sub := nb.bus.Subscribe(eventType)
	nb.wg.Add(1)
	go func() {
		defer nb.wg.Done()
		defer nb.bus.Unsubscribe(eventType, sub)
		for {
			select {
			case <-stop:
				return
			case payload, ok := <-sub:
				if !ok {
					return
				}
				if remoteOrigin(payload) {
					continue
				}
				data, err := marshalEnvelope(eventType, payload, nb.nodeID)
				if err != nil {
					nb.logger.Error().Err(err).Msg("failed to marshal event envelope")
					continue
				}
				if err := nb.conn.Publish(subjectName(eventType), data); err != nil {
					nb.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("NATS publish failed")
				}
			}
		}
	}()
}

// Close drains the connection and stops all relays.
func (nb *NATSBridge) Close() error {
	nb.mu.Lock()
	if nb.stopped {
		nb.mu.Unlock()
		return nil
	}
	nb.stopped = true
	for _, stop := range nb.stops {
		close(stop)
	}
	subs := nb.subs
	nb.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			nb.logger.Debug().Err(err).Msg("NATS unsubscribe failed")
		}
	}
	nb.wg.Wait()

	if err := nb.conn.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

func subjectName(eventType events.EventType) string {
	return "storybeam.events." + string(eventType)
}
