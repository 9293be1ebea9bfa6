/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus relays the in-process event bus to external brokers
// so multiple instances and companion services see the same stream.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/storybeam/radio/internal/events"
)

// originKey marks payloads that arrived from a remote node so bridges
// do not echo them back out.
const originKey = "_origin_node"

// BridgedEvents is the default set of event types relayed to brokers.
func BridgedEvents() []events.EventType {
	return []events.EventType{
		events.EventNowPlaying,
		events.EventTrackEnded,
		events.EventQueueRebuilt,
		events.EventPlaybackState,
		events.EventHostBreakResolved,
		events.EventHostBreakFailed,
		events.EventCrossfadeStarted,
		events.EventCrossfadeDone,
		events.EventCrossfadeCanceled,
	}
}

// envelope is the wire format shared by the Redis and NATS bridges.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func marshalEnvelope(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
	})
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return &msg, nil
}

// remoteOrigin reports whether the payload was injected by a bridge.
func remoteOrigin(payload events.Payload) bool {
	origin, _ := payload[originKey].(string)
	return origin != ""
}

// withOrigin copies the payload and tags it with the source node.
func withOrigin(payload events.Payload, nodeID string) events.Payload {
	tagged := make(events.Payload, len(payload)+1)
	for k, v := range payload {
		tagged[k] = v
	}
	tagged[originKey] = nodeID
	return tagged
}
