/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"

	"github.com/storybeam/radio/internal/events"
)

func TestOriginTaggingPreventsEcho(t *testing.T) {
	payload := events.Payload{"title": "The Brave Little Boat"}
	if remoteOrigin(payload) {
		t.Fatal("untagged payload reported as remote")
	}

	tagged := withOrigin(payload, "node-a")
	if !remoteOrigin(tagged) {
		t.Fatal("tagged payload not reported as remote")
	}
	if _, ok := payload[originKey]; ok {
		t.Fatal("withOrigin mutated the source payload")
	}
	if tagged["title"] != "The Brave Little Boat" {
		t.Fatal("payload fields lost during tagging")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := marshalEnvelope(events.EventNowPlaying, events.Payload{"index": 3.0}, "node-a")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	env, err := unmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.EventType != events.EventNowPlaying || env.NodeID != "node-a" {
		t.Fatalf("envelope fields lost: %+v", env)
	}
	if env.Payload["index"] != 3.0 {
		t.Fatalf("payload lost: %+v", env.Payload)
	}
}
