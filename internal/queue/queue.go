/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue builds and holds the station play order: a shuffled,
// rotation-weighted sequence of songs with generated host-break slots
// interleaved at a configurable cadence.
package queue

import (
	"time"

	"github.com/storybeam/radio/internal/models"
)

// Kind discriminates queue slot variants.
type Kind string

const (
	KindSong      Kind = "song"
	KindHostBreak Kind = "host_break"
)

// BreakState tracks the lifecycle of a host-break slot.
type BreakState string

const (
	BreakPending  BreakState = "pending"
	BreakResolved BreakState = "resolved"
	BreakFailed   BreakState = "failed"
)

// TrackRef is a value copy of the display fields a host break needs for
// script context. Slots never hold live track pointers, so queue lifetime
// stays decoupled from library lifetime.
type TrackRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Ref copies the minimal display fields out of a track.
func Ref(t models.Track) TrackRef {
	return TrackRef{ID: t.ID, Title: t.Title, Artist: t.Artist}
}

// PendingBreak carries the adjacent-song context a generator needs.
type PendingBreak struct {
	Next TrackRef `json:"next"`
	Prev TrackRef `json:"prev"`
}

// BreakSegment is a generated spoken transition, cached into its slot for
// the remainder of the queue's lifetime.
type BreakSegment struct {
	HostID    string        `json:"host_id"`
	HostName  string        `json:"host_name"`
	AvatarURL string        `json:"avatar_url,omitempty"`
	Script    string        `json:"script"`
	AudioURL  string        `json:"audio_url"`
	Duration  time.Duration `json:"duration"`
}

// Item is one slot in the play order: either a song or a host break.
type Item struct {
	ID      string        `json:"id"`
	Kind    Kind          `json:"kind"`
	Track   models.Track  `json:"track,omitempty"`
	Pending *PendingBreak `json:"pending,omitempty"`
	Segment *BreakSegment `json:"segment,omitempty"`
	failed  bool
}

// BreakStatus reports the slot lifecycle state. Songs report resolved.
func (it *Item) BreakStatus() BreakState {
	switch {
	case it.Kind != KindHostBreak:
		return BreakResolved
	case it.failed:
		return BreakFailed
	case it.Segment != nil:
		return BreakResolved
	default:
		return BreakPending
	}
}

// ResolveBreak caches a generated segment into the slot. A slot resolves at
// most once and never reverts; late or duplicate resolutions are rejected.
func (it *Item) ResolveBreak(seg BreakSegment) bool {
	if it.Kind != KindHostBreak || it.failed || it.Segment != nil {
		return false
	}
	copied := seg
	it.Segment = &copied
	return true
}

// MarkBreakFailed flags the slot so playback skips it without retrying.
func (it *Item) MarkBreakFailed() bool {
	if it.Kind != KindHostBreak || it.failed || it.Segment != nil {
		return false
	}
	it.failed = true
	return true
}

// AudioURL returns the playable locator for the slot, or "" when none
// exists (unresolved or failed break).
func (it *Item) AudioURL() string {
	switch it.Kind {
	case KindSong:
		return it.Track.AudioURL
	case KindHostBreak:
		if it.Segment != nil {
			return it.Segment.AudioURL
		}
	}
	return ""
}
