/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio defines the playback output primitive the radio engine
// drives, plus a speaker-backed implementation.
package audio

import "time"

// EventKind enumerates asynchronous output notifications.
type EventKind int

const (
	// EventReady fires once media is loaded and duration is known.
	EventReady EventKind = iota
	// EventEnded fires on natural end of media.
	EventEnded
	// EventError fires when loading or playback fails.
	EventError
)

// Event is delivered on the output's event channel. The engine matches
// events against the output handle that produced them, never against
// ambient playback state.
type Event struct {
	Kind EventKind
	Err  error
}

// Output is a single playback channel. Implementations must be safe for
// concurrent use: the engine loop and the crossfade ramp both touch it.
type Output interface {
	// Load begins asynchronous loading of the given locator and later
	// emits EventReady or EventError. Load may be called once.
	Load(url string)
	// Play starts or resumes playback.
	Play()
	// Pause suspends playback, keeping position.
	Pause()
	// Position reports the current playback position.
	Position() time.Duration
	// SetPosition seeks. Values are clamped to the media duration.
	SetPosition(pos time.Duration)
	// Duration reports total media duration (zero until ready).
	Duration() time.Duration
	// SetVolume applies a linear volume level in [0, 1].
	SetVolume(level float64)
	// Events returns the notification channel. Closed by Close.
	Events() <-chan Event
	// Close stops playback and releases resources. No events are
	// emitted after Close returns.
	Close()
}

// Factory creates fresh outputs. The engine uses one per queue item plus
// a second one during crossfades.
type Factory func() Output
