/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"time"

	"github.com/storybeam/radio/internal/audio"
	"github.com/storybeam/radio/internal/events"
	"github.com/storybeam/radio/internal/queue"
	"github.com/storybeam/radio/internal/telemetry"
)

// fadeState tracks one in-flight crossfade. next is nil for the
// fade-out-only variant used ahead of host breaks. eased is the last
// applied ramp progress, kept so volume and mute changes can rescale
// both sides mid-fade.
type fadeState struct {
	gen     int
	next    audio.Output
	cancel  context.CancelFunc
	outOnly bool
	eased   float64
}

// maybeCrossfade checks the trigger conditions on each poll tick:
// crossfade enabled, none in flight, current item is a song, remaining
// time within the fade window, and a next item exists.
func (e *Engine) maybeCrossfade() {
	if !e.station.CrossfadeEnabled || e.fade != nil || e.current == nil {
		return
	}
	if e.st.Status != StatusPlaying || e.st.Index+1 >= len(e.items) {
		return
	}
	if e.items[e.st.Index].Kind != queue.KindSong {
		return
	}
	dur := e.st.Duration
	if dur <= 0 {
		return
	}
	remaining := dur - e.st.Position
	if remaining <= 0 || remaining > e.station.CrossfadeDuration {
		return
	}
	e.startCrossfade(remaining)
}

func (e *Engine) startCrossfade(remaining time.Duration) {
	next := &e.items[e.st.Index+1]
	dur := e.station.CrossfadeDuration
	if remaining < dur {
		dur = remaining
	}

	rctx, cancel := context.WithCancel(context.Background())
	e.fadeGen++
	f := &fadeState{gen: e.fadeGen, cancel: cancel}

	if next.Kind == queue.KindSong {
		out := e.outputs()
		f.next = out
		e.watch(out)
		out.Load(next.AudioURL())
		go e.runRamp(rctx, f.gen, dur)
	} else {
		// Breaks get a fade to silence over half the window, then a
		// hard cut into the slot.
		f.outOnly = true
		go e.runRamp(rctx, f.gen, dur/2)
	}

	e.fade = f
	e.st.Crossfading = true
	telemetry.CrossfadesStarted.Inc()
	e.bus.Publish(events.EventCrossfadeStarted, events.Payload{
		"index":    e.st.Index,
		"out_only": f.outOnly,
		"duration": dur.Seconds(),
	})
	e.logger.Debug().Dur("duration", dur).Bool("out_only", f.outOnly).Msg("crossfade started")
}

// runRamp is a pure timer goroutine: it computes the eased progress on
// each tick and hands it to the loop, which applies the volumes. The
// loop drops steps from canceled or superseded fades by generation.
func (e *Engine) runRamp(ctx context.Context, gen int, dur time.Duration) {
	if dur <= 0 {
		dur = time.Millisecond
	}
	ticker := time.NewTicker(e.fadeTick)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := float64(time.Since(start)) / float64(dur)
			if p > 1 {
				p = 1
			}
			step := fadeStep{gen: gen, eased: easeInOut(p), complete: p >= 1}
			select {
			case e.fadeSteps <- step:
			case <-e.done:
				return
			}
			if p >= 1 {
				return
			}
		}
	}
}

// easeInOut is the symmetric quadratic curve: slow at the edges, fast
// through the middle.
func easeInOut(p float64) float64 {
	if p < 0.5 {
		return 2 * p * p
	}
	return 1 - 2*(1-p)*(1-p)
}

// handleFadeNextEvent routes events from the incoming fade output.
func (e *Engine) handleFadeNextEvent(oe outputEvent) {
	switch oe.ev.Kind {
	case audio.EventReady:
		oe.out.SetVolume(0)
		oe.out.Play()
	case audio.EventError:
		// The incoming side failed; degrade to a hard cut.
		e.logger.Warn().Err(oe.ev.Err).Msg("crossfade target failed, hard cutting")
		target := e.st.Index + 1
		e.cancelFade()
		e.playAt(target)
	}
}

func (e *Engine) handleFadeStep(fs fadeStep) {
	f := e.fade
	if f == nil || fs.gen != f.gen {
		return
	}
	f.eased = fs.eased

	level := e.level()
	if e.current != nil {
		e.current.SetVolume(level * (1 - fs.eased))
	}
	if f.next != nil {
		f.next.SetVolume(level * fs.eased)
	}
	if !fs.complete {
		return
	}

	if f.outOnly {
		f.cancel()
		e.fade = nil
		e.st.Crossfading = false
		telemetry.CrossfadesCompleted.Inc()
		e.bus.Publish(events.EventCrossfadeDone, events.Payload{"index": e.st.Index})
		e.playAt(e.st.Index + 1)
		return
	}
	e.promoteFade()
}

// promoteFade atomically makes the incoming output current. Also used
// when the outgoing side ends before the ramp finishes.
func (e *Engine) promoteFade() {
	f := e.fade
	f.cancel()
	old := e.current
	e.current = f.next
	e.fade = nil
	e.st.Crossfading = false
	if old != nil {
		old.Close()
	}

	e.st.Index++
	e.st.Position = e.current.Position()
	e.st.Duration = e.current.Duration()
	e.st.Status = StatusPlaying
	e.current.SetVolume(e.level())
	e.current.Play()

	telemetry.CrossfadesCompleted.Inc()
	e.bus.Publish(events.EventCrossfadeDone, events.Payload{"index": e.st.Index})
	e.announce()
	e.publishState()
}

// cancelFade tears down any in-flight fade and restores the current
// output's volume. Safe to call when no fade is active.
func (e *Engine) cancelFade() {
	f := e.fade
	if f == nil {
		return
	}
	f.cancel()
	if f.next != nil {
		f.next.Close()
	}
	e.fade = nil
	e.st.Crossfading = false
	if e.current != nil {
		e.current.SetVolume(e.level())
	}
	telemetry.CrossfadesCanceled.Inc()
	e.bus.Publish(events.EventCrossfadeCanceled, events.Payload{"index": e.st.Index})
}
