/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"math"
	"testing"
	"time"

	"github.com/storybeam/radio/internal/models"
	"github.com/storybeam/radio/internal/queue"
)

func TestEaseInOutCurve(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{0.25, 0.125},
		{0.5, 0.5},
		{0.75, 0.875},
		{1, 1},
	}
	for _, tc := range cases {
		if got := easeInOut(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("easeInOut(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}

	// Monotonic and symmetric around the midpoint.
	prev := -1.0
	for p := 0.0; p <= 1.0; p += 0.05 {
		v := easeInOut(p)
		if v < prev {
			t.Fatalf("easeInOut not monotonic at %v", p)
		}
		prev = v
		if math.Abs(easeInOut(p)+easeInOut(1-p)-1) > 1e-9 {
			t.Fatalf("easeInOut not symmetric at %v", p)
		}
	}
}

func fadeConfig() models.StationConfig {
	return models.StationConfig{
		Name:               "Test FM",
		HostBreakFrequency: 3,
		CrossfadeEnabled:   true,
		CrossfadeDuration:  150 * time.Millisecond,
	}
}

func TestCrossfadeSongToSongPromotes(t *testing.T) {
	ff := &fakeFactory{dur: 10 * time.Second}
	src := &fakeSource{tracks: testTracks(6)}
	eng := startEngine(t, src, nil, ff, fadeConfig())

	eng.TogglePlayPause()
	waitFor(t, time.Second, "playback to start", func() bool {
		return eng.Snapshot().Status == StatusPlaying
	})

	// Move inside the fade window; the next poll tick should trigger.
	ff.at(0).SetPosition(10*time.Second - 100*time.Millisecond)
	waitFor(t, time.Second, "crossfade to start", func() bool {
		return eng.Snapshot().Crossfading && ff.count() == 2
	})

	incoming := ff.at(1)
	if incoming.loadedURL() != eng.Queue()[1].AudioURL() {
		t.Fatalf("incoming output loaded %q, want next item", incoming.loadedURL())
	}
	if vols := incoming.volumes(); len(vols) > 0 && vols[0] > 0.05 {
		t.Fatalf("incoming output started audible at %v", vols[0])
	}

	waitFor(t, time.Second, "promotion", func() bool {
		st := eng.Snapshot()
		return st.Index == 1 && !st.Crossfading && st.Status == StatusPlaying
	})

	if !ff.at(0).isClosed() {
		t.Fatal("outgoing output left open after promotion")
	}
	if ff.open() != 1 {
		t.Fatalf("expected one open output, got %d", ff.open())
	}

	// The outgoing side ramped down, the incoming side ramped up.
	outVols := ff.at(0).volumes()
	if len(outVols) < 3 {
		t.Fatalf("too few outgoing volume samples: %d", len(outVols))
	}
	if last := outVols[len(outVols)-1]; last > 0.05 {
		t.Fatalf("outgoing volume ended at %v, want near 0", last)
	}
	inVols := incoming.volumes()
	if last := inVols[len(inVols)-1]; last < 0.95 {
		t.Fatalf("incoming volume ended at %v, want near 1", last)
	}
}

func TestCrossfadeIntoHostBreakFadesOutOnly(t *testing.T) {
	ff := &fakeFactory{dur: 10 * time.Second}
	src := &fakeSource{tracks: testTracks(12), hosts: true}
	res := &fakeResolver{seg: queue.BreakSegment{
		HostID:   "host-1",
		HostName: "Luna",
		AudioURL: "file:///media/break-1.mp3",
		Duration: 10 * time.Second,
	}}
	eng := startEngine(t, src, res, ff, fadeConfig())

	bi := breakIndex(eng.Queue())
	if bi <= 0 {
		t.Fatal("no host break in queue")
	}

	eng.PlayAt(bi - 1)
	waitFor(t, time.Second, "song before break playing", func() bool {
		st := eng.Snapshot()
		return st.Index == bi-1 && st.Status == StatusPlaying
	})

	songOut := ff.last()
	songOut.SetPosition(10*time.Second - 100*time.Millisecond)
	waitFor(t, time.Second, "fade-out to start", func() bool {
		return eng.Snapshot().Crossfading
	})

	// No second output while fading toward a break.
	if ff.open() != 1 {
		t.Fatalf("dual outputs during break fade: %d open", ff.open())
	}

	waitFor(t, time.Second, "hard cut into the break", func() bool {
		st := eng.Snapshot()
		return st.Index == bi && st.Status == StatusPlaying
	})
	if got := ff.last().loadedURL(); got != res.seg.AudioURL {
		t.Fatalf("break slot played %q", got)
	}
	if ff.open() != 1 {
		t.Fatalf("expected one open output, got %d", ff.open())
	}
}

func TestTransportActionsCancelCrossfade(t *testing.T) {
	cases := []struct {
		name string
		act  func(e *Engine)
	}{
		{"pause", func(e *Engine) { e.TogglePlayPause() }},
		{"seek", func(e *Engine) { e.Seek(time.Second) }},
		{"skip", func(e *Engine) { e.SkipNext() }},
		{"shuffle", func(e *Engine) { e.Shuffle() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ff := &fakeFactory{dur: 10 * time.Second}
			src := &fakeSource{tracks: testTracks(6)}
			cfg := fadeConfig()
			cfg.CrossfadeDuration = time.Second // long window so we can interrupt
			eng := startEngine(t, src, nil, ff, cfg)

			eng.TogglePlayPause()
			waitFor(t, time.Second, "playback to start", func() bool {
				return eng.Snapshot().Status == StatusPlaying
			})

			ff.at(0).SetPosition(10*time.Second - 800*time.Millisecond)
			waitFor(t, time.Second, "crossfade to start", func() bool {
				return eng.Snapshot().Crossfading && ff.count() == 2
			})
			incoming := ff.at(1)

			tc.act(eng)
			waitFor(t, time.Second, "fade canceled", func() bool {
				return !eng.Snapshot().Crossfading
			})
			waitFor(t, time.Second, "single output", func() bool {
				return ff.open() == 1
			})
			if !incoming.isClosed() {
				t.Fatal("incoming fade output left open")
			}
		})
	}
}

func TestPauseDuringCrossfadeRestoresVolume(t *testing.T) {
	ff := &fakeFactory{dur: 10 * time.Second}
	src := &fakeSource{tracks: testTracks(6)}
	cfg := fadeConfig()
	cfg.CrossfadeDuration = time.Second
	eng := startEngine(t, src, nil, ff, cfg)

	eng.TogglePlayPause()
	waitFor(t, time.Second, "playback to start", func() bool {
		return eng.Snapshot().Status == StatusPlaying
	})

	ff.at(0).SetPosition(10*time.Second - 800*time.Millisecond)
	waitFor(t, time.Second, "crossfade to start", func() bool {
		return eng.Snapshot().Crossfading && ff.count() == 2
	})

	eng.TogglePlayPause()
	waitFor(t, time.Second, "fade canceled by pause", func() bool {
		st := eng.Snapshot()
		return !st.Crossfading && st.Status == StatusPaused
	})

	// Current output volume restored to the user level.
	vols := ff.at(0).volumes()
	if len(vols) == 0 || vols[len(vols)-1] != 1.0 {
		t.Fatalf("volume not restored after cancel: %v", vols)
	}
}

func TestVolumeAndMuteRideCrossfade(t *testing.T) {
	ff := &fakeFactory{dur: 10 * time.Second}
	src := &fakeSource{tracks: testTracks(6)}
	cfg := fadeConfig()
	cfg.CrossfadeDuration = time.Second
	eng := startEngine(t, src, nil, ff, cfg)

	eng.TogglePlayPause()
	waitFor(t, time.Second, "playback to start", func() bool {
		return eng.Snapshot().Status == StatusPlaying
	})

	ff.at(0).SetPosition(10*time.Second - 800*time.Millisecond)
	waitFor(t, time.Second, "crossfade to start", func() bool {
		return eng.Snapshot().Crossfading && ff.count() == 2
	})
	incoming := ff.at(1)

	eng.SetVolume(0.5)
	waitFor(t, time.Second, "volume applied", func() bool {
		return eng.Snapshot().Volume == 0.5
	})
	if !eng.Snapshot().Crossfading {
		t.Fatal("volume change tore down the crossfade")
	}
	if incoming.isClosed() || ff.count() != 2 {
		t.Fatalf("incoming fade output discarded by SetVolume; outputs created=%d", ff.count())
	}

	eng.ToggleMute()
	waitFor(t, time.Second, "mute applied", func() bool {
		return eng.Snapshot().Muted
	})
	if !eng.Snapshot().Crossfading {
		t.Fatal("mute tore down the crossfade")
	}
	if incoming.isClosed() || ff.count() != 2 {
		t.Fatalf("incoming fade output discarded by ToggleMute; outputs created=%d", ff.count())
	}
	eng.ToggleMute()

	waitFor(t, 2*time.Second, "promotion", func() bool {
		st := eng.Snapshot()
		return st.Index == 1 && !st.Crossfading
	})
	if ff.open() != 1 {
		t.Fatalf("expected one open output after promotion, got %d", ff.open())
	}
	// The promoted output carries the adjusted user level.
	vols := incoming.volumes()
	if len(vols) == 0 {
		t.Fatal("no volume applied to promoted output")
	}
	if got := vols[len(vols)-1]; got != 0.5 {
		t.Fatalf("promoted volume = %v, want 0.5", got)
	}
}

func TestNoCrossfadeOutOfHostBreak(t *testing.T) {
	ff := &fakeFactory{dur: 10 * time.Second}
	src := &fakeSource{tracks: testTracks(12), hosts: true}
	res := &fakeResolver{seg: queue.BreakSegment{
		HostID:   "host-1",
		AudioURL: "file:///media/break-1.mp3",
	}}
	eng := startEngine(t, src, res, ff, fadeConfig())

	bi := breakIndex(eng.Queue())
	if bi <= 0 {
		t.Fatal("no host break in queue")
	}

	eng.PlayAt(bi)
	waitFor(t, time.Second, "break playing", func() bool {
		st := eng.Snapshot()
		return st.Index == bi && st.Status == StatusPlaying
	})

	breakOut := ff.last()
	before := ff.count()
	breakOut.SetPosition(10*time.Second - 50*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	if eng.Snapshot().Crossfading {
		t.Fatal("crossfade started out of a host break")
	}
	if ff.count() != before {
		t.Fatal("output created for a fade out of a host break")
	}
}

func TestCrossfadeSkipsWhenNoNextItem(t *testing.T) {
	ff := &fakeFactory{dur: 10 * time.Second}
	src := &fakeSource{tracks: testTracks(2)}
	eng := startEngine(t, src, nil, ff, fadeConfig())

	last := len(eng.Queue()) - 1
	eng.PlayAt(last)
	waitFor(t, time.Second, "final item playing", func() bool {
		st := eng.Snapshot()
		return st.Index == last && st.Status == StatusPlaying
	})

	ff.last().SetPosition(10*time.Second - 50*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	if eng.Snapshot().Crossfading {
		t.Fatal("crossfade started with no next item")
	}
}
