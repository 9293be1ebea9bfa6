/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/storybeam/radio/internal/models"
)

// Queue capacity depends on whether host breaks will be interleaved: the
// song count is trimmed so the final sequence stays in the 15-20 range.
const (
	capacityPlain      = 20
	capacityWithBreaks = 15
)

// Build constructs a fresh play order from the library.
//
// Tracks are expanded into a rotation-weighted pool, shuffled with an
// unbiased Fisher-Yates permutation, collapsed so no two adjacent songs
// share a track identity, truncated to capacity, and finally interleaved
// with pending host-break slots before every Nth song (never the first).
//
// An empty library yields an empty queue; the engine treats that as idle,
// not an error. Build has no side effects; the caller resets playback
// position after swapping in the result.
func Build(tracks []models.Track, hostsAvailable bool, cfg models.StationConfig, rng *rand.Rand) []Item {
	if len(tracks) == 0 {
		return nil
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	breaks := hostsAvailable && cfg.HostBreakFrequency > 0

	pool := weightedPool(tracks)
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	songs := collapseAdjacent(pool)

	capacity := capacityPlain
	if breaks {
		capacity = capacityWithBreaks
	}
	if len(songs) > capacity {
		songs = songs[:capacity]
	}

	items := make([]Item, 0, len(songs)+len(songs)/models.DefaultHostBreakFrequency+1)
	for i, track := range songs {
		if breaks && i > 0 && i%cfg.HostBreakFrequency == 0 {
			items = append(items, Item{
				ID:   uuid.NewString(),
				Kind: KindHostBreak,
				Pending: &PendingBreak{
					Next: Ref(track),
					Prev: Ref(songs[i-1]),
				},
			})
		}
		items = append(items, Item{
			ID:    uuid.NewString(),
			Kind:  KindSong,
			Track: track,
		})
	}

	return items
}

// weightedPool expands tracks into a multiset where each track appears
// once per rotation multiplier (high=3, medium=2, low=1).
func weightedPool(tracks []models.Track) []models.Track {
	pool := make([]models.Track, 0, len(tracks)*2)
	for _, track := range tracks {
		for i := 0; i < track.Rotation.Multiplier(); i++ {
			pool = append(pool, track)
		}
	}
	return pool
}

// collapseAdjacent drops consecutive repeats of the same track identity,
// keeping the first occurrence of each run. This bounds repetition but
// does not guarantee a global no-repeat window.
func collapseAdjacent(tracks []models.Track) []models.Track {
	out := tracks[:0:0]
	for _, track := range tracks {
		if len(out) > 0 && out[len(out)-1].ID == track.ID {
			continue
		}
		out = append(out, track)
	}
	return out
}
