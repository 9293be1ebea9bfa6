/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/storybeam/radio/internal/cache"
	"github.com/storybeam/radio/internal/db"
	"github.com/storybeam/radio/internal/models"
	"github.com/storybeam/radio/internal/queue"
)

func testService(t *testing.T) *Service {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "library.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(gdb, nil, nil, zerolog.Nop())
}

func seedStation(t *testing.T, s *Service) models.Station {
	t.Helper()
	station := models.Station{
		ID:                 uuid.NewString(),
		Name:               "Storybeam FM",
		HostBreakFrequency: 3,
		CrossfadeEnabled:   true,
		CrossfadeDuration:  3 * time.Second,
	}
	if err := s.db.Create(&station).Error; err != nil {
		t.Fatalf("create station: %v", err)
	}
	return station
}

func TestStationWithUnreachableCache(t *testing.T) {
	// An unreachable Redis degrades the cache to a no-op; Station must
	// go through the cache read path and still serve the database row.
	c, err := cache.New(cache.Config{RedisAddr: "127.0.0.1:1", DisableOnError: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	s := testService(t)
	s.cache = c
	station := seedStation(t, s)

	got, err := s.Station(context.Background())
	if err != nil {
		t.Fatalf("station: %v", err)
	}
	if got.ID != station.ID {
		t.Fatalf("station ID = %q, want %q", got.ID, station.ID)
	}
}

func TestStationMissing(t *testing.T) {
	s := testService(t)
	if _, err := s.Station(context.Background()); err != ErrNoStation {
		t.Fatalf("expected ErrNoStation, got %v", err)
	}
}

func TestLibraryReturnsOnlyEnabledTracks(t *testing.T) {
	s := testService(t)
	station := seedStation(t, s)

	tracks := []models.Track{
		{ID: uuid.NewString(), StationID: station.ID, Title: "A", AudioURL: "a.mp3", Rotation: models.RotationHigh, Enabled: true},
		{ID: uuid.NewString(), StationID: station.ID, Title: "B", AudioURL: "b.mp3", Rotation: models.RotationLow, Enabled: false},
		{ID: uuid.NewString(), StationID: station.ID, Title: "C", AudioURL: "c.mp3", Rotation: models.RotationLow, Enabled: true},
	}
	for i := range tracks {
		if err := s.db.Create(&tracks[i]).Error; err != nil {
			t.Fatalf("create track: %v", err)
		}
	}

	got, err := s.Library(context.Background())
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 enabled tracks, got %d", len(got))
	}
	for _, track := range got {
		if !track.Enabled {
			t.Fatalf("disabled track %q returned", track.Title)
		}
	}
}

func TestHostsAvailable(t *testing.T) {
	s := testService(t)
	station := seedStation(t, s)

	ok, err := s.HostsAvailable(context.Background())
	if err != nil {
		t.Fatalf("HostsAvailable: %v", err)
	}
	if ok {
		t.Fatal("no hosts seeded but HostsAvailable returned true")
	}

	host := models.Host{ID: uuid.NewString(), StationID: station.ID, Name: "Luna", Active: true}
	if err := s.db.Create(&host).Error; err != nil {
		t.Fatalf("create host: %v", err)
	}

	ok, err = s.HostsAvailable(context.Background())
	if err != nil {
		t.Fatalf("HostsAvailable: %v", err)
	}
	if !ok {
		t.Fatal("active host present but HostsAvailable returned false")
	}
}

func TestRecordAndListPlays(t *testing.T) {
	s := testService(t)
	station := seedStation(t, s)
	_ = station

	s.RecordPlay(context.Background(), queue.Item{
		ID:   uuid.NewString(),
		Kind: queue.KindSong,
		Track: models.Track{
			ID:     uuid.NewString(),
			Title:  "The Brave Little Boat",
			Artist: "The Storytellers",
		},
	})
	s.RecordPlay(context.Background(), queue.Item{
		ID:      uuid.NewString(),
		Kind:    queue.KindHostBreak,
		Segment: &queue.BreakSegment{HostName: "Luna", AudioURL: "b.mp3"},
	})

	plays, err := s.RecentPlays(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentPlays: %v", err)
	}
	if len(plays) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(plays))
	}
}

func TestSeedImportIsIdempotent(t *testing.T) {
	s := testService(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yml")
	content := `station:
  name: Storybeam FM
  tagline: Stories and songs
  host_break_frequency: 4
  crossfade_seconds: 2.5
hosts:
  - name: Luna
    personality: cheerful
tracks:
  - title: The Brave Little Boat
    artist: The Storytellers
    audio_url: https://media.example.com/boat.mp3
    rotation: high
  - title: Counting Stars Lullaby
    artist: The Storytellers
    audio_url: https://media.example.com/stars.mp3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Import(context.Background(), seed); err != nil {
			t.Fatalf("Import #%d: %v", i+1, err)
		}
	}

	station, err := s.Station(context.Background())
	if err != nil {
		t.Fatalf("Station: %v", err)
	}
	if station.HostBreakFrequency != 4 {
		t.Fatalf("frequency = %d, want 4", station.HostBreakFrequency)
	}
	if station.CrossfadeDuration != 2500*time.Millisecond {
		t.Fatalf("crossfade = %v", station.CrossfadeDuration)
	}

	tracks, err := s.Library(context.Background())
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks after double import, got %d", len(tracks))
	}

	hosts, err := s.Hosts(context.Background())
	if err != nil {
		t.Fatalf("Hosts: %v", err)
	}
	if len(hosts) != 1 {
		t.Fatalf("expected 1 host after double import, got %d", len(hosts))
	}
	if tracks[0].Rotation.Multiplier()+tracks[1].Rotation.Multiplier() != 5 {
		t.Fatalf("rotation weights not preserved: %v, %v", tracks[0].Rotation, tracks[1].Rotation)
	}
}

func TestLoadSeedRejectsMissingName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("tracks: []\n"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := LoadSeed(path); err == nil {
		t.Fatal("expected error for seed without station name")
	}
}
