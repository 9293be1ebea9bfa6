/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/storybeam/radio/internal/events"
	"github.com/storybeam/radio/internal/models"
)

// SeedFile is the YAML import format for station, hosts and tracks.
type SeedFile struct {
	Station SeedStation `yaml:"station"`
	Hosts   []SeedHost  `yaml:"hosts"`
	Tracks  []SeedTrack `yaml:"tracks"`
}

type SeedStation struct {
	Name               string  `yaml:"name"`
	Tagline            string  `yaml:"tagline"`
	HostBreakFrequency int     `yaml:"host_break_frequency"`
	CrossfadeEnabled   *bool   `yaml:"crossfade_enabled"`
	CrossfadeSeconds   float64 `yaml:"crossfade_seconds"`
}

type SeedHost struct {
	Name        string `yaml:"name"`
	AvatarURL   string `yaml:"avatar_url"`
	Personality string `yaml:"personality"`
}

type SeedTrack struct {
	Title    string  `yaml:"title"`
	Artist   string  `yaml:"artist"`
	AudioURL string  `yaml:"audio_url"`
	CoverURL string  `yaml:"cover_url"`
	Seconds  float64 `yaml:"duration_seconds"`
	Category string  `yaml:"category"`
	Rotation string  `yaml:"rotation"`
}

// LoadSeed reads and parses a seed file.
func LoadSeed(path string) (SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return SeedFile{}, fmt.Errorf("parse seed file: %w", err)
	}
	if seed.Station.Name == "" {
		return SeedFile{}, errors.New("seed file missing station.name")
	}
	return seed, nil
}

// Import applies a seed file: the station is upserted by name, hosts
// and tracks are inserted when no record with the same name or
// title/artist pair exists yet. Re-running an import is safe.
func (s *Service) Import(ctx context.Context, seed SeedFile) error {
	station, err := s.upsertStation(ctx, seed.Station)
	if err != nil {
		return err
	}

	var addedHosts, addedTracks int
	for _, h := range seed.Hosts {
		created, err := s.importHost(ctx, station.ID, h)
		if err != nil {
			return err
		}
		if created {
			addedHosts++
		}
	}
	for _, t := range seed.Tracks {
		created, err := s.importTrack(ctx, station.ID, t)
		if err != nil {
			return err
		}
		if created {
			addedTracks++
		}
	}

	s.invalidate(ctx, station.ID, events.EventLibraryUpdated)
	s.logger.Info().
		Str("station", station.Name).
		Int("hosts_added", addedHosts).
		Int("tracks_added", addedTracks).
		Msg("seed import complete")
	return nil
}

func (s *Service) upsertStation(ctx context.Context, seed SeedStation) (models.Station, error) {
	var station models.Station
	err := s.db.WithContext(ctx).Where("name = ?", seed.Name).First(&station).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		station = models.Station{
			ID:                 uuid.NewString(),
			Name:               seed.Name,
			CrossfadeEnabled:   true,
			HostBreakFrequency: models.DefaultHostBreakFrequency,
			CrossfadeDuration:  models.DefaultCrossfadeDuration,
		}
	case err != nil:
		return models.Station{}, fmt.Errorf("lookup station: %w", err)
	}

	if seed.Tagline != "" {
		station.Tagline = seed.Tagline
	}
	if seed.HostBreakFrequency > 0 {
		station.HostBreakFrequency = seed.HostBreakFrequency
	}
	if seed.CrossfadeEnabled != nil {
		station.CrossfadeEnabled = *seed.CrossfadeEnabled
	}
	if seed.CrossfadeSeconds > 0 {
		station.CrossfadeDuration = time.Duration(seed.CrossfadeSeconds * float64(time.Second))
	}

	if err := s.db.WithContext(ctx).Save(&station).Error; err != nil {
		return models.Station{}, fmt.Errorf("save station: %w", err)
	}
	return station, nil
}

func (s *Service) importHost(ctx context.Context, stationID string, seed SeedHost) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Host{}).
		Where("station_id = ? AND name = ?", stationID, seed.Name).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup host: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	host := models.Host{
		ID:          uuid.NewString(),
		StationID:   stationID,
		Name:        seed.Name,
		AvatarURL:   seed.AvatarURL,
		Personality: seed.Personality,
		Active:      true,
	}
	if err := s.db.WithContext(ctx).Create(&host).Error; err != nil {
		return false, fmt.Errorf("create host %q: %w", seed.Name, err)
	}
	return true, nil
}

func (s *Service) importTrack(ctx context.Context, stationID string, seed SeedTrack) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Track{}).
		Where("station_id = ? AND title = ? AND artist = ?", stationID, seed.Title, seed.Artist).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup track: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	rotation := models.RotationWeight(seed.Rotation)
	if rotation == "" {
		rotation = models.RotationMedium
	}
	track := models.Track{
		ID:        uuid.NewString(),
		StationID: stationID,
		Title:     seed.Title,
		Artist:    seed.Artist,
		AudioURL:  seed.AudioURL,
		CoverURL:  seed.CoverURL,
		Duration:  time.Duration(seed.Seconds * float64(time.Second)),
		Category:  seed.Category,
		Rotation:  rotation,
		Enabled:   true,
	}
	if err := s.db.WithContext(ctx).Create(&track).Error; err != nil {
		return false, fmt.Errorf("create track %q: %w", seed.Title, err)
	}
	return true, nil
}
