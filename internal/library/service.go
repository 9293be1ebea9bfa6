/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library serves station, track and host records from the
// database with a Redis read-through cache in front.
package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/storybeam/radio/internal/cache"
	"github.com/storybeam/radio/internal/events"
	"github.com/storybeam/radio/internal/models"
	"github.com/storybeam/radio/internal/queue"
)

// ErrNoStation is returned when the database holds no station record.
var ErrNoStation = errors.New("no station configured")

// Service is the library read/write layer. It also implements the
// playback engine's Source and History interfaces.
type Service struct {
	db     *gorm.DB
	cache  *cache.Cache
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a library service. cache may be nil.
func NewService(db *gorm.DB, c *cache.Cache, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  c,
		bus:    bus,
		logger: logger.With().Str("component", "library").Logger(),
	}
}

// Station returns the station record, cache first. Single-station
// deployment: the first row wins.
func (s *Service) Station(ctx context.Context) (models.Station, error) {
	if s.cache != nil {
		if station, ok := s.cache.GetStation(ctx); ok {
			return *station, nil
		}
	}

	var station models.Station
	err := s.db.WithContext(ctx).Order("created_at ASC").First(&station).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Station{}, ErrNoStation
	}
	if err != nil {
		return models.Station{}, fmt.Errorf("load station: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetStation(ctx, &station); err != nil {
			s.logger.Debug().Err(err).Msg("station cache write failed")
		}
	}
	return station, nil
}

// Library returns the station's enabled tracks, cache first.
func (s *Service) Library(ctx context.Context) ([]models.Track, error) {
	station, err := s.Station(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if tracks, ok := s.cache.GetLibrary(ctx, station.ID); ok {
			return tracks, nil
		}
	}

	var tracks []models.Track
	err = s.db.WithContext(ctx).
		Where("station_id = ? AND enabled = ?", station.ID, true).
		Order("title ASC").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetLibrary(ctx, station.ID, tracks); err != nil {
			s.logger.Debug().Err(err).Msg("library cache write failed")
		}
	}
	return tracks, nil
}

// Hosts returns the station's active hosts, cache first.
func (s *Service) Hosts(ctx context.Context) ([]models.Host, error) {
	station, err := s.Station(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if hosts, ok := s.cache.GetHosts(ctx, station.ID); ok {
			return hosts, nil
		}
	}

	var hosts []models.Host
	err = s.db.WithContext(ctx).
		Where("station_id = ? AND active = ?", station.ID, true).
		Order("name ASC").
		Find(&hosts).Error
	if err != nil {
		return nil, fmt.Errorf("load hosts: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetHosts(ctx, station.ID, hosts); err != nil {
			s.logger.Debug().Err(err).Msg("hosts cache write failed")
		}
	}
	return hosts, nil
}

// HostsAvailable reports whether any active host exists. Errors resolve
// to false so a broken host table degrades to music-only playback.
func (s *Service) HostsAvailable(ctx context.Context) (bool, error) {
	hosts, err := s.Hosts(ctx)
	if err != nil {
		return false, err
	}
	return len(hosts) > 0, nil
}

// RecordPlay persists one started queue item to the play history.
func (s *Service) RecordPlay(ctx context.Context, item queue.Item) {
	station, err := s.Station(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("history write skipped, no station")
		return
	}

	entry := models.PlayHistory{
		ID:        uuid.NewString(),
		StationID: station.ID,
		Kind:      string(item.Kind),
		StartedAt: time.Now().UTC(),
	}
	switch item.Kind {
	case queue.KindSong:
		entry.TrackID = item.Track.ID
		entry.Title = item.Track.Title
		entry.Artist = item.Track.Artist
	case queue.KindHostBreak:
		if item.Segment != nil {
			entry.Title = "Host break"
			entry.Artist = item.Segment.HostName
		}
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Warn().Err(err).Msg("history write failed")
	}
}

// RecentPlays returns the latest history entries, newest first.
func (s *Service) RecentPlays(ctx context.Context, limit int) ([]models.PlayHistory, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.PlayHistory
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load play history: %w", err)
	}
	return entries, nil
}

// invalidate drops station caches and notifies listeners.
func (s *Service) invalidate(ctx context.Context, stationID string, event events.EventType) {
	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx, stationID); err != nil {
			s.logger.Debug().Err(err).Msg("cache invalidation failed")
		}
	}
	if s.bus != nil {
		s.bus.Publish(event, events.Payload{"station_id": stationID})
	}
}
