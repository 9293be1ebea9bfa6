/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"
)

// RoleName enumerates the RBAC roles.
type RoleName string

const (
	RoleAdmin  RoleName = "admin"
	RoleEditor RoleName = "editor"
)

// User represents an authenticated account.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Password  string
	Role      RoleName `gorm:"type:varchar(16)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RotationWeight is a track's priority class controlling how often it is
// selected relative to others.
type RotationWeight string

const (
	RotationLow    RotationWeight = "low"
	RotationMedium RotationWeight = "medium"
	RotationHigh   RotationWeight = "high"
)

// Multiplier returns how many times a track with this weight appears in the
// weighted selection pool. Unknown values fall back to low rotation.
func (w RotationWeight) Multiplier() int {
	switch RotationWeight(strings.ToLower(string(w))) {
	case RotationHigh:
		return 3
	case RotationMedium:
		return 2
	default:
		return 1
	}
}

// Station holds the radio station record and its playback configuration.
type Station struct {
	ID                 string `gorm:"type:uuid;primaryKey"`
	Name               string `gorm:"uniqueIndex"`
	Tagline            string `gorm:"type:text"`
	HostBreakFrequency int    `gorm:"default:3"`
	CrossfadeEnabled   bool   `gorm:"default:true"`
	CrossfadeDuration  time.Duration
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Config converts the station record into the read-only value object the
// playback engine consumes.
func (s Station) Config() StationConfig {
	cfg := StationConfig{
		Name:               s.Name,
		Tagline:            s.Tagline,
		HostBreakFrequency: s.HostBreakFrequency,
		CrossfadeEnabled:   s.CrossfadeEnabled,
		CrossfadeDuration:  s.CrossfadeDuration,
	}
	if cfg.HostBreakFrequency <= 0 {
		cfg.HostBreakFrequency = DefaultHostBreakFrequency
	}
	if cfg.CrossfadeDuration <= 0 {
		cfg.CrossfadeDuration = DefaultCrossfadeDuration
	}
	return cfg
}

// Station configuration defaults.
const (
	DefaultHostBreakFrequency = 3
	DefaultCrossfadeDuration  = 3 * time.Second
)

// StationConfig is the immutable configuration snapshot consumed by the
// queue builder and playback engine.
type StationConfig struct {
	Name               string        `json:"name"`
	Tagline            string        `json:"tagline"`
	HostBreakFrequency int           `json:"host_break_frequency"`
	CrossfadeEnabled   bool          `json:"crossfade_enabled"`
	CrossfadeDuration  time.Duration `json:"crossfade_duration"`
}

// Track is a playable library entry. Immutable once fetched.
type Track struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	StationID string `gorm:"type:uuid;index"`
	Title     string `gorm:"index"`
	Artist    string
	AudioURL  string
	CoverURL  string
	Duration  time.Duration
	Category  string         `gorm:"type:varchar(32)"`
	Rotation  RotationWeight `gorm:"type:varchar(16);default:medium"`
	Enabled   bool           `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Host is a radio personality available for generated host breaks.
type Host struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	StationID   string `gorm:"type:uuid;index"`
	Name        string
	AvatarURL   string
	Personality string `gorm:"type:varchar(32)"`
	Active      bool   `gorm:"default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PlayHistory records items the engine actually started, for analytics.
type PlayHistory struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	StationID string `gorm:"type:uuid;index"`
	TrackID   string `gorm:"type:uuid;index"`
	Kind      string `gorm:"type:varchar(16)"` // song or host_break
	Title     string
	Artist    string
	StartedAt time.Time `gorm:"index"`
}
