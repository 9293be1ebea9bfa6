/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package hostbreak calls the platform's host-break generation service to
// synthesize spoken transition segments between songs.
package hostbreak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/storybeam/radio/internal/media"
	"github.com/storybeam/radio/internal/queue"
)

// ErrNotConfigured is returned when no generation service URL is set.
var ErrNotConfigured = fmt.Errorf("host break generation service not configured")

// Client talks to the host-break generation service.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	storage        media.Storage // optional audio mirror target
	targetDuration time.Duration
	logger         zerolog.Logger
}

// NewClient creates a generation client. storage may be nil; when set,
// generated audio is mirrored into it so segments outlive short-lived
// service URLs for the duration of the queue.
func NewClient(baseURL string, timeout, targetDuration time.Duration, storage media.Storage, logger zerolog.Logger) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL != "" {
		if _, err := url.Parse(baseURL); err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if targetDuration <= 0 {
		targetDuration = 15 * time.Second
	}

	return &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: timeout},
		storage:        storage,
		targetDuration: targetDuration,
		logger:         logger.With().Str("component", "hostbreak").Logger(),
	}, nil
}

type generateRequest struct {
	NextTitle             string `json:"next_title"`
	NextArtist            string `json:"next_artist,omitempty"`
	PrevTitle             string `json:"prev_title,omitempty"`
	PrevArtist            string `json:"prev_artist,omitempty"`
	TargetDurationSeconds int    `json:"target_duration_seconds"`
}

type generateResponse struct {
	HostID          string  `json:"host_id"`
	HostName        string  `json:"host_name"`
	AvatarURL       string  `json:"avatar_url"`
	Script          string  `json:"script"`
	AudioURL        string  `json:"audio_url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Resolve synthesizes one spoken segment for a pending slot. The caller
// (the playback engine) guarantees at-most-once invocation per slot; a
// failure here is terminal for the slot.
func (c *Client) Resolve(ctx context.Context, pending queue.PendingBreak) (queue.BreakSegment, error) {
	if c.baseURL == "" {
		return queue.BreakSegment{}, ErrNotConfigured
	}

	payload := generateRequest{
		NextTitle:             pending.Next.Title,
		NextArtist:            pending.Next.Artist,
		PrevTitle:             pending.Prev.Title,
		PrevArtist:            pending.Prev.Artist,
		TargetDurationSeconds: int(c.targetDuration.Seconds()),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queue.BreakSegment{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/host-breaks", bytes.NewReader(body))
	if err != nil {
		return queue.BreakSegment{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return queue.BreakSegment{}, fmt.Errorf("call generation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return queue.BreakSegment{}, fmt.Errorf("generation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return queue.BreakSegment{}, fmt.Errorf("decode response: %w", err)
	}
	if gen.AudioURL == "" {
		return queue.BreakSegment{}, fmt.Errorf("generation service returned no audio")
	}

	segment := queue.BreakSegment{
		HostID:    gen.HostID,
		HostName:  gen.HostName,
		AvatarURL: gen.AvatarURL,
		Script:    gen.Script,
		AudioURL:  gen.AudioURL,
		Duration:  time.Duration(gen.DurationSeconds * float64(time.Second)),
	}

	if c.storage != nil {
		if mirrored, err := c.mirror(ctx, segment.AudioURL); err != nil {
			// Mirroring is best effort; the service URL still plays.
			c.logger.Warn().Err(err).Msg("host break audio mirror failed")
		} else {
			segment.AudioURL = mirrored
		}
	}

	c.logger.Debug().
		Str("host", segment.HostName).
		Str("next", pending.Next.Title).
		Msg("host break resolved")

	return segment, nil
}

// mirror copies the generated audio into media storage and returns the
// stored object's URL.
func (c *Client) mirror(ctx context.Context, audioURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("audio download returned %d", resp.StatusCode)
	}

	ext := path.Ext(audioURL)
	if ext == "" || len(ext) > 5 {
		ext = ".mp3"
	}
	key := "breaks/" + uuid.NewString() + ext

	locator, err := c.storage.Store(ctx, key, resp.Body)
	if err != nil {
		return "", fmt.Errorf("store audio: %w", err)
	}
	return c.storage.URL(locator), nil
}
