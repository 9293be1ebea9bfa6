/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface: public read endpoints for the
// station, library and playback state, token-guarded playback controls,
// and a websocket event stream.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/storybeam/radio/internal/auth"
	"github.com/storybeam/radio/internal/events"
	"github.com/storybeam/radio/internal/library"
	"github.com/storybeam/radio/internal/playback"
	"github.com/storybeam/radio/internal/queue"
)

const tokenTTL = 24 * time.Hour

// Controller is the slice of the playback engine the handlers drive.
type Controller interface {
	PlayAt(index int)
	TogglePlayPause()
	SkipNext()
	SkipPrev()
	Seek(pos time.Duration)
	SetVolume(level float64)
	ToggleMute()
	Shuffle()
	Snapshot() playback.State
	Queue() []queue.Item
}

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	engine    Controller
	library   *library.Service
	bus       *events.Bus
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, engine Controller, lib *library.Service, bus *events.Bus, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		engine:    engine,
		library:   lib,
		bus:       bus,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all endpoints on the given router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Post("/auth/login", a.handleLogin)

		// Public read surface.
		r.Get("/station", a.handleStation)
		r.Get("/library", a.handleLibrary)
		r.Get("/hosts", a.handleHosts)
		r.Get("/queue", a.handleQueue)
		r.Get("/state", a.handleState)
		r.Get("/history", a.handleHistory)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/playback", func(r chi.Router) {
				r.Post("/play", a.handlePlay)
				r.Post("/pause", a.handlePause)
				r.Post("/next", a.handleNext)
				r.Post("/prev", a.handlePrev)
				r.Post("/seek", a.handleSeek)
				r.Post("/volume", a.handleVolume)
				r.Post("/mute", a.handleMute)
				r.Post("/shuffle", a.handleShuffle)
			})

			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	user, err := auth.Authenticate(a.db, req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("login lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	token, err := auth.Issue(a.jwtSecret, auth.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, tokenTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("token issue failed")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, Email: user.Email, Role: string(user.Role)})
}

func (a *API) handleStation(w http.ResponseWriter, r *http.Request) {
	station, err := a.library.Station(r.Context())
	if errors.Is(err, library.ErrNoStation) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, station)
}

func (a *API) handleLibrary(w http.ResponseWriter, r *http.Request) {
	tracks, err := a.library.Library(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (a *API) handleHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := a.library.Hosts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

// queueEntry is the wire form of one queue slot.
type queueEntry struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	CoverURL string  `json:"cover_url,omitempty"`
	Seconds  float64 `json:"seconds"`
	Break    string  `json:"break_status,omitempty"`
}

func (a *API) handleQueue(w http.ResponseWriter, r *http.Request) {
	items := a.engine.Queue()
	entries := make([]queueEntry, 0, len(items))
	for i := range items {
		entries = append(entries, toQueueEntry(&items[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"index": a.engine.Snapshot().Index,
		"items": entries,
	})
}

func toQueueEntry(it *queue.Item) queueEntry {
	e := queueEntry{ID: it.ID, Kind: string(it.Kind)}
	switch it.Kind {
	case queue.KindSong:
		e.Title = it.Track.Title
		e.Artist = it.Track.Artist
		e.CoverURL = it.Track.CoverURL
		e.Seconds = it.Track.Duration.Seconds()
	case queue.KindHostBreak:
		e.Title = "Host break"
		e.Break = string(it.BreakStatus())
		if it.Segment != nil {
			e.Artist = it.Segment.HostName
			e.CoverURL = it.Segment.AvatarURL
			e.Seconds = it.Segment.Duration.Seconds()
		}
	}
	return e
}

// stateResponse reports durations in seconds so clients never have to
// know about nanoseconds.
type stateResponse struct {
	Index       int     `json:"index"`
	Status      string  `json:"status"`
	Playing     bool    `json:"playing"`
	Position    float64 `json:"position_seconds"`
	Duration    float64 `json:"duration_seconds"`
	Volume      float64 `json:"volume"`
	Muted       bool    `json:"muted"`
	Crossfading bool    `json:"crossfading"`
}

func toStateResponse(st playback.State) stateResponse {
	return stateResponse{
		Index:       st.Index,
		Status:      string(st.Status),
		Playing:     st.Playing,
		Position:    st.Position.Seconds(),
		Duration:    st.Duration.Seconds(),
		Volume:      st.Volume,
		Muted:       st.Muted,
		Crossfading: st.Crossfading,
	}
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateResponse(a.engine.Snapshot()))
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := parsePositiveInt(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}

	plays, err := a.library.RecentPlays(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, plays)
}

func parsePositiveInt(raw string) (int, error) {
	n := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, errors.New("not a number")
		}
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			return 0, errors.New("too large")
		}
	}
	return n, nil
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
