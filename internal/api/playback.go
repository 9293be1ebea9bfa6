/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"time"
)

type playRequest struct {
	Index int `json:"index"`
}

func (a *API) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Index < 0 || req.Index >= len(a.engine.Queue()) {
		writeError(w, http.StatusBadRequest, "index_out_of_range")
		return
	}

	a.engine.PlayAt(req.Index)
	writeJSON(w, http.StatusAccepted, toStateResponse(a.engine.Snapshot()))
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	a.engine.TogglePlayPause()
	writeJSON(w, http.StatusAccepted, toStateResponse(a.engine.Snapshot()))
}

func (a *API) handleNext(w http.ResponseWriter, r *http.Request) {
	a.engine.SkipNext()
	writeJSON(w, http.StatusAccepted, toStateResponse(a.engine.Snapshot()))
}

func (a *API) handlePrev(w http.ResponseWriter, r *http.Request) {
	a.engine.SkipPrev()
	writeJSON(w, http.StatusAccepted, toStateResponse(a.engine.Snapshot()))
}

type seekRequest struct {
	PositionSeconds float64 `json:"position_seconds"`
}

func (a *API) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.PositionSeconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid_position")
		return
	}

	a.engine.Seek(time.Duration(req.PositionSeconds * float64(time.Second)))
	writeJSON(w, http.StatusAccepted, toStateResponse(a.engine.Snapshot()))
}

type volumeRequest struct {
	Level float64 `json:"level"`
}

func (a *API) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Level < 0 || req.Level > 1 {
		writeError(w, http.StatusBadRequest, "invalid_level")
		return
	}

	a.engine.SetVolume(req.Level)
	writeJSON(w, http.StatusAccepted, toStateResponse(a.engine.Snapshot()))
}

func (a *API) handleMute(w http.ResponseWriter, r *http.Request) {
	a.engine.ToggleMute()
	writeJSON(w, http.StatusAccepted, toStateResponse(a.engine.Snapshot()))
}

func (a *API) handleShuffle(w http.ResponseWriter, r *http.Request) {
	a.engine.Shuffle()
	writeJSON(w, http.StatusAccepted, toStateResponse(a.engine.Snapshot()))
}
