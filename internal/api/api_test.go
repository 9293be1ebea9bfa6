/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/storybeam/radio/internal/db"
	"github.com/storybeam/radio/internal/events"
	"github.com/storybeam/radio/internal/library"
	"github.com/storybeam/radio/internal/models"
	"github.com/storybeam/radio/internal/playback"
	"github.com/storybeam/radio/internal/queue"
)

// fakeController records engine calls so handlers can be tested without
// a running loop.
type fakeController struct {
	mu    sync.Mutex
	calls []string
	state playback.State
	items []queue.Item
}

func (f *fakeController) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeController) PlayAt(index int)         { f.record("play") }
func (f *fakeController) TogglePlayPause()         { f.record("toggle") }
func (f *fakeController) SkipNext()                { f.record("next") }
func (f *fakeController) SkipPrev()                { f.record("prev") }
func (f *fakeController) Seek(pos time.Duration)   { f.record("seek") }
func (f *fakeController) SetVolume(level float64)  { f.record("volume") }
func (f *fakeController) ToggleMute()              { f.record("mute") }
func (f *fakeController) Shuffle()                 { f.record("shuffle") }
func (f *fakeController) Snapshot() playback.State { return f.state }
func (f *fakeController) Queue() []queue.Item      { return f.items }

func (f *fakeController) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

const testSecret = "test-secret"

func testAPI(t *testing.T, ctrl *fakeController) (*API, *gorm.DB, http.Handler) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	lib := library.NewService(gdb, nil, nil, zerolog.Nop())
	a := New(gdb, []byte(testSecret), ctrl, lib, events.NewBus(), zerolog.Nop())
	r := chi.NewRouter()
	a.Routes(r)
	return a, gdb, r
}

func seedUser(t *testing.T, gdb *gorm.DB, email, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := models.User{
		ID:       uuid.NewString(),
		Email:    email,
		Password: string(hash),
		Role:     models.RoleAdmin,
	}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func login(t *testing.T, h http.Handler, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(loginRequest{Email: email, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	return resp.Token
}

func doJSON(h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, _, h := testAPI(t, &fakeController{})
	rec := doJSON(h, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestStationNotFound(t *testing.T) {
	_, _, h := testAPI(t, &fakeController{})
	rec := doJSON(h, http.MethodGet, "/api/v1/station", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("station returned %d, want 404", rec.Code)
	}
}

func TestStateReportsSeconds(t *testing.T) {
	ctrl := &fakeController{state: playback.State{
		Index:    2,
		Status:   playback.StatusPlaying,
		Playing:  true,
		Position: 90 * time.Second,
		Duration: 3 * time.Minute,
		Volume:   0.8,
	}}
	_, _, h := testAPI(t, ctrl)

	rec := doJSON(h, http.MethodGet, "/api/v1/state", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("state returned %d", rec.Code)
	}
	var st stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Index != 2 || st.Position != 90 || st.Duration != 180 || st.Volume != 0.8 {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.Status != string(playback.StatusPlaying) {
		t.Fatalf("status = %q", st.Status)
	}
}

func TestQueueMasksPendingBreaks(t *testing.T) {
	ctrl := &fakeController{items: []queue.Item{
		{
			ID:   uuid.NewString(),
			Kind: queue.KindSong,
			Track: models.Track{
				Title:    "Counting Stars",
				Artist:   "Luna",
				Duration: 2 * time.Minute,
			},
		},
		{
			ID:      uuid.NewString(),
			Kind:    queue.KindHostBreak,
			Pending: &queue.PendingBreak{},
		},
	}}
	_, _, h := testAPI(t, ctrl)

	rec := doJSON(h, http.MethodGet, "/api/v1/queue", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("queue returned %d", rec.Code)
	}
	var resp struct {
		Index int          `json:"index"`
		Items []queueEntry `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("got %d items", len(resp.Items))
	}
	if resp.Items[0].Title != "Counting Stars" || resp.Items[0].Seconds != 120 {
		t.Fatalf("song entry: %+v", resp.Items[0])
	}
	br := resp.Items[1]
	if br.Title != "Host break" || br.Break != string(queue.BreakPending) {
		t.Fatalf("break entry: %+v", br)
	}
	if br.Artist != "" {
		t.Fatalf("pending break leaked host name %q", br.Artist)
	}
}

func TestPlaybackControlsRequireAuth(t *testing.T) {
	ctrl := &fakeController{}
	_, _, h := testAPI(t, ctrl)

	for _, path := range []string{"play", "pause", "next", "prev", "seek", "volume", "mute", "shuffle"} {
		rec := doJSON(h, http.MethodPost, "/api/v1/playback/"+path, "", map[string]any{})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("POST %s returned %d, want 401", path, rec.Code)
		}
	}
	if len(ctrl.called()) != 0 {
		t.Fatalf("engine driven without auth: %v", ctrl.called())
	}
}

func TestLoginAndControl(t *testing.T) {
	ctrl := &fakeController{items: make([]queue.Item, 5)}
	_, gdb, h := testAPI(t, ctrl)
	seedUser(t, gdb, "admin@storybeam.fm", "sekrit")

	token := login(t, h, "admin@storybeam.fm", "sekrit")

	rec := doJSON(h, http.MethodPost, "/api/v1/playback/play", token, playRequest{Index: 3})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("play returned %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(h, http.MethodPost, "/api/v1/playback/pause", token, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("pause returned %d", rec.Code)
	}
	rec = doJSON(h, http.MethodPost, "/api/v1/playback/seek", token, seekRequest{PositionSeconds: 42})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("seek returned %d", rec.Code)
	}

	got := ctrl.called()
	want := []string{"play", "toggle", "seek"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, gdb, h := testAPI(t, &fakeController{})
	seedUser(t, gdb, "admin@storybeam.fm", "sekrit")

	body, _ := json.Marshal(loginRequest{Email: "admin@storybeam.fm", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login returned %d, want 401", rec.Code)
	}
}

func TestPlayValidatesIndex(t *testing.T) {
	ctrl := &fakeController{items: make([]queue.Item, 2)}
	_, gdb, h := testAPI(t, ctrl)
	seedUser(t, gdb, "admin@storybeam.fm", "sekrit")
	token := login(t, h, "admin@storybeam.fm", "sekrit")

	for _, idx := range []int{-1, 2, 99} {
		rec := doJSON(h, http.MethodPost, "/api/v1/playback/play", token, playRequest{Index: idx})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("play index %d returned %d, want 400", idx, rec.Code)
		}
	}
	if len(ctrl.called()) != 0 {
		t.Fatalf("engine driven with bad index: %v", ctrl.called())
	}
}

func TestVolumeValidatesRange(t *testing.T) {
	ctrl := &fakeController{}
	_, gdb, h := testAPI(t, ctrl)
	seedUser(t, gdb, "admin@storybeam.fm", "sekrit")
	token := login(t, h, "admin@storybeam.fm", "sekrit")

	for _, level := range []float64{-0.1, 1.5} {
		rec := doJSON(h, http.MethodPost, "/api/v1/playback/volume", token, volumeRequest{Level: level})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("volume %v returned %d, want 400", level, rec.Code)
		}
	}

	rec := doJSON(h, http.MethodPost, "/api/v1/playback/volume", token, volumeRequest{Level: 0.5})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("volume 0.5 returned %d", rec.Code)
	}
}

func TestHistoryValidatesLimit(t *testing.T) {
	_, _, h := testAPI(t, &fakeController{})

	rec := doJSON(h, http.MethodGet, "/api/v1/history?limit=abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("history returned %d, want 400", rec.Code)
	}
	rec = doJSON(h, http.MethodGet, "/api/v1/history?limit=5", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history returned %d, want 200", rec.Code)
	}
}
