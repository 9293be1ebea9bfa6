/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback runs the station's play order: one engine goroutine
// owns every state transition, consumes audio output events, resolves
// host breaks lazily, and schedules crossfades between songs.
package playback

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/storybeam/radio/internal/audio"
	"github.com/storybeam/radio/internal/events"
	"github.com/storybeam/radio/internal/models"
	"github.com/storybeam/radio/internal/queue"
	"github.com/storybeam/radio/internal/telemetry"
)

// Status is the engine's lifecycle phase for the current queue item.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusResolving Status = "resolving"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
)

// State is the full playback snapshot. Only the engine loop mutates it;
// everyone else reads copies via Snapshot.
type State struct {
	Index       int           `json:"index"`
	Status      Status        `json:"status"`
	Playing     bool          `json:"playing"`
	Position    time.Duration `json:"position"`
	Duration    time.Duration `json:"duration"`
	Volume      float64       `json:"volume"`
	Muted       bool          `json:"muted"`
	Crossfading bool          `json:"crossfading"`
}

// Source supplies library contents for queue builds.
type Source interface {
	Library(ctx context.Context) ([]models.Track, error)
	HostsAvailable(ctx context.Context) (bool, error)
}

// Resolver generates host-break segments on demand.
type Resolver interface {
	Resolve(ctx context.Context, pending queue.PendingBreak) (queue.BreakSegment, error)
}

// History records items the engine started. Optional.
type History interface {
	RecordPlay(ctx context.Context, item queue.Item)
}

// Options configures a new engine.
type Options struct {
	Station  models.StationConfig
	Source   Source
	Resolver Resolver
	History  History
	Outputs  audio.Factory
	Bus      *events.Bus
	Logger   zerolog.Logger
	Rand     *rand.Rand

	// Tuned down by tests; zero values take the production defaults.
	PollInterval   time.Duration
	FadeTick       time.Duration
	ResumeDeferral time.Duration
}

const (
	defaultPollInterval   = 100 * time.Millisecond
	defaultFadeTick       = 25 * time.Millisecond
	defaultResumeDeferral = 250 * time.Millisecond
)

type cmdKind int

const (
	cmdPlayAt cmdKind = iota
	cmdToggle
	cmdNext
	cmdPrev
	cmdSeek
	cmdVolume
	cmdMute
	cmdShuffle
	cmdResume
)

type command struct {
	kind  cmdKind
	index int
	pos   time.Duration
	level float64
	gen   int
}

type outputEvent struct {
	out audio.Output
	ev  audio.Event
}

type breakResult struct {
	gen   int
	index int
	seg   queue.BreakSegment
	err   error
}

// fadeStep is one ramp tick, applied by the loop so volume writes stay
// serialized with user commands.
type fadeStep struct {
	gen      int
	eased    float64
	complete bool
}

// Engine drives playback. All mutable fields below the mutex comment
// are owned by the Run goroutine exclusively.
type Engine struct {
	station  models.StationConfig
	source   Source
	resolver Resolver
	history  History
	outputs  audio.Factory
	bus      *events.Bus
	logger   zerolog.Logger
	rng      *rand.Rand

	poll           time.Duration
	fadeTick       time.Duration
	resumeDeferral time.Duration

	cmds      chan command
	outEvents chan outputEvent
	resolved  chan breakResult
	fadeSteps chan fadeStep
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	snapshot  State
	itemsCopy []queue.Item

	// Run-goroutine state.
	runCtx       context.Context
	items        []queue.Item
	gen          int
	st           State
	current      audio.Output
	fade         *fadeState
	fadeGen      int
	cachedTracks []models.Track
	announcedID  string
}

// New creates a playback engine. Run must be called for commands to
// take effect.
func New(opts Options) *Engine {
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.FadeTick <= 0 {
		opts.FadeTick = defaultFadeTick
	}
	if opts.ResumeDeferral <= 0 {
		opts.ResumeDeferral = defaultResumeDeferral
	}

	return &Engine{
		station:        opts.Station,
		source:         opts.Source,
		resolver:       opts.Resolver,
		history:        opts.History,
		outputs:        opts.Outputs,
		bus:            opts.Bus,
		logger:         opts.Logger.With().Str("component", "playback").Logger(),
		rng:            opts.Rand,
		poll:           opts.PollInterval,
		fadeTick:       opts.FadeTick,
		resumeDeferral: opts.ResumeDeferral,
		cmds:           make(chan command, 32),
		outEvents:      make(chan outputEvent, 16),
		resolved:       make(chan breakResult, 4),
		fadeSteps:      make(chan fadeStep, 4),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		st:             State{Status: StatusIdle, Volume: 1.0},
	}
}

// Run executes the engine loop until context cancellation or Close.
// The initial library fetch failure is the one error surfaced to the
// caller; everything after that is recovered by advancing.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	if err := e.rebuild(ctx); err != nil {
		close(e.done)
		return fmt.Errorf("initial queue build: %w", err)
	}
	e.sync()
	e.logger.Info().Int("items", len(e.items)).Msg("playback engine started")

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return ctx.Err()
		case <-e.quit:
			e.teardown()
			return nil
		case cmd := <-e.cmds:
			e.apply(cmd)
		case oe := <-e.outEvents:
			e.handleOutputEvent(oe)
		case res := <-e.resolved:
			e.handleBreakResult(res)
		case fs := <-e.fadeSteps:
			e.handleFadeStep(fs)
		case <-ticker.C:
			e.tick()
		}
		e.sync()
	}
}

// Close stops the engine loop and releases outputs.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.quit) })
	<-e.done
}

// PlayAt jumps to the queue item at index and starts playing it.
func (e *Engine) PlayAt(index int) { e.send(command{kind: cmdPlayAt, index: index}) }

// TogglePlayPause flips between playing and paused. From idle it starts
// the current item.
func (e *Engine) TogglePlayPause() { e.send(command{kind: cmdToggle}) }

// SkipNext advances to the next item. At the final index it is a no-op;
// only natural completion rebuilds the queue.
func (e *Engine) SkipNext() { e.send(command{kind: cmdNext}) }

// SkipPrev goes back one item, or restarts the current item at index 0.
func (e *Engine) SkipPrev() { e.send(command{kind: cmdPrev}) }

// Seek moves within the current item, clamped to its duration.
func (e *Engine) Seek(pos time.Duration) { e.send(command{kind: cmdSeek, pos: pos}) }

// SetVolume sets the linear volume level in [0, 1].
func (e *Engine) SetVolume(level float64) { e.send(command{kind: cmdVolume, level: level}) }

// ToggleMute flips mute without losing the stored volume level.
func (e *Engine) ToggleMute() { e.send(command{kind: cmdMute}) }

// Shuffle rebuilds the queue with a fresh shuffle and restarts from the
// top if playback was active.
func (e *Engine) Shuffle() { e.send(command{kind: cmdShuffle}) }

// Snapshot returns a copy of the playback state.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Queue returns a copy of the current play order.
func (e *Engine) Queue() []queue.Item {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]queue.Item(nil), e.itemsCopy...)
}

func (e *Engine) send(c command) {
	select {
	case e.cmds <- c:
	case <-e.done:
	}
}

func (e *Engine) sync() {
	e.mu.Lock()
	e.snapshot = e.st
	e.itemsCopy = append(e.itemsCopy[:0], e.items...)
	e.mu.Unlock()
}

// apply dispatches one user command. Transport actions (play, pause,
// skip, seek, shuffle) cancel an in-flight crossfade before taking
// effect so exactly one output remains authoritative; volume and mute
// ride the fade, rescaling both sides.
func (e *Engine) apply(cmd command) {
	switch cmd.kind {
	case cmdPlayAt:
		e.cancelFade()
		e.playAt(cmd.index)
	case cmdToggle:
		e.cancelFade()
		e.togglePlayPause()
	case cmdNext:
		e.cancelFade()
		if e.st.Index+1 < len(e.items) {
			e.playAt(e.st.Index + 1)
		}
	case cmdPrev:
		e.cancelFade()
		if e.st.Index == 0 {
			e.seek(0)
		} else {
			e.playAt(e.st.Index - 1)
		}
	case cmdSeek:
		e.cancelFade()
		e.seek(cmd.pos)
	case cmdVolume:
		level := cmd.level
		if level < 0 {
			level = 0
		}
		if level > 1 {
			level = 1
		}
		e.st.Volume = level
		e.applyVolume()
		e.publishState()
	case cmdMute:
		e.st.Muted = !e.st.Muted
		e.applyVolume()
		e.publishState()
	case cmdShuffle:
		e.cancelFade()
		e.shuffle()
	case cmdResume:
		if cmd.gen == e.gen && e.current == nil && e.fade == nil &&
			e.st.Status == StatusIdle && len(e.items) > 0 {
			e.playAt(0)
		}
	}
}

// playAt makes index the current item and begins whatever its kind
// requires: loading audio, resolving a break, or skipping a failed one.
func (e *Engine) playAt(index int) {
	e.cancelFade()
	e.stopCurrent()

	if len(e.items) == 0 {
		e.st.Status = StatusIdle
		e.st.Playing = false
		e.st.Position = 0
		e.st.Duration = 0
		return
	}
	if index < 0 {
		index = 0
	}
	if index >= len(e.items) {
		index = len(e.items) - 1
	}

	e.st.Index = index
	e.st.Position = 0
	e.st.Duration = 0
	e.st.Playing = true

	item := &e.items[index]
	switch {
	case item.Kind == queue.KindSong, item.BreakStatus() == queue.BreakResolved:
		e.startOutput(item.AudioURL())
	case item.BreakStatus() == queue.BreakFailed:
		e.logger.Debug().Int("index", index).Msg("skipping failed host break")
		e.advanceFrom(index)
	default:
		e.st.Status = StatusResolving
		e.resolveBreak(index, *item.Pending)
	}
}

func (e *Engine) startOutput(url string) {
	if url == "" {
		e.logger.Warn().Int("index", e.st.Index).Msg("item has no audio, skipping")
		e.advanceFrom(e.st.Index)
		return
	}
	out := e.outputs()
	e.current = out
	e.watch(out)
	e.st.Status = StatusLoading
	out.Load(url)
}

// watch forwards an output's events into the loop, tagged with the
// output handle so stale outputs can be told apart from the current one.
func (e *Engine) watch(out audio.Output) {
	go func() {
		for ev := range out.Events() {
			select {
			case e.outEvents <- outputEvent{out: out, ev: ev}:
			case <-e.done:
				return
			}
		}
	}()
}

func (e *Engine) handleOutputEvent(oe outputEvent) {
	if e.fade != nil && oe.out == e.fade.next {
		e.handleFadeNextEvent(oe)
		return
	}
	if oe.out != e.current {
		// An output we already replaced. Its events carry no authority.
		return
	}

	switch oe.ev.Kind {
	case audio.EventReady:
		e.st.Duration = oe.out.Duration()
		e.applyVolume()
		if e.st.Playing {
			oe.out.Play()
			e.st.Status = StatusPlaying
		} else {
			e.st.Status = StatusPaused
		}
		e.announce()
		e.publishState()
	case audio.EventEnded, audio.EventError:
		if oe.ev.Kind == audio.EventError {
			e.logger.Warn().Err(oe.ev.Err).Int("index", e.st.Index).Msg("playback failed, advancing")
		}
		if e.fade != nil && !e.fade.outOnly {
			// Current ran out mid-fade; finish the promotion early.
			e.promoteFade()
			return
		}
		e.cancelFade()
		e.publishEnded()
		e.advanceFrom(e.st.Index)
	}
}

// advanceFrom moves past index exactly once. At the end of the queue it
// rebuilds, resets to the top, and resumes shortly after if playback
// was active.
func (e *Engine) advanceFrom(index int) {
	if index+1 < len(e.items) {
		e.playAt(index + 1)
		return
	}

	wasPlaying := e.st.Playing
	e.stopCurrent()
	e.logger.Info().Msg("queue exhausted, rebuilding")
	if err := e.rebuild(e.runCtx); err != nil {
		e.logger.Error().Err(err).Msg("queue rebuild failed")
		e.st.Status = StatusIdle
		e.st.Playing = false
		return
	}
	if wasPlaying {
		e.scheduleResume()
	}
}

func (e *Engine) scheduleResume() {
	gen := e.gen
	time.AfterFunc(e.resumeDeferral, func() {
		e.send(command{kind: cmdResume, gen: gen})
	})
}

// rebuild fetches the library and swaps in a fresh play order. After
// the first successful fetch the cached library keeps rebuilds working
// through transient fetch failures.
func (e *Engine) rebuild(ctx context.Context) error {
	tracks, err := e.source.Library(ctx)
	if err != nil {
		if e.cachedTracks == nil {
			return fmt.Errorf("fetch library: %w", err)
		}
		e.logger.Warn().Err(err).Msg("library refresh failed, reusing cached tracks")
		tracks = e.cachedTracks
	}
	e.cachedTracks = tracks

	hosts, err := e.source.HostsAvailable(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("host lookup failed, building without breaks")
		hosts = false
	}

	e.gen++
	e.items = queue.Build(tracks, hosts, e.station, e.rng)
	e.st.Index = 0
	e.st.Position = 0
	e.st.Duration = 0
	e.st.Status = StatusIdle
	e.announcedID = ""

	telemetry.QueueRebuilds.Inc()
	telemetry.QueueLength.Set(float64(len(e.items)))
	e.bus.Publish(events.EventQueueRebuilt, events.Payload{
		"generation": e.gen,
		"items":      len(e.items),
	})
	return nil
}

func (e *Engine) resolveBreak(index int, pending queue.PendingBreak) {
	if e.resolver == nil {
		e.items[index].MarkBreakFailed()
		e.advanceFrom(index)
		return
	}
	gen := e.gen
	go func() {
		seg, err := e.resolver.Resolve(e.runCtx, pending)
		select {
		case e.resolved <- breakResult{gen: gen, index: index, seg: seg, err: err}:
		case <-e.done:
		}
	}()
}

func (e *Engine) handleBreakResult(res breakResult) {
	if res.gen != e.gen || res.index >= len(e.items) {
		// Queue was rebuilt while the generator ran.
		return
	}
	item := &e.items[res.index]
	arrived := e.st.Index == res.index && e.st.Status == StatusResolving

	if res.err != nil {
		if item.MarkBreakFailed() {
			e.logger.Warn().Err(res.err).Int("index", res.index).Msg("host break generation failed")
			telemetry.HostBreaksFailed.Inc()
			e.bus.Publish(events.EventHostBreakFailed, events.Payload{
				"item_id": item.ID,
				"index":   res.index,
			})
		}
		if arrived {
			e.advanceFrom(res.index)
		}
		return
	}

	if !item.ResolveBreak(res.seg) {
		return
	}
	telemetry.HostBreaksResolved.Inc()
	e.bus.Publish(events.EventHostBreakResolved, events.Payload{
		"item_id":   item.ID,
		"index":     res.index,
		"host_id":   res.seg.HostID,
		"host_name": res.seg.HostName,
	})
	if arrived {
		e.startOutput(item.AudioURL())
	}
}

func (e *Engine) togglePlayPause() {
	if e.current == nil {
		if e.st.Status == StatusResolving {
			e.st.Playing = !e.st.Playing
			e.publishState()
			return
		}
		if len(e.items) == 0 {
			return
		}
		e.playAt(e.st.Index)
		return
	}

	if e.st.Playing {
		e.current.Pause()
		e.st.Playing = false
		if e.st.Status == StatusPlaying {
			e.st.Status = StatusPaused
		}
	} else {
		e.current.Play()
		e.st.Playing = true
		if e.st.Status == StatusPaused {
			e.st.Status = StatusPlaying
		}
	}
	e.publishState()
}

func (e *Engine) seek(pos time.Duration) {
	if e.current == nil {
		return
	}
	if pos < 0 {
		pos = 0
	}
	if d := e.st.Duration; d > 0 && pos > d {
		pos = d
	}
	e.current.SetPosition(pos)
	e.st.Position = pos
}

func (e *Engine) shuffle() {
	wasPlaying := e.st.Playing
	e.stopCurrent()
	if err := e.rebuild(e.runCtx); err != nil {
		e.logger.Error().Err(err).Msg("shuffle rebuild failed")
		return
	}
	if wasPlaying && len(e.items) > 0 {
		e.playAt(0)
	}
}

func (e *Engine) tick() {
	if e.current == nil {
		return
	}
	if e.st.Status == StatusPlaying || e.st.Status == StatusPaused {
		e.st.Position = e.current.Position()
		if d := e.current.Duration(); d > 0 {
			e.st.Duration = d
		}
	}
	e.maybeCrossfade()
}

// level is the effective output volume after mute.
func (e *Engine) level() float64 {
	if e.st.Muted {
		return 0
	}
	return e.st.Volume
}

// applyVolume pushes the effective level to the live output. Mid-fade
// both sides are rescaled at the last ramp progress so volume and mute
// changes take effect without disturbing the fade.
func (e *Engine) applyVolume() {
	level := e.level()
	if f := e.fade; f != nil {
		if e.current != nil {
			e.current.SetVolume(level * (1 - f.eased))
		}
		if f.next != nil {
			f.next.SetVolume(level * f.eased)
		}
		return
	}
	if e.current != nil {
		e.current.SetVolume(level)
	}
}

func (e *Engine) stopCurrent() {
	if e.current != nil {
		e.current.Close()
		e.current = nil
	}
}

func (e *Engine) teardown() {
	e.cancelFade()
	e.stopCurrent()
	close(e.done)
	e.logger.Info().Msg("playback engine stopped")
}

// announce publishes now-playing exactly once per queue item.
func (e *Engine) announce() {
	if e.st.Index >= len(e.items) {
		return
	}
	item := e.items[e.st.Index]
	if item.ID == e.announcedID {
		return
	}
	e.announcedID = item.ID

	telemetry.ItemsStarted.WithLabelValues(string(item.Kind)).Inc()
	payload := events.Payload{
		"item_id":  item.ID,
		"kind":     string(item.Kind),
		"index":    e.st.Index,
		"duration": e.st.Duration.Seconds(),
	}
	switch item.Kind {
	case queue.KindSong:
		payload["track_id"] = item.Track.ID
		payload["title"] = item.Track.Title
		payload["artist"] = item.Track.Artist
	case queue.KindHostBreak:
		if item.Segment != nil {
			payload["host_id"] = item.Segment.HostID
			payload["host_name"] = item.Segment.HostName
		}
	}
	e.bus.Publish(events.EventNowPlaying, payload)

	if e.history != nil {
		go e.history.RecordPlay(e.runCtx, item)
	}
}

func (e *Engine) publishEnded() {
	if e.st.Index >= len(e.items) {
		return
	}
	item := e.items[e.st.Index]
	e.bus.Publish(events.EventTrackEnded, events.Payload{
		"item_id": item.ID,
		"kind":    string(item.Kind),
		"index":   e.st.Index,
	})
}

func (e *Engine) publishState() {
	e.bus.Publish(events.EventPlaybackState, events.Payload{
		"index":       e.st.Index,
		"status":      string(e.st.Status),
		"playing":     e.st.Playing,
		"position":    e.st.Position.Seconds(),
		"duration":    e.st.Duration.Seconds(),
		"volume":      e.st.Volume,
		"muted":       e.st.Muted,
		"crossfading": e.st.Crossfading,
	})
}
