/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog"
)

const speakerRate = beep.SampleRate(44100)

var speakerOnce sync.Once

func initSpeaker() error {
	var err error
	speakerOnce.Do(func() {
		err = speaker.Init(speakerRate, speakerRate.N(100*time.Millisecond))
	})
	return err
}

// SpeakerOutput plays media through the local sound device using the
// beep speaker mixer. One output per queue item; crossfades run two of
// these side by side.
type SpeakerOutput struct {
	logger zerolog.Logger
	events chan Event

	mu        sync.Mutex
	file      *os.File
	streamer  beep.StreamSeekCloser
	format    beep.Format
	ctrl      *beep.Ctrl
	volume    *effects.Volume
	level     float64
	closed    bool
	tempPath  string
	available bool
}

// NewSpeakerOutput returns an Output backed by the system speaker.
func NewSpeakerOutput(logger zerolog.Logger) *SpeakerOutput {
	return &SpeakerOutput{
		logger: logger.With().Str("component", "audio").Logger(),
		events: make(chan Event, 4),
		level:  1.0,
	}
}

// SpeakerFactory adapts NewSpeakerOutput to the Factory signature.
func SpeakerFactory(logger zerolog.Logger) Factory {
	return func() Output { return NewSpeakerOutput(logger) }
}

func (o *SpeakerOutput) Load(url string) {
	go func() {
		if err := o.load(url); err != nil {
			o.logger.Warn().Err(err).Str("url", url).Msg("audio load failed")
			o.emit(Event{Kind: EventError, Err: err})
			return
		}
		o.emit(Event{Kind: EventReady})
	}()
}

func (o *SpeakerOutput) load(url string) error {
	if err := initSpeaker(); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}

	local, temp, err := o.fetch(url)
	if err != nil {
		return err
	}

	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}

	streamer, format, err := decode(f, local)
	if err != nil {
		f.Close()
		return err
	}

	var source beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		source = beep.Resample(4, format.SampleRate, speakerRate, streamer)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		streamer.Close()
		f.Close()
		if temp != "" {
			os.Remove(temp)
		}
		return fmt.Errorf("output closed during load")
	}
	o.file = f
	o.streamer = streamer
	o.format = format
	o.tempPath = temp
	o.ctrl = &beep.Ctrl{Streamer: source, Paused: true}
	o.volume = &effects.Volume{Streamer: o.ctrl, Base: 2}
	o.applyLevelLocked()
	o.available = true
	vol := o.volume
	o.mu.Unlock()

	speaker.Play(beep.Seq(vol, beep.Callback(func() {
		o.mu.Lock()
		closed := o.closed
		o.mu.Unlock()
		if !closed {
			o.emit(Event{Kind: EventEnded})
		}
	})))
	return nil
}

// fetch resolves the locator to a local file, downloading remote media
// to a temp file first. The second return value is the temp path to
// delete on Close, empty for local files.
func (o *SpeakerOutput) fetch(url string) (string, string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return strings.TrimPrefix(url, "file://"), "", nil
	}

	resp, err := http.Get(url)
	if err != nil {
		return "", "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}

	ext := path.Ext(strings.SplitN(path.Base(url), "?", 2)[0])
	tmp, err := os.CreateTemp("", "storybeam-audio-*"+ext)
	if err != nil {
		return "", "", fmt.Errorf("temp media file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", "", fmt.Errorf("download media: %w", err)
	}
	tmp.Close()
	return tmp.Name(), tmp.Name(), nil
}

func decode(f *os.File, name string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	case ".flac":
		return flac.Decode(f)
	case ".ogg", ".oga":
		return vorbis.Decode(f)
	default:
		// Most generated and library audio is mp3.
		return mp3.Decode(f)
	}
}

func (o *SpeakerOutput) Play() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.available || o.closed {
		return
	}
	speaker.Lock()
	o.ctrl.Paused = false
	speaker.Unlock()
}

func (o *SpeakerOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.available || o.closed {
		return
	}
	speaker.Lock()
	o.ctrl.Paused = true
	speaker.Unlock()
}

func (o *SpeakerOutput) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.available || o.closed {
		return 0
	}
	speaker.Lock()
	pos := o.streamer.Position()
	speaker.Unlock()
	return o.format.SampleRate.D(pos)
}

func (o *SpeakerOutput) SetPosition(pos time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.available || o.closed {
		return
	}
	sample := o.format.SampleRate.N(pos)
	if max := o.streamer.Len(); sample > max {
		sample = max
	}
	if sample < 0 {
		sample = 0
	}
	speaker.Lock()
	if err := o.streamer.Seek(sample); err != nil {
		o.logger.Warn().Err(err).Msg("seek failed")
	}
	speaker.Unlock()
}

func (o *SpeakerOutput) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.available || o.closed {
		return 0
	}
	return o.format.SampleRate.D(o.streamer.Len())
}

func (o *SpeakerOutput) SetVolume(level float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	o.level = level
	if o.available && !o.closed {
		o.applyLevelLocked()
	}
}

// applyLevelLocked maps the linear level onto the exponential volume
// effect. Callers hold o.mu.
func (o *SpeakerOutput) applyLevelLocked() {
	speaker.Lock()
	if o.level <= 0.001 {
		o.volume.Silent = true
	} else {
		o.volume.Silent = false
		o.volume.Volume = math.Log2(o.level)
	}
	speaker.Unlock()
}

func (o *SpeakerOutput) Events() <-chan Event { return o.events }

func (o *SpeakerOutput) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.available {
		speaker.Lock()
		o.ctrl.Paused = true
		// Detach the streamer so the mixer drops this sequence.
		o.ctrl.Streamer = nil
		speaker.Unlock()
		o.streamer.Close()
		o.file.Close()
	}
	temp := o.tempPath
	close(o.events)
	o.mu.Unlock()

	if temp != "" {
		os.Remove(temp)
	}
}

// emit delivers without blocking. Holding o.mu keeps the send ordered
// against Close, which closes the channel under the same lock.
func (o *SpeakerOutput) emit(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.events <- ev:
	default:
	}
}
