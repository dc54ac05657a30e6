package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"storyforge/internal/asset"
	"storyforge/internal/audio"
)

// ClipLength reports how long a source plays.
type ClipLength func(source string) (time.Duration, error)

// InlineClipLength decodes inline (data URI or raw base64) WAV and MP3
// sources. Remote sources are rejected.
func InlineClipLength(source string) (time.Duration, error) {
	ref, err := asset.Classify(source, "")
	if err != nil {
		return 0, err
	}
	switch v := ref.(type) {
	case asset.InlineDataURI:
		return audio.ClipDuration(v.Data)
	case asset.RawBase64:
		return audio.ClipDuration(v.Data)
	default:
		return 0, fmt.Errorf("clip length: %T sources must be resolved first", ref)
	}
}

// SimulatedPlayer produces handles that make no sound: a playing clip ends
// once its length has elapsed on the clock.
type SimulatedPlayer struct {
	clock  Clock
	length ClipLength
	now    func() time.Time
}

// NewSimulatedPlayer builds a player. A nil length uses InlineClipLength.
func NewSimulatedPlayer(clock Clock, length ClipLength) *SimulatedPlayer {
	if clock == nil {
		clock = SystemClock()
	}
	if length == nil {
		length = InlineClipLength
	}
	return &SimulatedPlayer{clock: clock, length: length, now: time.Now}
}

// Acquire returns a fresh handle.
func (p *SimulatedPlayer) Acquire() (Handle, error) {
	return &simulatedHandle{player: p}, nil
}

type simulatedHandle struct {
	player *SimulatedPlayer

	mu        sync.Mutex
	source    string
	length    time.Duration
	position  time.Duration
	startedAt time.Time
	playing   bool
	timer     Timer
	gen       uint64
	closed    bool
}

func (h *simulatedHandle) Attach(source string) error {
	length, err := h.player.length(source)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("handle closed")
	}
	h.resetLocked()
	h.source = source
	h.length = length
	return nil
}

func (h *simulatedHandle) Play(onEnded func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("handle closed")
	}
	if h.source == "" {
		return errors.New("no source attached")
	}
	if h.playing {
		return nil
	}
	if h.position >= h.length {
		h.position = 0
	}
	h.playing = true
	h.startedAt = h.player.now()
	gen := h.gen
	h.timer = h.player.clock.AfterFunc(h.length-h.position, func() {
		h.mu.Lock()
		if h.gen != gen || !h.playing {
			h.mu.Unlock()
			return
		}
		h.playing = false
		h.position = h.length
		h.timer = nil
		h.mu.Unlock()
		if onEnded != nil {
			onEnded()
		}
	})
	return nil
}

func (h *simulatedHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.playing {
		return
	}
	h.stopTimerLocked()
	h.position = min(h.position+h.player.now().Sub(h.startedAt), h.length)
	h.playing = false
}

func (h *simulatedHandle) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resetLocked()
}

func (h *simulatedHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resetLocked()
	h.closed = true
	return nil
}

func (h *simulatedHandle) resetLocked() {
	h.stopTimerLocked()
	h.gen++
	h.source = ""
	h.length = 0
	h.position = 0
	h.playing = false
}

func (h *simulatedHandle) stopTimerLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}
