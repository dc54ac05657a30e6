package playback_test

import (
	"sort"
	"sync"
	"time"

	"storyforge/internal/playback"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) playback.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.fn()
	}
}

// Pending counts timers that may still fire.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakePlayer struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	playErrs map[string]error
}

func (p *fakePlayer) Acquire() (playback.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := &fakeHandle{player: p}
	p.handles = append(p.handles, h)
	return h, nil
}

func (p *fakePlayer) acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (p *fakePlayer) handle(i int) *fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.handles) {
		return nil
	}
	return p.handles[i]
}

type fakeHandle struct {
	player *fakePlayer

	mu      sync.Mutex
	source  string
	playing bool
	closed  bool
	onEnded func()
	events  []string
}

func (h *fakeHandle) Attach(source string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.source != "" {
		h.events = append(h.events, "attach-without-detach")
	}
	h.source = source
	h.events = append(h.events, "attach:"+source)
	return nil
}

func (h *fakeHandle) Play(onEnded func()) error {
	h.player.mu.Lock()
	err := h.player.playErrs[h.currentSource()]
	h.player.mu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, "play")
	if err != nil {
		return err
	}
	h.playing = true
	h.onEnded = onEnded
	return nil
}

func (h *fakeHandle) currentSource() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.source
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	h.events = append(h.events, "pause")
}

func (h *fakeHandle) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = ""
	h.onEnded = nil
	h.events = append(h.events, "detach")
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Finish simulates the attached clip reaching its natural end.
func (h *fakeHandle) Finish() {
	h.mu.Lock()
	fn := h.onEnded
	h.onEnded = nil
	h.playing = false
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// EndedCallback returns the pending completion callback without firing it.
func (h *fakeHandle) EndedCallback() func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onEnded
}

func (h *fakeHandle) Source() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.source
}

func (h *fakeHandle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *fakeHandle) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}
