package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"storyforge/internal/logging"
	"storyforge/internal/scene"
	"storyforge/internal/services"
)

// DefaultFallback is how long a scene without a voice clip stays on screen.
const DefaultFallback = 3000 * time.Millisecond

// State is the director's position in its state machine.
type State int

const (
	Idle State = iota
	Playing
	Paused
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is a consistent view of the director.
type Snapshot struct {
	State   State
	Cursor  int
	SceneID int
	Len     int
}

// SceneChange is delivered to observers whenever a scene starts.
type SceneChange struct {
	Index   int
	Scene   scene.Scene
	HasClip bool
}

// Director runs the preview state machine over a session.
type Director struct {
	session  *scene.Session
	player   Player
	clock    Clock
	fallback time.Duration
	loop     string
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	cursor  int
	epoch   uint64
	timer   Timer
	voice   Handle
	source  string
	bg      Handle
	bgReady bool
	bgEpoch uint64
	closed  bool

	observers  []func(SceneChange)
	pending    []SceneChange
	outbox     []SceneChange
	delivering bool
}

// Option configures a Director.
type Option func(*Director)

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(d *Director) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithFallback overrides the fallback scene duration.
func WithFallback(duration time.Duration) Option {
	return func(d *Director) {
		if duration > 0 {
			d.fallback = duration
		}
	}
}

// WithBackgroundLoop plays source on a second handle, looped, while playing.
func WithBackgroundLoop(source string) Option {
	return func(d *Director) {
		d.loop = source
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Director) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDirector constructs an idle director for session.
func NewDirector(session *scene.Session, player Player, opts ...Option) *Director {
	d := &Director{
		session:  session,
		player:   player,
		clock:    SystemClock(),
		fallback: DefaultFallback,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "playback").With(
		logging.String(logging.FieldSessionID, session.ID()),
	)
	d.publishLocked()
	return d
}

// OnSceneChange registers an observer. Observers run outside the director's
// lock and may call back into it. Events are delivered one at a time in the
// order the scenes started.
func (d *Director) OnSceneChange(fn func(SceneChange)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// State returns a snapshot.
func (d *Director) State() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := Snapshot{State: d.state, Cursor: d.cursor, Len: d.session.Len()}
	if sc, ok := d.session.SceneAt(d.cursor); ok {
		snap.SceneID = sc.ID
	}
	return snap
}

// Settled reports whether every queued scene change has been delivered.
func (d *Director) Settled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.delivering && len(d.outbox) == 0 && len(d.pending) == 0
}

// TogglePlay starts or pauses playback. Ended restarts from the first scene.
// With no scenes it is a no-op that leaves the director Idle at cursor 0.
func (d *Director) TogglePlay() {
	d.mu.Lock()
	defer d.unlockAndNotify()
	if d.closed {
		return
	}
	if d.session.Len() == 0 {
		d.cancelTriggerLocked()
		d.state = Idle
		d.cursor = 0
		d.publishLocked()
		return
	}
	switch d.state {
	case Playing:
		d.cancelTriggerLocked()
		if d.voice != nil {
			d.voice.Pause()
		}
		d.pauseBackgroundLocked()
		d.state = Paused
		d.logger.Debug("playback paused", logging.Int("cursor", d.cursor))
		d.publishLocked()
	case Ended:
		d.cursor = 0
		fallthrough
	default:
		d.state = Playing
		d.logger.Debug("playback started", logging.Int("cursor", d.cursor))
		d.startBackgroundLocked()
		d.enterLocked()
	}
}

// JumpTo moves the cursor to index, clamped to the sequence. While playing the
// scene restarts at the new position. Jumping out of Ended parks the director
// Paused at the new position.
func (d *Director) JumpTo(index int) {
	d.mu.Lock()
	defer d.unlockAndNotify()
	if d.closed {
		return
	}
	d.cancelTriggerLocked()
	d.cursor = clamp(index, d.session.Len())
	switch d.state {
	case Playing:
		d.enterLocked()
		return
	case Ended:
		d.state = Paused
	}
	d.publishLocked()
}

// MoveItem reorders the sequence. The cursor keeps pointing at the same scene.
func (d *Director) MoveItem(from, to int) error {
	d.mu.Lock()
	defer d.unlockAndNotify()
	current, hasCurrent := d.session.SceneAt(d.cursor)
	if err := d.session.Move(from, to); err != nil {
		return services.Wrap(services.ErrInvalidParameter, "playback", "move item", "", err)
	}
	if hasCurrent {
		if idx := d.session.IndexOf(current.ID); idx >= 0 {
			d.cursor = idx
		}
	}
	d.publishLocked()
	return nil
}

// DeleteItem removes the scene at index and adjusts the cursor. Deleting the
// current scene while playing starts the scene that takes its place.
func (d *Director) DeleteItem(index int) error {
	d.mu.Lock()
	defer d.unlockAndNotify()
	if _, err := d.session.Delete(index); err != nil {
		return services.Wrap(services.ErrInvalidParameter, "playback", "delete item", "", err)
	}
	n := d.session.Len()
	if n == 0 {
		d.stopLocked()
		d.cursor = 0
		d.publishLocked()
		return nil
	}
	switch {
	case index == d.cursor:
		d.cursor = max(0, index-1)
		if d.state == Playing {
			d.cancelTriggerLocked()
			d.enterLocked()
			return nil
		}
	case index < d.cursor:
		d.cursor--
	}
	d.cursor = clamp(d.cursor, n)
	d.publishLocked()
	return nil
}

// Stop returns to Idle, detaching every source and cancelling the timer.
func (d *Director) Stop() {
	d.mu.Lock()
	defer d.unlockAndNotify()
	d.stopLocked()
	d.publishLocked()
}

// Close stops playback and releases the audio handles.
func (d *Director) Close() error {
	d.mu.Lock()
	defer d.unlockAndNotify()
	if d.closed {
		return nil
	}
	d.stopLocked()
	d.closed = true
	var errs []error
	if d.voice != nil {
		errs = append(errs, d.voice.Close())
		d.voice = nil
	}
	if d.bg != nil {
		errs = append(errs, d.bg.Close())
		d.bg = nil
	}
	d.publishLocked()
	return errors.Join(errs...)
}

// enterLocked runs the advance algorithm for the scene at the cursor.
func (d *Director) enterLocked() {
	d.cancelTriggerLocked()
	d.releaseSourceLocked()
	sc, ok := d.session.SceneAt(d.cursor)
	if !ok {
		d.state = Ended
		d.cursor = clamp(d.cursor, d.session.Len())
		d.pauseBackgroundLocked()
		d.logger.Info("playback ended",
			logging.Int("scenes", d.session.Len()),
			logging.String(logging.FieldEventType, "playback_ended"),
		)
		d.publishLocked()
		return
	}

	epoch := d.epoch
	ref, hasClip := d.session.Asset(scene.KindVoice, sc.ID)
	d.pending = append(d.pending, SceneChange{Index: d.cursor, Scene: sc, HasClip: hasClip})
	logger := d.logger.With(logging.Int(logging.FieldSceneID, sc.ID), logging.Int("cursor", d.cursor))

	if hasClip {
		err := d.playVoiceLocked(ref, epoch)
		switch {
		case err == nil:
			d.publishLocked()
			return
		case errors.Is(err, ErrInterrupted):
			// No completion will follow; the timer keeps the sequence moving.
			logger.Debug("voice playback interrupted; using fallback duration")
		default:
			logger.Warn("voice playback failed; using fallback duration",
				logging.Error(err),
				logging.Duration("fallback", d.fallback),
				logging.String(logging.FieldEventType, "playback_fallback"),
			)
		}
	}

	d.timer = d.clock.AfterFunc(d.fallback, func() { d.advance(epoch) })
	d.publishLocked()
}

func (d *Director) playVoiceLocked(ref string, epoch uint64) error {
	if d.voice == nil {
		if d.player == nil {
			return errors.New("no audio player configured")
		}
		handle, err := d.player.Acquire()
		if err != nil {
			return fmt.Errorf("acquire audio handle: %w", err)
		}
		d.voice = handle
	}
	if err := d.voice.Attach(ref); err != nil {
		return fmt.Errorf("attach source: %w", err)
	}
	d.source = ref
	return d.voice.Play(func() { d.advance(epoch) })
}

// advance is the single trigger callback. Stale epochs are ignored.
func (d *Director) advance(epoch uint64) {
	d.mu.Lock()
	defer d.unlockAndNotify()
	if d.closed || epoch != d.epoch || d.state != Playing {
		return
	}
	d.cursor++
	d.enterLocked()
}

func (d *Director) cancelTriggerLocked() {
	d.epoch++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Director) releaseSourceLocked() {
	if d.voice == nil || d.source == "" {
		return
	}
	d.voice.Pause()
	d.voice.Detach()
	d.source = ""
}

func (d *Director) stopLocked() {
	d.cancelTriggerLocked()
	d.releaseSourceLocked()
	d.bgEpoch++
	if d.bg != nil && d.bgReady {
		d.bg.Pause()
		d.bg.Detach()
		d.bgReady = false
	}
	if d.state != Idle {
		d.logger.Debug("playback stopped", logging.Int("cursor", d.cursor))
	}
	d.state = Idle
}

func (d *Director) startBackgroundLocked() {
	if d.loop == "" || d.player == nil {
		return
	}
	if d.bg == nil {
		handle, err := d.player.Acquire()
		if err != nil {
			d.logger.Warn("background loop unavailable", logging.Error(err))
			return
		}
		d.bg = handle
	}
	if !d.bgReady {
		if err := d.bg.Attach(d.loop); err != nil {
			d.logger.Warn("background loop attach failed", logging.Error(err))
			return
		}
		d.bgReady = true
	}
	d.bgEpoch++
	d.playBackgroundLocked(d.bgEpoch)
}

func (d *Director) playBackgroundLocked(epoch uint64) {
	err := d.bg.Play(func() { d.loopBackground(epoch) })
	if err != nil && !errors.Is(err, ErrInterrupted) {
		d.logger.Warn("background loop playback failed", logging.Error(err))
	}
}

func (d *Director) loopBackground(epoch uint64) {
	d.mu.Lock()
	defer d.unlockAndNotify()
	if d.closed || !d.bgReady || epoch != d.bgEpoch || d.state != Playing {
		return
	}
	d.playBackgroundLocked(epoch)
}

func (d *Director) pauseBackgroundLocked() {
	d.bgEpoch++
	if d.bgReady {
		d.bg.Pause()
	}
}

func (d *Director) publishLocked() {
	if d.session.Len() == 0 {
		d.cursor = 0
		if d.state == Playing || d.state == Paused {
			d.state = Idle
		}
	}
	d.session.SetPlayback(scene.PlaybackState{
		Cursor:        d.cursor,
		IsPlaying:     d.state == Playing,
		CurrentSource: d.source,
	})
}

// unlockAndNotify releases d.mu and delivers queued scene changes. Only one
// goroutine delivers at a time; others leave their events in the outbox for
// it, so observers never run concurrently and see events in FIFO order.
func (d *Director) unlockAndNotify() {
	d.outbox = append(d.outbox, d.pending...)
	d.pending = nil
	if d.delivering {
		d.mu.Unlock()
		return
	}
	d.delivering = true
	for len(d.outbox) > 0 {
		events := d.outbox
		d.outbox = nil
		observers := d.observers
		d.mu.Unlock()
		for _, ev := range events {
			for _, fn := range observers {
				fn(ev)
			}
		}
		d.mu.Lock()
	}
	d.delivering = false
	d.mu.Unlock()
}

func clamp(index, n int) int {
	if n <= 0 || index < 0 {
		return 0
	}
	if index >= n {
		return n - 1
	}
	return index
}
