package playback

import (
	"errors"
	"time"
)

// ErrInterrupted is returned by Handle.Play when the source was swapped
// before playback started. The director does not warn about it but still
// moves on after the fallback duration, since no completion will follow.
var ErrInterrupted = errors.New("playback interrupted by source change")

// Handle is a reusable audio output.
type Handle interface {
	// Attach assigns a source. Any previous source has been detached.
	Attach(source string) error
	// Play starts or resumes the attached source, restarting it once it has
	// ended. onEnded is called at most once, after Play has returned, when the
	// source reaches its natural end.
	Play(onEnded func()) error
	Pause()
	Detach()
	Close() error
}

// Player hands out audio handles.
type Player interface {
	Acquire() (Handle, error)
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Clock schedules fallback advances.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return realClock{}
}

type scaledClock struct {
	base  Clock
	speed float64
}

func (c scaledClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.base.AfterFunc(time.Duration(float64(d)/c.speed), f)
}

// ScaledClock runs base speed times faster. Speeds <= 0 or 1 return base.
func ScaledClock(base Clock, speed float64) Clock {
	if speed <= 0 || speed == 1 {
		return base
	}
	return scaledClock{base: base, speed: speed}
}
