package generation

import (
	"log/slog"
	"time"

	"storyforge/internal/logging"
)

const defaultVoiceSampleRate = 24000

type options struct {
	limit           int
	progress        func(Progress)
	recorder        Recorder
	logger          *slog.Logger
	voiceSampleRate int
	now             func() time.Time
}

// Option configures a batch.
type Option func(*options)

// WithConcurrencyLimit bounds the number of in-flight requests. Zero or
// negative keeps fan-out unbounded.
func WithConcurrencyLimit(n int) Option {
	return func(o *options) {
		o.limit = n
	}
}

// WithProgress subscribes to completion progress. The callback runs on the
// fan-in goroutine and must not block.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithRecorder forwards every status transition to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithVoiceSampleRate sets the rate assumed for raw PCM voice payloads whose
// MIME hint carries no rate (default 24 kHz).
func WithVoiceSampleRate(hz int) Option {
	return func(o *options) {
		if hz > 0 {
			o.voiceSampleRate = hz
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:          logging.NewNop(),
		voiceSampleRate: defaultVoiceSampleRate,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = logging.NewComponentLogger(o.logger, "generation")
	return o
}
