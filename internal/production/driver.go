package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storyforge/internal/archive"
	"storyforge/internal/asset"
	"storyforge/internal/generation"
	"storyforge/internal/logging"
	"storyforge/internal/scene"
	"storyforge/internal/services"
)

// IdeaSource proposes story ideas for a premise.
type IdeaSource interface {
	Ideas(ctx context.Context, premise string) ([]scene.Idea, error)
}

// ScriptSource expands an idea into scenes.
type ScriptSource interface {
	Script(ctx context.Context, idea scene.Idea) ([]scene.Scene, error)
}

// MusicRecorder captures background music as WAV bytes. Empty bytes with a
// nil error mean the session degraded to no music.
type MusicRecorder interface {
	Record(ctx context.Context, prompt string, duration time.Duration) ([]byte, error)
}

// IdeaSelector picks the idea the script phase expands.
type IdeaSelector func(ideas []scene.Idea) (scene.Idea, error)

// Request describes one run. Scenes skips straight to Producing; Idea skips
// the idea phase.
type Request struct {
	Premise     string
	Idea        *scene.Idea
	Scenes      []scene.Scene
	MusicPrompt string
	// Voices maps a speaker role to a backend voice; unmapped roles use the
	// backend default.
	Voices map[scene.SpeakerRole]string
}

// Outcome reports what a run produced.
type Outcome struct {
	Phase      Phase
	Ideas      []scene.Idea
	Idea       scene.Idea
	Batch      generation.BatchResult
	Music      bool
	MusicErr   error
	Thumbnails int
}

// Driver advances a session through the production phases.
type Driver struct {
	client     generation.Client
	ideas      IdeaSource
	scripts    ScriptSource
	music      MusicRecorder
	musicFor   time.Duration
	thumbnails int
	selectIdea IdeaSelector
	genOpts    []generation.Option
	observer   func(Phase)
	logger     *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithIdeaSource enables the idea phase.
func WithIdeaSource(src IdeaSource) Option {
	return func(d *Driver) { d.ideas = src }
}

// WithScriptSource enables the script phase.
func WithScriptSource(src ScriptSource) Option {
	return func(d *Driver) { d.scripts = src }
}

// WithMusic records background music for duration after the batch.
func WithMusic(rec MusicRecorder, duration time.Duration) Option {
	return func(d *Driver) {
		d.music = rec
		d.musicFor = duration
	}
}

// WithThumbnails requests n cover images after the batch.
func WithThumbnails(n int) Option {
	return func(d *Driver) { d.thumbnails = max(n, 0) }
}

// WithIdeaSelector overrides the default of taking the first idea.
func WithIdeaSelector(fn IdeaSelector) Option {
	return func(d *Driver) {
		if fn != nil {
			d.selectIdea = fn
		}
	}
}

// WithGenerationOptions forwards options to every batch.
func WithGenerationOptions(opts ...generation.Option) Option {
	return func(d *Driver) { d.genOpts = append(d.genOpts, opts...) }
}

// WithPhaseObserver is called synchronously on every phase entry.
func WithPhaseObserver(fn func(Phase)) Option {
	return func(d *Driver) { d.observer = fn }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDriver builds a driver around the generation backend.
func NewDriver(client generation.Client, opts ...Option) *Driver {
	d := &Driver{
		client:     client,
		selectIdea: firstIdea,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "production")
	return d
}

func firstIdea(ideas []scene.Idea) (scene.Idea, error) {
	if len(ideas) == 0 {
		return scene.Idea{}, errors.New("no ideas to choose from")
	}
	return ideas[0], nil
}

// Run drives session from the phase implied by req to Ready. The session's
// sequence is replaced once a script is available.
func (d *Driver) Run(ctx context.Context, session *scene.Session, req Request) (Outcome, error) {
	ctx = services.WithSessionID(ctx, session.ID())
	logger := logging.WithContext(ctx, d.logger)

	var out Outcome
	scenes := req.Scenes
	switch {
	case len(scenes) > 0:
		out.Phase = Producing
	case req.Idea != nil:
		out.Phase = AwaitingScript
		out.Idea = *req.Idea
	default:
		out.Phase = AwaitingIdeas
	}

	if out.Phase == AwaitingIdeas {
		d.enter(logger, AwaitingIdeas)
		idea, ideas, err := d.runIdeas(ctx, req.Premise)
		out.Ideas = ideas
		if err != nil {
			return out, err
		}
		out.Idea = idea
		out.Phase = AwaitingScript
	}

	if out.Phase == AwaitingScript {
		d.enter(logger, AwaitingScript)
		written, err := d.runScript(ctx, out.Idea)
		if err != nil {
			return out, err
		}
		scenes = written
		out.Phase = Producing
	}

	if err := session.SetScenes(scenes); err != nil {
		return out, services.Wrap(services.ErrInvalidParameter, "production", "set scenes", "invalid scene list", err)
	}
	if out.Idea.Title != "" {
		session.SetScript(renderScript(out.Idea, scenes))
	}

	d.enter(logger, Producing)
	if err := d.produce(ctx, logger, session, req, &out); err != nil {
		return out, err
	}

	out.Phase = Ready
	d.enter(logger, Ready)
	logger.Info("production complete",
		logging.Int("scenes", len(scenes)),
		logging.Int("succeeded", out.Batch.Succeeded),
		logging.Int("failed", out.Batch.Failed),
		logging.Bool("music", out.Music),
		logging.Int("thumbnails", out.Thumbnails),
		logging.String(logging.FieldEventType, "production_ready"),
	)
	return out, nil
}

func (d *Driver) enter(logger *slog.Logger, phase Phase) {
	logger.Debug("phase entered", logging.String(logging.FieldPhase, phase.String()))
	if d.observer != nil {
		d.observer(phase)
	}
}

func (d *Driver) runIdeas(ctx context.Context, premise string) (scene.Idea, []scene.Idea, error) {
	if d.ideas == nil {
		return scene.Idea{}, nil, services.Wrap(services.ErrConfiguration, "production", AwaitingIdeas.String(),
			"no idea source configured", nil)
	}
	ideas, err := d.ideas.Ideas(services.WithPhase(ctx, AwaitingIdeas.String()), premise)
	if err != nil {
		return scene.Idea{}, nil, fmt.Errorf("%s: %w", AwaitingIdeas, err)
	}
	idea, err := d.selectIdea(ideas)
	if err != nil {
		return scene.Idea{}, ideas, services.Wrap(services.ErrInvalidParameter, "production", AwaitingIdeas.String(),
			"select idea", err)
	}
	return idea, ideas, nil
}

func (d *Driver) runScript(ctx context.Context, idea scene.Idea) ([]scene.Scene, error) {
	if d.scripts == nil {
		return nil, services.Wrap(services.ErrConfiguration, "production", AwaitingScript.String(),
			"no script source configured", nil)
	}
	scenes, err := d.scripts.Script(services.WithPhase(ctx, AwaitingScript.String()), idea)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", AwaitingScript, err)
	}
	if len(scenes) == 0 {
		return nil, services.Wrap(services.ErrMalformedInput, "production", AwaitingScript.String(),
			"script has no scenes", nil)
	}
	return scenes, nil
}

// Requests builds the batch for scenes: one image per scene and one voice
// clip per scene with dialogue.
func Requests(scenes []scene.Scene, voices map[scene.SpeakerRole]string) []generation.Request {
	reqs := make([]generation.Request, 0, len(scenes)*2)
	for _, sc := range scenes {
		prompt := strings.TrimSpace(sc.ImagePrompt)
		if prompt == "" {
			prompt = strings.TrimSpace(sc.Description)
		}
		reqs = append(reqs, generation.Request{SceneID: sc.ID, Kind: scene.KindImage, Prompt: prompt})
		if sc.HasDialogue() {
			reqs = append(reqs, generation.Request{
				SceneID: sc.ID,
				Kind:    scene.KindVoice,
				Prompt:  strings.TrimSpace(sc.Dialogue),
				VoiceID: voices[sc.SpeakerRole],
			})
		}
	}
	return reqs
}

func (d *Driver) produce(ctx context.Context, logger *slog.Logger, session *scene.Session, req Request, out *Outcome) error {
	ctx = services.WithPhase(ctx, Producing.String())
	out.Batch = generation.GenerateBatch(ctx, session, Requests(session.Scenes(), req.Voices), d.client, d.genOpts...)
	if err := ctx.Err(); err != nil {
		return err
	}

	if d.music != nil && strings.TrimSpace(req.MusicPrompt) != "" {
		data, err := d.music.Record(ctx, req.MusicPrompt, d.musicFor)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			out.MusicErr = err
			logger.Warn("background music unavailable",
				logging.Error(err),
				logging.String(logging.FieldEventType, "music_failed"),
			)
		case len(data) > 0:
			session.SetBackgroundMusic(asset.EncodeDataURI("audio/wav", data))
			out.Music = true
		default:
			logger.Info("background music session returned no audio",
				logging.String(logging.FieldEventType, "music_empty"),
			)
		}
	}

	for i := range d.thumbnails {
		ref, err := generation.GenerateDetached(ctx, generation.Request{
			Kind:   scene.KindImage,
			Prompt: thumbnailPrompt(out.Idea, session.Scenes(), i),
		}, d.client, d.genOpts...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("thumbnail generation failed",
				logging.Int("index", i+1),
				logging.Error(err),
				logging.String(logging.FieldEventType, "thumbnail_failed"),
			)
			continue
		}
		session.AddThumbnail(ref)
		out.Thumbnails++
	}
	return nil
}

func thumbnailPrompt(idea scene.Idea, scenes []scene.Scene, index int) string {
	subject := strings.TrimSpace(idea.Title + ". " + idea.Logline)
	if idea.Title == "" && len(scenes) > 0 {
		subject = scenes[index%len(scenes)].ImagePrompt
	}
	return fmt.Sprintf("Eye-catching cover image, variation %d: %s", index+1, subject)
}

func renderScript(idea scene.Idea, scenes []scene.Scene) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(idea.Title))
	b.WriteString("\n")
	if logline := strings.TrimSpace(idea.Logline); logline != "" {
		b.WriteString(logline)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(archive.Transcript(scenes))
	return b.String()
}
