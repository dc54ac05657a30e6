package main

import (
	"context"
	"log/slog"
	"time"

	"storyforge/internal/asset"
	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/notifications"
	"storyforge/internal/services/genai"
	"storyforge/internal/services/llm"
	"storyforge/internal/services/musicstream"
)

// scriptTemperature keeps scripts varied without drifting off the JSON shape.
const scriptTemperature = 0.8

func newGenerationClient(cfg *config.Config, logger *slog.Logger) *genai.Client {
	return genai.NewClient(genai.Config{
		APIKey:         cfg.Generation.APIKey,
		BaseURL:        cfg.Generation.BaseURL,
		ImageModel:     cfg.Generation.ImageModel,
		VoiceModel:     cfg.Generation.VoiceModel,
		DefaultVoice:   cfg.Generation.DefaultVoice,
		TimeoutSeconds: cfg.Generation.TimeoutSeconds,
	},
		genai.WithRetryMaxAttempts(cfg.Generation.RetryAttempts+1),
		genai.WithLogger(logger),
	)
}

func newLLMClient(cfg *config.Config, logger *slog.Logger) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		Temperature:    scriptTemperature,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, llm.WithLogger(logger))
}

func newMusicClient(cfg *config.Config, logger *slog.Logger) *musicstream.Client {
	return musicstream.NewClient(musicstream.Config{
		Endpoint:    cfg.Music.Endpoint,
		APIKey:      cfg.Music.APIKey,
		Model:       cfg.Music.Model,
		BPM:         cfg.Music.BPM,
		Temperature: cfg.Music.Temperature,
	}, musicstream.WithLogger(logger))
}

func newResolver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*asset.Resolver, error) {
	return asset.NewResolver(ctx, asset.ResolverConfig{
		FetchTimeout: time.Duration(cfg.Archive.FetchTimeoutSeconds) * time.Second,
		CacheTTL:     time.Duration(cfg.Archive.FetchCacheMinutes) * time.Minute,
		CacheMaxMB:   cfg.Archive.FetchCacheMaxMB,
	}, asset.WithLogger(logger))
}

// newNotifier returns a publish func that logs delivery failures instead of
// failing the command.
func newNotifier(cfg *config.Config, logger *slog.Logger) func(context.Context, notifications.Event, notifications.Payload) {
	svc := notifications.NewService(cfg)
	return func(ctx context.Context, event notifications.Event, payload notifications.Payload) {
		if err := svc.Publish(ctx, event, payload); err != nil {
			logger.Warn("notification not delivered",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "notify_failed"),
			)
		}
	}
}
