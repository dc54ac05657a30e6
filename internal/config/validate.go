package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable. Credentials are not required
// here; commands that reach the backend check them with RequireGenerationKey.
func (c *Config) Validate() error {
	if c.Paths.MinFreeMB < 0 {
		return errors.New("paths.min_free_mb must not be negative")
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateMusic(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireGenerationKey reports a descriptive error when no backend API key is configured.
func (c *Config) RequireGenerationKey() error {
	if strings.TrimSpace(c.Generation.APIKey) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/storyforge/config.toml"
	}
	return fmt.Errorf("generation.api_key is required. Set GEMINI_API_KEY env var or edit %s (create with 'storyforge config init')", defaultPath)
}

func (c *Config) validateGeneration() error {
	if _, err := url.ParseRequestURI(c.Generation.BaseURL); err != nil {
		return fmt.Errorf("generation.base_url is invalid: %w", err)
	}
	if c.Generation.VoiceSampleRate <= 0 {
		return errors.New("generation.voice_sample_rate must be positive")
	}
	if c.Generation.MaxConcurrency < 0 {
		return errors.New("generation.max_concurrency must be zero (unbounded) or positive")
	}
	if c.Generation.RetryAttempts < 0 {
		return errors.New("generation.retry_attempts must not be negative")
	}
	return nil
}

func (c *Config) validateMusic() error {
	if !c.Music.Enabled {
		return nil
	}
	endpoint, err := url.Parse(c.Music.Endpoint)
	if err != nil {
		return fmt.Errorf("music.endpoint is invalid: %w", err)
	}
	if endpoint.Scheme != "ws" && endpoint.Scheme != "wss" {
		return fmt.Errorf("music.endpoint must use ws or wss, got %q", endpoint.Scheme)
	}
	if c.Music.BPM < 60 || c.Music.BPM > 200 {
		return errors.New("music.bpm must be between 60 and 200")
	}
	if c.Music.Temperature < 0 || c.Music.Temperature > 3 {
		return errors.New("music.temperature must be between 0 and 3")
	}
	return nil
}

func (c *Config) validateTimings() error {
	return ensurePositiveMap(map[string]int{
		"generation.timeout_seconds":    c.Generation.TimeoutSeconds,
		"llm.timeout_seconds":           c.LLM.TimeoutSeconds,
		"music.record_seconds":          c.Music.RecordSeconds,
		"playback.fallback_scene_ms":    c.Playback.FallbackSceneMillis,
		"archive.fetch_timeout_seconds": c.Archive.FetchTimeoutSeconds,
		"archive.fetch_cache_minutes":   c.Archive.FetchCacheMinutes,
		"archive.fetch_cache_max_mb":    c.Archive.FetchCacheMaxMB,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.ParseRequestURI(c.Notifications.NtfyTopic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", c.Notifications.NtfyTopic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
