package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
	// MinFreeMB is the free space produce requires on the output filesystem.
	// Zero disables the check.
	MinFreeMB int `toml:"min_free_mb"`
}

// Generation contains settings for the image and voice generation backend.
type Generation struct {
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	ImageModel      string `toml:"image_model"`
	VoiceModel      string `toml:"voice_model"`
	DefaultVoice    string `toml:"default_voice"`
	VoiceSampleRate int    `toml:"voice_sample_rate"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	RetryAttempts   int    `toml:"retry_attempts"`
	// MaxConcurrency bounds batch fan-out. Zero leaves fan-out unbounded.
	MaxConcurrency int `toml:"max_concurrency"`
}

// LLM contains connection settings for the script-writing model.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Music contains configuration for the streaming music session.
type Music struct {
	Enabled       bool    `toml:"enabled"`
	Endpoint      string  `toml:"endpoint"`
	APIKey        string  `toml:"api_key"`
	Model         string  `toml:"model"`
	RecordSeconds int     `toml:"record_seconds"`
	BPM           int     `toml:"bpm"`
	Temperature   float64 `toml:"temperature"`
}

// Playback contains preview timing configuration.
type Playback struct {
	FallbackSceneMillis int    `toml:"fallback_scene_ms"`
	BackgroundLoop      string `toml:"background_loop"`
}

// Archive contains configuration for bundle assembly.
type Archive struct {
	FetchTimeoutSeconds int `toml:"fetch_timeout_seconds"`
	FetchCacheMinutes   int `toml:"fetch_cache_minutes"`
	FetchCacheMaxMB     int `toml:"fetch_cache_max_mb"`
}

// Notifications contains ntfy publishing settings. An empty topic disables
// notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for storyforge.
//
// Configuration sections by subsystem:
//   - Paths: working, log, and export directories
//   - Generation: image/voice backend credentials, models, and fan-out limits
//   - LLM: script-writing model connection
//   - Music: streaming background music session
//   - Playback: preview fallback timing
//   - Archive: remote fetch timeout and cache sizing
//   - Notifications: ntfy topic for production events
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Generation    Generation    `toml:"generation"`
	LLM           LLM           `toml:"llm"`
	Music         Music         `toml:"music"`
	Playback      Playback      `toml:"playback"`
	Archive       Archive       `toml:"archive"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/storyforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("storyforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the working, log, and export directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir, c.Paths.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the SQLite database path for the generation ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.WorkDir, "ledger.db")
}

// LockPath returns the workspace lock file guarding concurrent productions.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkDir, "storyforge.lock")
}

// FallbackSceneDuration is how long a scene without voice is shown during playback.
func (c *Config) FallbackSceneDuration() time.Duration {
	return time.Duration(c.Playback.FallbackSceneMillis) * time.Millisecond
}

// MusicRecordDuration is the wall-clock recording window for background music.
func (c *Config) MusicRecordDuration() time.Duration {
	return time.Duration(c.Music.RecordSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
