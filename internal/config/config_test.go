package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"storyforge/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gen-key")
	t.Setenv("STORYFORGE_LLM_API_KEY", "llm-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "storyforge")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "storyforge", "exports") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Generation.APIKey != "gen-key" {
		t.Fatalf("expected generation key from env, got %q", cfg.Generation.APIKey)
	}
	if cfg.LLM.APIKey != "llm-key" {
		t.Fatalf("expected llm key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Music.APIKey != "gen-key" {
		t.Fatalf("expected music key to fall back to generation key, got %q", cfg.Music.APIKey)
	}
	if cfg.Generation.VoiceSampleRate != 24000 {
		t.Fatalf("unexpected voice sample rate: %d", cfg.Generation.VoiceSampleRate)
	}
	if cfg.FallbackSceneDuration() != 3*time.Second {
		t.Fatalf("unexpected fallback duration: %s", cfg.FallbackSceneDuration())
	}
	if cfg.MusicRecordDuration() != 15*time.Second {
		t.Fatalf("unexpected music window: %s", cfg.MusicRecordDuration())
	}
	if cfg.Generation.MaxConcurrency != 0 {
		t.Fatalf("expected unbounded fan-out by default, got %d", cfg.Generation.MaxConcurrency)
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "storyforge.toml")
	payload := struct {
		Paths struct {
			WorkDir string `toml:"work_dir"`
		} `toml:"paths"`
		Generation struct {
			APIKey         string `toml:"api_key"`
			MaxConcurrency int    `toml:"max_concurrency"`
		} `toml:"generation"`
		Playback struct {
			FallbackSceneMillis int `toml:"fallback_scene_ms"`
		} `toml:"playback"`
		Logging struct {
			Format string `toml:"format"`
			Level  string `toml:"level"`
		} `toml:"logging"`
	}{}
	payload.Paths.WorkDir = "~/forge"
	payload.Generation.APIKey = "file-key"
	payload.Generation.MaxConcurrency = 4
	payload.Playback.FallbackSceneMillis = 1500
	payload.Logging.Format = " JSON "
	payload.Logging.Level = "Debug"

	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.WorkDir != filepath.Join(tempHome, "forge") {
		t.Fatalf("unexpected work dir: %q", cfg.Paths.WorkDir)
	}
	if cfg.Generation.APIKey != "file-key" {
		t.Fatalf("unexpected api key: %q", cfg.Generation.APIKey)
	}
	if cfg.Generation.MaxConcurrency != 4 {
		t.Fatalf("unexpected concurrency: %d", cfg.Generation.MaxConcurrency)
	}
	if cfg.FallbackSceneDuration() != 1500*time.Millisecond {
		t.Fatalf("unexpected fallback duration: %s", cfg.FallbackSceneDuration())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging settings, got %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}
	if cfg.LedgerPath() != filepath.Join(tempHome, "forge", "ledger.db") {
		t.Fatalf("unexpected ledger path: %q", cfg.LedgerPath())
	}
}

func TestFileKeyWinsOverEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("HOME", t.TempDir())

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[generation]\napi_key = \"file-key\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Generation.APIKey != "file-key" {
		t.Fatalf("expected file key to win, got %q", cfg.Generation.APIKey)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"negative concurrency", "[generation]\nmax_concurrency = -1\n", "generation.max_concurrency"},
		{"zero fallback", "[playback]\nfallback_scene_ms = -5\n", "playback.fallback_scene_ms"},
		{"bad log format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"bad music scheme", "[music]\nenabled = true\nendpoint = \"https://example.com\"\n", "music.endpoint"},
		{"bpm out of range", "[music]\nenabled = true\nbpm = 20\n", "music.bpm"},
		{"ntfy topic not a url", "[notifications]\nntfy_topic = \"my-topic\"\n", "notifications.ntfy_topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRequireGenerationKey(t *testing.T) {
	cfg := config.Default()
	if err := cfg.RequireGenerationKey(); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
	cfg.Generation.APIKey = "k"
	if err := cfg.RequireGenerationKey(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Playback.FallbackSceneMillis != 3000 {
		t.Fatalf("unexpected sample fallback: %d", cfg.Playback.FallbackSceneMillis)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.LogDir, cfg.Paths.OutputDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", dir)
		}
	}
}
