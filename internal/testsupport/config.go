package testsupport

import (
	"path/filepath"
	"testing"

	"storyforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Generation.APIKey = "test"
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.OutputDir = filepath.Join(base, "exports")
	cfgVal.Music.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithGenerationBackend points the generation client at baseURL.
func WithGenerationBackend(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generation.BaseURL = baseURL
	}
}

// WithLLMBackend points the script writer at baseURL with a test key.
func WithLLMBackend(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = baseURL
		b.cfg.LLM.APIKey = "test"
	}
}

// WithMusicEndpoint enables music recording against endpoint.
func WithMusicEndpoint(endpoint string, seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Music.Enabled = true
		b.cfg.Music.Endpoint = endpoint
		b.cfg.Music.APIKey = "test"
		b.cfg.Music.RecordSeconds = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
