package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitShowAndCheck(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	requireFile(t, target)

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, `api_key = 'test'`) || strings.Contains(out, `api_key = "test"`) {
		t.Fatalf("secret leaked: %s", out)
	}

	out, _, err = runCLI(t, []string{"config", "check"}, env.configPath)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestConfigCheckReportsMissingGenerationKey(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Generation.APIKey = ""
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, []string{"config", "check"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
