package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

func stubStatfs(t *testing.T, free uint64, err error) {
	t.Helper()
	prev := statfs
	statfs = func(string) (uint64, error) { return free, err }
	t.Cleanup(func() { statfs = prev })
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	stubStatfs(t, 512<<20, nil)
	if r := CheckFreeSpace("out", t.TempDir(), 256<<20); !r.Passed || r.Detail != "512 MiB free, need 256 MiB" {
		t.Fatalf("unexpected result %+v", r)
	}
	if r := CheckFreeSpace("out", t.TempDir(), 1<<30); r.Passed {
		t.Fatalf("expected failure, got %+v", r)
	}

	stubStatfs(t, 0, errors.New("no such filesystem"))
	if r := CheckFreeSpace("out", "/nowhere", 1); r.Passed || !strings.Contains(r.Detail, "statfs") {
		t.Fatalf("expected statfs error, got %+v", r)
	}
}

func TestRequireFreeSpace(t *testing.T) {
	stubStatfs(t, 1<<20, nil)
	dir := filepath.Join(t.TempDir(), "exports")
	err := RequireFreeSpace(dir, 2<<20)
	if !errors.Is(err, services.ErrConfiguration) || !strings.Contains(err.Error(), "1.0 MiB free") {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, statErr := os.Stat(dir); statErr != nil {
		t.Fatalf("expected directory to be created: %v", statErr)
	}
	if err := RequireFreeSpace(dir, 0); err != nil {
		t.Fatalf("zero requirement should pass: %v", err)
	}
}

func TestCheckGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "good-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/models/img-model" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		cfg    config.Generation
		passed bool
		detail string
	}{
		{"ok", config.Generation{BaseURL: srv.URL, APIKey: "good-key", ImageModel: "img-model"}, true, "available"},
		{"bad key", config.Generation{BaseURL: srv.URL, APIKey: "bad", ImageModel: "img-model"}, false, "auth failed"},
		{"unknown model", config.Generation{BaseURL: srv.URL, APIKey: "good-key", ImageModel: "other"}, false, "not found"},
		{"missing key", config.Generation{BaseURL: srv.URL, ImageModel: "img-model"}, false, "missing api key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := CheckGeneration(context.Background(), tt.cfg)
			if r.Passed != tt.passed || !strings.Contains(r.Detail, tt.detail) {
				t.Fatalf("unexpected result %+v", r)
			}
		})
	}
}

func TestCheckGenerationDoesNotLeakKey(t *testing.T) {
	r := CheckGeneration(context.Background(), config.Generation{
		BaseURL:    "http://127.0.0.1:1",
		APIKey:     "secret-key",
		ImageModel: "m",
	})
	if r.Passed || strings.Contains(r.Detail, "secret-key") {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, false); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	stubStatfs(t, 1<<40, nil)
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Generation.APIKey = "unused without probe"

	results := RunAll(context.Background(), &cfg, false)
	if len(results) != 4 {
		t.Fatalf("expected 3 directory checks and a space check, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_ProbesConfiguredBackends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.MinFreeMB = 0
	cfg.Generation.BaseURL = srv.URL
	cfg.Generation.APIKey = "test"

	results := RunAll(context.Background(), &cfg, true)
	found := false
	for _, r := range results {
		if r.Name == "Generation backend" {
			found = true
			if !r.Passed {
				t.Errorf("generation check failed: %s", r.Detail)
			}
		}
		if r.Name == "Script model" {
			t.Error("script model should not be probed without a key")
		}
	}
	if !found {
		t.Fatal("expected generation check in results")
	}
}
