package archive_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storyforge/internal/archive"
	"storyforge/internal/asset"
	"storyforge/internal/services"
)

func newBuilder(t *testing.T) *archive.Builder {
	t.Helper()
	resolver, err := asset.NewResolver(context.Background(), asset.ResolverConfig{CacheMaxMB: 4})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	t.Cleanup(func() { _ = resolver.Close() })
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return archive.NewBuilder(resolver, archive.WithClock(func() time.Time { return fixed }))
}

func readZip(t *testing.T, data []byte) ([]string, map[string]string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	var names []string
	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		names = append(names, f.Name)
		contents[f.Name] = string(body)
	}
	return names, contents
}

func TestBuildArchiveIsolatesUnparseableEntry(t *testing.T) {
	b := newBuilder(t)
	entries := []archive.NamedAsset{
		{Filename: "script.txt", Text: "Scene 1\n"},
		{Filename: "images/Scene_1.png", Reference: asset.EncodeDataURI("image/png", []byte("png-1"))},
		{Filename: "images/Scene_2.png", Reference: "%%% definitely not an asset %%%"},
		{Filename: "audios/Scene_1.wav", Reference: "UklGRg=="},
	}

	data, report, err := b.BuildArchive(context.Background(), "My Story", entries)
	if err != nil {
		t.Fatalf("BuildArchive: %v", err)
	}
	names, contents := readZip(t, data)

	want := []string{"script.txt", "images/Scene_1.png", "images/Scene_2.png.error.txt", "audios/Scene_1.wav"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected entries:\n got %v\nwant %v", names, want)
	}
	if len(report.Written) != 3 || len(report.Failed) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !errors.Is(report.Failed[0].Err, services.ErrAssetResolution) {
		t.Fatalf("expected resolution error, got %v", report.Failed[0].Err)
	}
	if !strings.Contains(contents["images/Scene_2.png.error.txt"], "images/Scene_2.png") {
		t.Fatalf("error note should name the entry: %q", contents["images/Scene_2.png.error.txt"])
	}
	if contents["images/Scene_1.png"] != "png-1" || contents["audios/Scene_1.wav"] != "RIFF" {
		t.Fatalf("unexpected payloads: %q %q", contents["images/Scene_1.png"], contents["audios/Scene_1.wav"])
	}

	zr, _ := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if zr.Comment != "My Story" {
		t.Fatalf("expected bundle name as comment, got %q", zr.Comment)
	}
}

func TestBuildArchiveRemoteFailureIsPerEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.png" {
			_, _ = w.Write([]byte("remote-png"))
			return
		}
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	b := newBuilder(t)
	data, report, err := b.BuildArchive(context.Background(), "remote", []archive.NamedAsset{
		{Filename: "images/Scene_1.png", Reference: srv.URL + "/ok.png"},
		{Filename: "images/Scene_2.png", Reference: srv.URL + "/broken.png"},
	})
	if err != nil {
		t.Fatalf("BuildArchive: %v", err)
	}
	names, contents := readZip(t, data)
	if len(names) != 2 || names[1] != "images/Scene_2.png.error.txt" {
		t.Fatalf("unexpected entries: %v", names)
	}
	if contents["images/Scene_1.png"] != "remote-png" {
		t.Fatalf("unexpected remote payload %q", contents["images/Scene_1.png"])
	}
	if !strings.Contains(contents["images/Scene_2.png.error.txt"], "502") {
		t.Fatalf("expected status in note: %q", contents["images/Scene_2.png.error.txt"])
	}
	if len(report.Failed) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestBuildArchiveEmptyGuard(t *testing.T) {
	b := newBuilder(t)
	for name, entries := range map[string][]archive.NamedAsset{
		"no entries":   nil,
		"all failures": {{Filename: "a.png", Reference: "!!"}, {Filename: "b.png", Reference: "blob:x"}},
	} {
		data, _, err := b.BuildArchive(context.Background(), "empty", entries)
		if !errors.Is(err, services.ErrEmptyArchive) {
			t.Fatalf("%s: expected ErrEmptyArchive, got %v", name, err)
		}
		if data != nil {
			t.Fatalf("%s: expected no bytes", name)
		}
	}
}

func TestBuildArchiveTextOnly(t *testing.T) {
	b := newBuilder(t)
	data, report, err := b.BuildArchive(context.Background(), "text", []archive.NamedAsset{
		{Filename: "script.txt", Text: "hello"},
		{Filename: "images/Scene_1.png", Reference: "??"},
	})
	if err != nil {
		t.Fatalf("BuildArchive: %v", err)
	}
	names, _ := readZip(t, data)
	if len(names) != 2 || len(report.Written) != 1 {
		t.Fatalf("unexpected result: %v %+v", names, report)
	}
}

func TestBuildArchiveRejectsUnsafeNames(t *testing.T) {
	b := newBuilder(t)
	for _, entries := range [][]archive.NamedAsset{
		{{Filename: "", Text: "x"}},
		{{Filename: "../escape.txt", Text: "x"}},
		{{Filename: "/abs.txt", Text: "x"}},
		{{Filename: "dup.txt", Text: "x"}, {Filename: "dup.txt", Text: "y"}},
	} {
		if _, _, err := b.BuildArchive(context.Background(), "bad", entries); !errors.Is(err, services.ErrInvalidParameter) {
			t.Fatalf("expected ErrInvalidParameter for %+v, got %v", entries, err)
		}
	}
}

func TestBuildArchiveHonoursCancellation(t *testing.T) {
	b := newBuilder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := b.BuildArchive(ctx, "cancelled", []archive.NamedAsset{{Filename: "a.txt", Text: "x"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWriteArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "bundle.zip")
	if err := archive.WriteArchive(path, []byte("PK")); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "PK" {
		t.Fatalf("unexpected file: %q %v", got, err)
	}
	if err := archive.WriteArchive(path, nil); !errors.Is(err, services.ErrEmptyArchive) {
		t.Fatalf("expected ErrEmptyArchive, got %v", err)
	}
}
