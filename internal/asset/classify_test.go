package asset_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"storyforge/internal/asset"
	"storyforge/internal/services"
)

func TestClassifyVariants(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nbody")
	encoded := base64.StdEncoding.EncodeToString(png)

	ref, err := asset.Classify("data:image/png;base64,"+encoded, "images/Scene_1.png")
	if err != nil {
		t.Fatalf("data uri: %v", err)
	}
	inline, ok := ref.(asset.InlineDataURI)
	if !ok {
		t.Fatalf("expected InlineDataURI, got %T", ref)
	}
	if inline.MIMEType != "image/png" || !bytes.Equal(inline.Data, png) {
		t.Fatalf("unexpected inline payload: %+v", inline)
	}

	ref, err = asset.Classify(encoded, "audios/Scene_2.wav")
	if err != nil {
		t.Fatalf("raw base64: %v", err)
	}
	raw, ok := ref.(asset.RawBase64)
	if !ok {
		t.Fatalf("expected RawBase64, got %T", ref)
	}
	if raw.GuessedMIME != "audio/wav" || !bytes.Equal(raw.Data, png) {
		t.Fatalf("unexpected raw payload: %+v", raw)
	}

	for _, url := range []string{"https://cdn.example/a.png", "http://x/y", "blob:https://app/1234"} {
		ref, err = asset.Classify(url, "a.png")
		if err != nil {
			t.Fatalf("%s: %v", url, err)
		}
		remote, ok := ref.(asset.RemoteURL)
		if !ok || remote.URL != url {
			t.Fatalf("%s: expected RemoteURL, got %#v", url, ref)
		}
	}
}

func TestClassifyPlainDataURI(t *testing.T) {
	ref, err := asset.Classify("data:,hello%20world", "note.txt")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	inline := ref.(asset.InlineDataURI)
	if inline.MIMEType != "text/plain" || string(inline.Data) != "hello%20world" {
		t.Fatalf("unexpected inline: %+v", inline)
	}
}

func TestClassifyFailuresAreResolutionErrors(t *testing.T) {
	tests := []struct {
		name string
		ref  string
	}{
		{"bad data uri payload", "data:image/png;base64,@@@"},
		{"data uri without comma", "data:image/png;base64"},
		{"unparseable string", "this is not an asset!"},
		{"empty", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := asset.Classify(tt.ref, "x.png")
			if err == nil {
				t.Fatal("expected error")
			}
			var resErr *asset.ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("expected *ResolutionError, got %T", err)
			}
			if resErr.Ref != tt.ref {
				t.Fatalf("expected offending ref to be carried, got %q", resErr.Ref)
			}
			if !errors.Is(err, services.ErrAssetResolution) || !errors.Is(err, services.ErrMalformedInput) {
				t.Fatalf("expected resolution and malformed markers, got %v", err)
			}
			if !services.IsRecoverable(err) {
				t.Fatal("expected resolution failures to be recoverable")
			}
		})
	}
}

func TestGuessMIME(t *testing.T) {
	cases := map[string]string{
		"a.PNG":      "image/png",
		"b.mp3":      "audio/mpeg",
		"script.txt": "text/plain",
		"noext":      "application/octet-stream",
	}
	for name, want := range cases {
		if got := asset.GuessMIME(name); got != want {
			t.Fatalf("%s: got %q want %q", name, got, want)
		}
	}
}

func TestEncodeDataURIRoundTrip(t *testing.T) {
	payload := []byte{0, 1, 2, 250}
	uri := asset.EncodeDataURI("audio/wav", payload)
	ref, err := asset.Classify(uri, "ignored")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	inline := ref.(asset.InlineDataURI)
	if inline.MIMEType != "audio/wav" || !bytes.Equal(inline.Data, payload) {
		t.Fatalf("unexpected round trip: %+v", inline)
	}
}
