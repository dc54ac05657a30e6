package playback_test

import (
	"testing"
	"time"

	"storyforge/internal/asset"
	"storyforge/internal/audio"
	"storyforge/internal/playback"
	"storyforge/internal/scene"
)

func wavRef(t *testing.T, samples int) string {
	t.Helper()
	wav, err := audio.EncodeWAV(make([]byte, samples*2), 24000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return asset.EncodeDataURI("audio/wav", wav)
}

func TestInlineClipLength(t *testing.T) {
	got, err := playback.InlineClipLength(wavRef(t, 24000))
	if err != nil {
		t.Fatalf("InlineClipLength: %v", err)
	}
	if got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
	if _, err := playback.InlineClipLength("https://example.com/a.wav"); err == nil {
		t.Fatal("expected remote source to be rejected")
	}
}

func TestSimulatedPlayerDrivesDirectorToEnd(t *testing.T) {
	session := scene.NewSession()
	if err := session.SetScenes([]scene.Scene{{ID: 1, Dialogue: "Hi"}, {ID: 2}}); err != nil {
		t.Fatalf("SetScenes: %v", err)
	}
	// 2000 samples at 24 kHz.
	session.SetAsset(scene.KindVoice, 1, wavRef(t, 2000))
	clipLen := audio.PCMDuration(4000, 24000, 1)

	clock := &fakeClock{}
	d := playback.NewDirector(session, playback.NewSimulatedPlayer(clock, nil), playback.WithClock(clock))
	defer d.Close()

	d.TogglePlay()
	clock.Advance(clipLen - time.Millisecond)
	if snap := d.State(); snap.Cursor != 0 {
		t.Fatalf("clip ended early: %+v", snap)
	}
	clock.Advance(time.Millisecond)
	if snap := d.State(); snap.State != playback.Playing || snap.Cursor != 1 {
		t.Fatalf("expected scene 2 after clip end, got %+v", snap)
	}
	clock.Advance(playback.DefaultFallback)
	if snap := d.State(); snap.State != playback.Ended || snap.Cursor != 2 {
		t.Fatalf("expected Ended@2, got %+v", snap)
	}
}

func TestSimulatedHandleDetachCancelsCompletion(t *testing.T) {
	clock := &fakeClock{}
	player := playback.NewSimulatedPlayer(clock, func(string) (time.Duration, error) { return time.Second, nil })
	h, err := player.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ended := 0
	if err := h.Play(func() { ended++ }); err == nil {
		t.Fatal("expected error without a source")
	}
	if err := h.Attach("clip"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := h.Play(func() { ended++ }); err != nil {
		t.Fatalf("Play: %v", err)
	}
	h.Detach()
	clock.Advance(2 * time.Second)
	if ended != 0 {
		t.Fatal("detached clip must not report completion")
	}

	_ = h.Attach("clip")
	_ = h.Play(func() { ended++ })
	clock.Advance(time.Second)
	if ended != 1 {
		t.Fatalf("expected one completion, got %d", ended)
	}
	// Playing again after the end restarts the clip.
	_ = h.Play(func() { ended++ })
	clock.Advance(time.Second)
	if ended != 2 {
		t.Fatalf("expected restart to complete, got %d", ended)
	}
	_ = h.Close()
	if err := h.Attach("clip"); err == nil {
		t.Fatal("expected attach after close to fail")
	}
}
