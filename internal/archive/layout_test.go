package archive_test

import (
	"strings"
	"testing"

	"storyforge/internal/archive"
	"storyforge/internal/asset"
	"storyforge/internal/audio"
	"storyforge/internal/scene"
)

func TestEntriesFromSessionLayout(t *testing.T) {
	session := scene.NewSession()
	if err := session.SetScenes([]scene.Scene{
		{ID: 3, Dialogue: "Later", SpeakerRole: scene.CharacterB},
		{ID: 1, Dialogue: "Hi", SpeakerRole: scene.CharacterA, Description: "A quiet street"},
		{ID: 2},
	}); err != nil {
		t.Fatalf("SetScenes: %v", err)
	}
	wav, _ := audio.EncodeWAV(make([]byte, 8), 24000, 1)
	session.SetAsset(scene.KindImage, 1, asset.EncodeDataURI("image/png", []byte("i1")))
	session.SetAsset(scene.KindImage, 3, "https://cdn.example/3.png")
	session.SetAsset(scene.KindVoice, 1, asset.EncodeDataURI("audio/wav", wav))
	session.SetAsset(scene.KindVoice, 3, asset.EncodeDataURI("audio/mpeg", []byte("ID3\x04rest")))
	session.AddThumbnail(asset.EncodeDataURI("image/png", []byte("t")))
	session.SetBackgroundMusic("https://cdn.example/track.mp3?sig=1")

	entries := archive.EntriesFromSession(session)
	var names []string
	for _, e := range entries {
		names = append(names, e.Filename)
	}
	want := []string{
		"script.txt",
		"images/Scene_1.png",
		"images/Scene_3.png",
		"audios/Scene_1.wav",
		"audios/Scene_3.mp3",
		"thumbnails/Thumbnail_1.png",
		"background_music.mp3",
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected layout:\n got %v\nwant %v", names, want)
	}
	if !entries[0].IsText() {
		t.Fatal("expected script entry to be inline text")
	}
}

func TestRenderScriptTitleCasesSpeakers(t *testing.T) {
	session := scene.NewSession()
	_ = session.SetScenes([]scene.Scene{
		{ID: 1, Dialogue: "Hi", SpeakerRole: scene.CharacterA},
		{ID: 2, Dialogue: "Once upon a time"},
		{ID: 3, Description: "Silence"},
	})
	script := archive.RenderScript(session)
	for _, want := range []string{"Scene 1\nCharacter A: Hi\n", "Narrator: Once upon a time", "Scene 3\nSilence\n"} {
		if !strings.Contains(script, want) {
			t.Fatalf("script missing %q:\n%s", want, script)
		}
	}

	session.SetScript("  Stored script  ")
	if got := archive.RenderScript(session); got != "Stored script\n" {
		t.Fatalf("expected stored script, got %q", got)
	}
}

func TestEntriesFromSessionSkipsDeletedScenes(t *testing.T) {
	session := scene.NewSession()
	if err := session.SetScenes([]scene.Scene{{ID: 1}, {ID: 2}}); err != nil {
		t.Fatalf("SetScenes: %v", err)
	}
	session.SetAsset(scene.KindImage, 1, asset.EncodeDataURI("image/png", []byte("i1")))
	session.SetAsset(scene.KindImage, 2, asset.EncodeDataURI("image/png", []byte("i2")))
	if _, err := session.Delete(0); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, e := range archive.EntriesFromSession(session) {
		if e.Filename == "images/Scene_1.png" {
			t.Fatal("deleted scene must not be archived")
		}
	}
}
