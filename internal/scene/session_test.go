package scene_test

import (
	"errors"
	"slices"
	"testing"

	"storyforge/internal/scene"
)

func seed(t *testing.T, ids ...int) *scene.Session {
	t.Helper()
	s := scene.NewSession()
	scenes := make([]scene.Scene, 0, len(ids))
	for _, id := range ids {
		scenes = append(scenes, scene.Scene{ID: id})
	}
	if err := s.SetScenes(scenes); err != nil {
		t.Fatalf("SetScenes: %v", err)
	}
	return s
}

func ids(s *scene.Session) []int {
	var out []int
	for _, sc := range s.Scenes() {
		out = append(out, sc.ID)
	}
	return out
}

func TestMovePreservesMultiset(t *testing.T) {
	original := []int{10, 20, 30, 40, 50}
	for from := range original {
		for to := range original {
			s := seed(t, original...)
			if err := s.Move(from, to); err != nil {
				t.Fatalf("Move(%d,%d): %v", from, to, err)
			}
			got := ids(s)
			if got[to] != original[from] {
				t.Fatalf("Move(%d,%d): moved id landed at wrong index: %v", from, to, got)
			}
			sorted := slices.Clone(got)
			slices.Sort(sorted)
			if !slices.Equal(sorted, original) {
				t.Fatalf("Move(%d,%d): multiset changed: %v", from, to, got)
			}
			rest := slices.DeleteFunc(slices.Clone(got), func(id int) bool { return id == original[from] })
			wantRest := slices.DeleteFunc(slices.Clone(original), func(id int) bool { return id == original[from] })
			if !slices.Equal(rest, wantRest) {
				t.Fatalf("Move(%d,%d): relative order changed: %v", from, to, got)
			}
		}
	}
}

func TestMoveRejectsOutOfRange(t *testing.T) {
	s := seed(t, 1, 2)
	if err := s.Move(0, 2); err == nil {
		t.Fatal("expected range error")
	}
}

func TestDeleteDropsSceneAssets(t *testing.T) {
	s := seed(t, 1, 2, 3)
	s.SetAsset(scene.KindImage, 2, "data:image/png;base64,AA==")
	s.SetAsset(scene.KindImage, 3, "data:image/png;base64,AQ==")
	s.SetStatus(scene.Key{SceneID: 2, Kind: scene.KindVoice}, scene.Failed, errors.New("boom"))
	removed, err := s.Delete(1)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed.ID != 2 {
		t.Fatalf("removed wrong scene: %d", removed.ID)
	}
	if !slices.Equal(ids(s), []int{1, 3}) {
		t.Fatalf("unexpected order: %v", ids(s))
	}
	if _, ok := s.Asset(scene.KindImage, 2); ok {
		t.Fatal("expected deleted scene's image removed")
	}
	if s.Status(2, scene.KindVoice) != scene.NotStarted {
		t.Fatal("expected deleted scene's status removed")
	}
	if _, ok := s.Asset(scene.KindImage, 3); !ok {
		t.Fatal("expected other scenes' assets untouched")
	}
}

func TestSetScenesRejectsDuplicateIDs(t *testing.T) {
	s := scene.NewSession()
	if err := s.SetScenes([]scene.Scene{{ID: 1}, {ID: 1}}); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestStatusTracksLastError(t *testing.T) {
	s := seed(t, 1)
	key := scene.Key{SceneID: 1, Kind: scene.KindVoice}
	if s.Status(1, scene.KindVoice) != scene.NotStarted {
		t.Fatal("expected NotStarted default")
	}
	boom := errors.New("boom")
	s.SetStatus(key, scene.Failed, boom)
	if s.Status(1, scene.KindVoice) != scene.Failed || !errors.Is(s.LastError(1, scene.KindVoice), boom) {
		t.Fatal("expected failure to be recorded")
	}
	s.SetStatus(key, scene.Succeeded, nil)
	if s.LastError(1, scene.KindVoice) != nil {
		t.Fatal("expected error cleared on success")
	}
}

func TestResetDiscardsEverything(t *testing.T) {
	s := seed(t, 1)
	firstID := s.ID()
	s.SetAsset(scene.KindVoice, 1, "ref")
	s.SetBackgroundMusic("music")
	s.AddThumbnail("thumb")
	s.SetScript("script")
	s.Reset()

	if s.ID() == firstID {
		t.Fatal("expected a new session id")
	}
	if s.Len() != 0 || len(s.Assets(scene.KindVoice)) != 0 || s.BackgroundMusic() != "" ||
		len(s.Thumbnails()) != 0 || s.Script() != "" {
		t.Fatal("expected reset to clear session state")
	}
}

func TestAssetsReturnsCopy(t *testing.T) {
	s := seed(t, 1)
	s.SetAsset(scene.KindImage, 1, "a")
	m := s.Assets(scene.KindImage)
	m[1] = "mutated"
	if ref, _ := s.Asset(scene.KindImage, 1); ref != "a" {
		t.Fatalf("session map was aliased: %q", ref)
	}
}

func TestParseSpeakerRole(t *testing.T) {
	cases := map[string]scene.SpeakerRole{
		"":            scene.Narrator,
		"Narrator":    scene.Narrator,
		"Character A": scene.CharacterA,
		"character-b": scene.CharacterB,
	}
	for in, want := range cases {
		got, err := scene.ParseSpeakerRole(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q err %v", in, got, err)
		}
	}
	if _, err := scene.ParseSpeakerRole("villain"); err == nil {
		t.Fatal("expected unknown role error")
	}
}
