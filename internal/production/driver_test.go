package production_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"storyforge/internal/audio"
	"storyforge/internal/generation"
	"storyforge/internal/production"
	"storyforge/internal/scene"
	"storyforge/internal/services"
	"storyforge/internal/testsupport"
)

type stubIdeas struct {
	ideas []scene.Idea
	err   error
	got   string
}

func (s *stubIdeas) Ideas(_ context.Context, premise string) ([]scene.Idea, error) {
	s.got = premise
	return s.ideas, s.err
}

type stubScripts struct {
	scenes []scene.Scene
	err    error
	got    scene.Idea
}

func (s *stubScripts) Script(_ context.Context, idea scene.Idea) ([]scene.Scene, error) {
	s.got = idea
	return s.scenes, s.err
}

type stubMusic struct {
	data     []byte
	err      error
	prompt   string
	duration time.Duration
}

func (s *stubMusic) Record(_ context.Context, prompt string, d time.Duration) ([]byte, error) {
	s.prompt = prompt
	s.duration = d
	return s.data, s.err
}

type recordingClient struct {
	mu   sync.Mutex
	reqs []generation.Request
	fail map[scene.Key]bool
}

func (c *recordingClient) Generate(_ context.Context, req generation.Request) generation.Result {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()
	if c.fail[req.Key()] {
		return generation.Failure{Reason: "backend refused"}
	}
	if req.Kind == scene.KindVoice {
		return generation.Success{Data: testsupport.PCMTone(2000, 24000), MIMEType: "audio/L16;rate=24000"}
	}
	return generation.Success{Data: testsupport.PNGStub(req.Prompt), MIMEType: "image/png"}
}

func threeScenes() []scene.Scene {
	return []scene.Scene{
		{ID: 1, Description: "Dawn", Dialogue: "It begins.", SpeakerRole: scene.Narrator, ImagePrompt: "sunrise"},
		{ID: 2, Description: "Silence", ImagePrompt: "empty road"},
		{ID: 3, Description: "Dusk", Dialogue: "It ends.", SpeakerRole: scene.CharacterA, ImagePrompt: "sunset"},
	}
}

func TestRunWalksEveryPhase(t *testing.T) {
	ideas := &stubIdeas{ideas: []scene.Idea{{Title: "Road", Logline: "A long walk."}, {Title: "Other"}}}
	scripts := &stubScripts{scenes: threeScenes()}
	client := &recordingClient{}
	var phases []production.Phase

	driver := production.NewDriver(client,
		production.WithIdeaSource(ideas),
		production.WithScriptSource(scripts),
		production.WithPhaseObserver(func(p production.Phase) { phases = append(phases, p) }),
	)
	session := scene.NewSession()
	out, err := driver.Run(context.Background(), session, production.Request{Premise: "walking"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []production.Phase{production.AwaitingIdeas, production.AwaitingScript, production.Producing, production.Ready}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v", phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phase %d = %v, want %v", i, phases[i], want[i])
		}
	}
	if out.Phase != production.Ready || out.Idea.Title != "Road" || len(out.Ideas) != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if ideas.got != "walking" || scripts.got.Title != "Road" {
		t.Fatalf("sources saw premise=%q idea=%+v", ideas.got, scripts.got)
	}
	// Three images plus two voices; the silent scene has no voice request.
	if out.Batch.Succeeded != 5 || out.Batch.Failed != 0 {
		t.Fatalf("unexpected batch %+v", out.Batch)
	}
	if _, ok := session.Asset(scene.KindVoice, 2); ok {
		t.Fatal("silent scene should not have a voice clip")
	}
	voice, ok := session.Asset(scene.KindVoice, 1)
	if !ok || !strings.HasPrefix(voice, "data:audio/wav;base64,") {
		t.Fatalf("voice clip not stored as wav: %q", voice)
	}
	if script := session.Script(); !strings.HasPrefix(script, "Road\nA long walk.\n") || !strings.Contains(script, "Scene 3") {
		t.Fatalf("unexpected script %q", script)
	}
}

func TestRunWithScenesSkipsToProducing(t *testing.T) {
	client := &recordingClient{fail: map[scene.Key]bool{{SceneID: 3, Kind: scene.KindImage}: true}}
	var phases []production.Phase
	driver := production.NewDriver(client,
		production.WithPhaseObserver(func(p production.Phase) { phases = append(phases, p) }))

	session := scene.NewSession()
	out, err := driver.Run(context.Background(), session, production.Request{Scenes: threeScenes()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(phases) != 2 || phases[0] != production.Producing || phases[1] != production.Ready {
		t.Fatalf("phases = %v", phases)
	}
	if out.Batch.Succeeded != 4 || out.Batch.Failed != 1 {
		t.Fatalf("unexpected batch %+v", out.Batch)
	}
	if session.Status(3, scene.KindImage) != scene.Failed {
		t.Fatalf("scene 3 image should be failed, got %v", session.Status(3, scene.KindImage))
	}
	if session.Script() != "" {
		t.Fatal("no script text expected without an idea")
	}
}

func TestRunIdeaFailureStopsBeforeScript(t *testing.T) {
	scripts := &stubScripts{scenes: threeScenes()}
	driver := production.NewDriver(&recordingClient{},
		production.WithIdeaSource(&stubIdeas{err: services.ErrMalformedInput}),
		production.WithScriptSource(scripts),
	)
	out, err := driver.Run(context.Background(), scene.NewSession(), production.Request{Premise: "x"})
	if !errors.Is(err, services.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
	if out.Phase != production.AwaitingIdeas {
		t.Fatalf("expected to stop in AwaitingIdeas, got %v", out.Phase)
	}
	if scripts.got.Title != "" {
		t.Fatal("script source should not be called")
	}
}

func TestRunMissingSourcesIsConfigurationError(t *testing.T) {
	driver := production.NewDriver(&recordingClient{})
	_, err := driver.Run(context.Background(), scene.NewSession(), production.Request{Premise: "x"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	idea := scene.Idea{Title: "T"}
	out, err := driver.Run(context.Background(), scene.NewSession(), production.Request{Idea: &idea})
	if !errors.Is(err, services.ErrConfiguration) || out.Phase != production.AwaitingScript {
		t.Fatalf("expected configuration error in script phase, got %v (%v)", err, out.Phase)
	}
}

func TestRunEmptyScriptIsMalformed(t *testing.T) {
	idea := scene.Idea{Title: "T"}
	driver := production.NewDriver(&recordingClient{}, production.WithScriptSource(&stubScripts{}))
	_, err := driver.Run(context.Background(), scene.NewSession(), production.Request{Idea: &idea})
	if !errors.Is(err, services.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
}

func TestRunRecordsMusicAndThumbnails(t *testing.T) {
	wav, err := audio.EncodeWAV(testsupport.PCMTone(100, 44100), 44100, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	music := &stubMusic{data: wav}
	client := &recordingClient{}
	driver := production.NewDriver(client,
		production.WithMusic(music, 5*time.Second),
		production.WithThumbnails(2),
	)
	session := scene.NewSession()
	out, err := driver.Run(context.Background(), session, production.Request{Scenes: threeScenes(), MusicPrompt: "calm piano"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Music || music.prompt != "calm piano" || music.duration != 5*time.Second {
		t.Fatalf("music not recorded: %+v %+v", out, music)
	}
	if !strings.HasPrefix(session.BackgroundMusic(), "data:audio/wav;base64,") {
		t.Fatalf("unexpected background music ref %q", session.BackgroundMusic())
	}
	if out.Thumbnails != 2 || len(session.Thumbnails()) != 2 {
		t.Fatalf("expected 2 thumbnails, got %d/%d", out.Thumbnails, len(session.Thumbnails()))
	}
	// Thumbnails never land in the per-scene image map.
	if len(session.Assets(scene.KindImage)) != 3 {
		t.Fatalf("image map polluted: %d entries", len(session.Assets(scene.KindImage)))
	}
}

func TestRunMusicDegradesWithoutFailing(t *testing.T) {
	cases := []struct {
		name    string
		music   *stubMusic
		wantErr bool
	}{
		{"empty", &stubMusic{}, false},
		{"error", &stubMusic{err: services.ErrStreamingSession}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			driver := production.NewDriver(&recordingClient{}, production.WithMusic(tc.music, time.Second))
			session := scene.NewSession()
			out, err := driver.Run(context.Background(), session, production.Request{Scenes: threeScenes(), MusicPrompt: "x"})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out.Music || session.BackgroundMusic() != "" {
				t.Fatal("no music expected")
			}
			if (out.MusicErr != nil) != tc.wantErr {
				t.Fatalf("MusicErr = %v", out.MusicErr)
			}
		})
	}
}

func TestRequestsMapsVoices(t *testing.T) {
	reqs := production.Requests(threeScenes(), map[scene.SpeakerRole]string{scene.CharacterA: "Puck"})
	if len(reqs) != 5 {
		t.Fatalf("expected 5 requests, got %d", len(reqs))
	}
	var voices []string
	for _, req := range reqs {
		if req.Kind == scene.KindVoice {
			voices = append(voices, req.VoiceID)
		}
	}
	if len(voices) != 2 || voices[0] != "" || voices[1] != "Puck" {
		t.Fatalf("unexpected voices %q", voices)
	}
}

func TestPhaseString(t *testing.T) {
	if production.Producing.String() != "producing" || production.Phase(9).String() != "phase(9)" {
		t.Fatal("unexpected phase names")
	}
}
