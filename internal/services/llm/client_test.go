package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"storyforge/internal/scene"
	"storyforge/internal/services"
)

func completionHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": content}},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]Option{WithSleeper(func(time.Duration) {})}, opts...)
	return NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"}, opts...)
}

func TestClientHealthCheck(t *testing.T) {
	var auth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		completionHandler(t, `{"ok":true}`)(w, r)
	}))
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if auth != "Bearer test" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	client := newTestClient(t, completionHandler(t, "```json\n{\"ok\":true}\n```"))
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "upstream", http.StatusBadGateway)
			return
		}
		completionHandler(t, `{"ok":true}`)(w, r)
	}))
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `{"ok":true}` || calls != 2 {
		t.Fatalf("content=%q calls=%d", content, calls)
	}
}

func TestCompleteJSONRetriesEmptyContent(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"length"}]}`))
	}), WithRetryMaxAttempts(2))
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil || !strings.Contains(err.Error(), "finish_reason") {
		t.Fatalf("expected empty content error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestCompleteJSONStopsOnClientError(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestCompleteJSONRequiresInputs(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected api key error")
	}
	client = NewClient(Config{APIKey: "k"})
	if _, err := client.CompleteJSON(context.Background(), " ", "user"); err == nil {
		t.Fatal("expected system prompt error")
	}
}

func TestDecodeLLMJSONHandlesProse(t *testing.T) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON("Sure! Here you go: {\"ok\": true} hope that helps", &out); err != nil || !out.OK {
		t.Fatalf("decode prose: ok=%v err=%v", out.OK, err)
	}
	if err := DecodeLLMJSON("   ", &out); err == nil {
		t.Fatal("expected empty payload error")
	}
}

func TestScriptWriterIdeas(t *testing.T) {
	var userPrompt string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		userPrompt = req.Messages[1].Content
		completionHandler(t, `{"ideas":[{"title":"The Last Lamp","logline":"A keeper guards the final light."},{"title":" ","logline":""}]}`)(w, r)
	}))
	writer := NewScriptWriter(client, 0)
	ideas, err := writer.Ideas(context.Background(), "lighthouses")
	if err != nil {
		t.Fatalf("Ideas: %v", err)
	}
	if len(ideas) != 1 || ideas[0].Title != "The Last Lamp" {
		t.Fatalf("unexpected ideas %+v", ideas)
	}
	if !strings.Contains(userPrompt, "lighthouses") {
		t.Fatalf("premise missing from prompt: %q", userPrompt)
	}
	if _, err := writer.Ideas(context.Background(), ""); !errors.Is(err, services.ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}

func TestScriptWriterScript(t *testing.T) {
	var userPrompt string
	script := `{"scenes":[
		{"id":7,"description":"Storm","dialogue":"Hold fast.","speaker_role":"Character A","image_prompt":"waves","motion_prompt":"pan"},
		{"id":7,"description":"Calm","dialogue":"","speaker_role":"","image_prompt":"sunrise"}
	]}`
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		userPrompt = req.Messages[1].Content
		completionHandler(t, script)(w, r)
	}))
	writer := NewScriptWriter(client, 2)
	scenes, err := writer.Script(context.Background(), scene.Idea{Title: "Storm", Logline: "A keeper and a storm."})
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if len(scenes) != 2 || scenes[0].ID != 1 || scenes[1].ID != 2 {
		t.Fatalf("expected renumbered ids, got %+v", scenes)
	}
	if scenes[0].SpeakerRole != scene.CharacterA || scenes[1].SpeakerRole != scene.Narrator {
		t.Fatalf("unexpected roles %q %q", scenes[0].SpeakerRole, scenes[1].SpeakerRole)
	}
	if scenes[1].HasDialogue() {
		t.Fatal("silent scene should have no dialogue")
	}
	if !strings.Contains(userPrompt, "exactly 2 scenes") {
		t.Fatalf("scene count missing from prompt: %q", userPrompt)
	}
}

func TestParseScript(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"wrapped", `{"scenes":[{"image_prompt":"a"}]}`, 1, false},
		{"bare array", `[{"image_prompt":"a"},{"image_prompt":"b"}]`, 2, false},
		{"fenced", "```json\n{\"scenes\":[{\"image_prompt\":\"a\"}]}\n```", 1, false},
		{"empty scenes", `{"scenes":[]}`, 0, true},
		{"missing image prompt", `{"scenes":[{"description":"x"}]}`, 0, true},
		{"unknown speaker", `{"scenes":[{"image_prompt":"a","speaker_role":"chorus"}]}`, 0, true},
		{"not json", `the model refused`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scenes, err := ParseScript(tc.content)
			if tc.wantErr {
				if !errors.Is(err, services.ErrMalformedInput) {
					t.Fatalf("expected malformed input, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScript: %v", err)
			}
			if len(scenes) != tc.want {
				t.Fatalf("expected %d scenes, got %d", tc.want, len(scenes))
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("5"); !ok || d != 5*time.Second {
		t.Fatalf("seconds: %v %v", d, ok)
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if d, ok := parseRetryAfter(future); !ok || d <= 0 {
		t.Fatalf("http date: %v %v", d, ok)
	}
	if _, ok := parseRetryAfter(""); ok {
		t.Fatal("empty accepted")
	}
}
