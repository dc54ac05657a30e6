package llm

import (
	"context"
	"fmt"
	"strings"

	"storyforge/internal/scene"
	"storyforge/internal/services"
)

const (
	defaultSceneCount = 6
	maxSceneCount     = 24
)

// ScriptWriter turns a premise into story ideas and an idea into scenes.
type ScriptWriter struct {
	client     *Client
	sceneCount int
}

// NewScriptWriter wraps client. sceneCount <= 0 selects the default of six.
func NewScriptWriter(client *Client, sceneCount int) *ScriptWriter {
	if sceneCount <= 0 {
		sceneCount = defaultSceneCount
	}
	return &ScriptWriter{client: client, sceneCount: min(sceneCount, maxSceneCount)}
}

// Ideas asks the model for story pitches. Blank pitches are dropped; an
// answer with none left is malformed.
func (w *ScriptWriter) Ideas(ctx context.Context, premise string) ([]scene.Idea, error) {
	premise = strings.TrimSpace(premise)
	if premise == "" {
		return nil, services.Wrap(services.ErrInvalidParameter, "llm", "ideas", "premise required", nil)
	}
	content, err := w.client.CompleteJSON(ctx, IdeasPrompt, "Premise: "+premise)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "llm", "ideas", "completion failed", err)
	}
	var parsed struct {
		Ideas []scene.Idea `json:"ideas"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrMalformedInput, "llm", "ideas", "parse payload", err)
	}
	ideas := make([]scene.Idea, 0, len(parsed.Ideas))
	for _, idea := range parsed.Ideas {
		idea.Title = strings.TrimSpace(idea.Title)
		idea.Logline = strings.TrimSpace(idea.Logline)
		if idea.Title == "" && idea.Logline == "" {
			continue
		}
		ideas = append(ideas, idea)
	}
	if len(ideas) == 0 {
		return nil, services.Wrap(services.ErrMalformedInput, "llm", "ideas", "no ideas in response", nil)
	}
	return ideas, nil
}

// Script expands idea into scenes. Scene ids are renumbered 1..n in the order
// the model returned them so the sequence always has unique, stable ids.
func (w *ScriptWriter) Script(ctx context.Context, idea scene.Idea) ([]scene.Scene, error) {
	if strings.TrimSpace(idea.Title) == "" && strings.TrimSpace(idea.Logline) == "" {
		return nil, services.Wrap(services.ErrInvalidParameter, "llm", "script", "idea required", nil)
	}
	user := fmt.Sprintf("Title: %s\nLogline: %s\nWrite exactly %d scenes.",
		strings.TrimSpace(idea.Title), strings.TrimSpace(idea.Logline), w.sceneCount)
	content, err := w.client.CompleteJSON(ctx, ScriptPrompt, user)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "llm", "script", "completion failed", err)
	}
	return ParseScript(content)
}

type rawScene struct {
	Description  string `json:"description"`
	Dialogue     string `json:"dialogue"`
	SpeakerRole  string `json:"speaker_role"`
	ImagePrompt  string `json:"image_prompt"`
	MotionPrompt string `json:"motion_prompt"`
}

// ParseScript validates a script payload ({"scenes":[...]} or a bare array)
// into scenes. A scene without an image prompt or with an unknown speaker is
// rejected as malformed.
func ParseScript(content string) ([]scene.Scene, error) {
	var wrapped struct {
		Scenes []rawScene `json:"scenes"`
	}
	err := DecodeLLMJSON(content, &wrapped)
	raws := wrapped.Scenes
	if err != nil || len(raws) == 0 {
		var bare []rawScene
		if bareErr := DecodeLLMJSON(content, &bare); bareErr == nil {
			raws = bare
		} else if err != nil {
			return nil, services.Wrap(services.ErrMalformedInput, "llm", "parse script", "decode payload", err)
		}
	}
	if len(raws) == 0 {
		return nil, services.Wrap(services.ErrMalformedInput, "llm", "parse script", "no scenes in response", nil)
	}

	scenes := make([]scene.Scene, 0, len(raws))
	for i, raw := range raws {
		role, err := scene.ParseSpeakerRole(raw.SpeakerRole)
		if err != nil {
			return nil, services.Wrap(services.ErrMalformedInput, "llm", "parse script",
				fmt.Sprintf("scene %d", i+1), err)
		}
		if strings.TrimSpace(raw.ImagePrompt) == "" {
			return nil, services.Wrap(services.ErrMalformedInput, "llm", "parse script",
				fmt.Sprintf("scene %d has no image prompt", i+1), nil)
		}
		scenes = append(scenes, scene.Scene{
			ID:           i + 1,
			Description:  strings.TrimSpace(raw.Description),
			Dialogue:     strings.TrimSpace(raw.Dialogue),
			SpeakerRole:  role,
			ImagePrompt:  strings.TrimSpace(raw.ImagePrompt),
			MotionPrompt: strings.TrimSpace(raw.MotionPrompt),
		})
	}
	return scenes, nil
}
