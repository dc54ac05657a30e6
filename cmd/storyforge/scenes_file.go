package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"storyforge/internal/fileutil"
	"storyforge/internal/scene"
	"storyforge/internal/services"
)

type scenesFile struct {
	Scenes []scene.Scene `json:"scenes"`
}

// loadScenes reads a scene list written by produce or by hand. Both a bare
// array and {"scenes": [...]} are accepted. Speaker roles are normalized and
// ids are kept as given.
func loadScenes(path string) ([]scene.Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenes: %w", err)
	}
	var scenes []scene.Scene
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &scenes)
	} else {
		var wrapped scenesFile
		err = json.Unmarshal(trimmed, &wrapped)
		scenes = wrapped.Scenes
	}
	if err != nil {
		return nil, services.Wrap(services.ErrMalformedInput, "cli", "load scenes", path, err)
	}
	if len(scenes) == 0 {
		return nil, services.Wrap(services.ErrMalformedInput, "cli", "load scenes", path+" has no scenes", nil)
	}
	for i := range scenes {
		role, err := scene.ParseSpeakerRole(string(scenes[i].SpeakerRole))
		if err != nil {
			return nil, services.Wrap(services.ErrMalformedInput, "cli", "load scenes",
				fmt.Sprintf("scene %d", scenes[i].ID), err)
		}
		scenes[i].SpeakerRole = role
	}
	return scenes, nil
}

func saveScenes(path string, scenes []scene.Scene) error {
	data, err := json.MarshalIndent(scenesFile{Scenes: scenes}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scenes: %w", err)
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}
