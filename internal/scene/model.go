package scene

import (
	"fmt"
	"strings"
)

// SpeakerRole identifies who voices a scene's dialogue.
type SpeakerRole string

const (
	Narrator   SpeakerRole = "narrator"
	CharacterA SpeakerRole = "character_a"
	CharacterB SpeakerRole = "character_b"
)

// ParseSpeakerRole accepts the canonical names plus common spellings.
func ParseSpeakerRole(value string) (SpeakerRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	switch normalized {
	case "", "narrator":
		return Narrator, nil
	case "character_a", "charactera", "a":
		return CharacterA, nil
	case "character_b", "characterb", "b":
		return CharacterB, nil
	default:
		return "", fmt.Errorf("unknown speaker role %q", value)
	}
}

// Scene is one unit of a generated script. Scenes are immutable once
// produced; ID is stable under reordering.
type Scene struct {
	ID           int         `json:"id"`
	Description  string      `json:"description"`
	Dialogue     string      `json:"dialogue"`
	SpeakerRole  SpeakerRole `json:"speaker_role"`
	ImagePrompt  string      `json:"image_prompt"`
	MotionPrompt string      `json:"motion_prompt"`
}

// HasDialogue reports whether the scene needs a voice clip.
func (s Scene) HasDialogue() bool {
	return strings.TrimSpace(s.Dialogue) != ""
}

// Idea is a candidate story the script phase can expand into scenes.
type Idea struct {
	Title   string `json:"title"`
	Logline string `json:"logline"`
}

// AssetKind distinguishes the two per-scene asset maps.
type AssetKind string

const (
	KindImage AssetKind = "image"
	KindVoice AssetKind = "voice"
)

// Valid reports whether k is a known asset kind.
func (k AssetKind) Valid() bool {
	return k == KindImage || k == KindVoice
}

// Status tracks one (scene, kind) generation.
type Status int

const (
	NotStarted Status = iota
	InFlight
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(value string) (Status, error) {
	for _, s := range []Status{NotStarted, InFlight, Succeeded, Failed} {
		if s.String() == value {
			return s, nil
		}
	}
	return NotStarted, fmt.Errorf("unknown status %q", value)
}

// Key addresses one entry of the status table.
type Key struct {
	SceneID int
	Kind    AssetKind
}

func (k Key) String() string {
	return fmt.Sprintf("scene %d/%s", k.SceneID, k.Kind)
}

// AssetMap maps scene id to an asset reference (data URI or URL).
type AssetMap map[int]string

// PlaybackState is the externally visible part of preview playback. When the
// sequence is empty IsPlaying is false and Cursor is 0.
type PlaybackState struct {
	Cursor    int
	IsPlaying bool
	// CurrentSource is the reference attached to the audio handle, if any.
	CurrentSource string
}
