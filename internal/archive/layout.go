package archive

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyforge/internal/asset"
	"storyforge/internal/audio"
	"storyforge/internal/scene"
)

const (
	ScriptFile      = "script.txt"
	imagesDir       = "images"
	audiosDir       = "audios"
	thumbnailsDir   = "thumbnails"
	backgroundMusic = "background_music"
)

// EntriesFromSession lays the session out as a bundle: script.txt, then
// images and audio per scene by ascending scene id, then thumbnails, then the
// background music track.
func EntriesFromSession(session *scene.Session) []NamedAsset {
	scenes := session.Scenes()
	slices.SortStableFunc(scenes, func(a, b scene.Scene) int { return a.ID - b.ID })

	entries := make([]NamedAsset, 0, 2*len(scenes)+4)
	if script := RenderScript(session); script != "" {
		entries = append(entries, NamedAsset{Filename: ScriptFile, Text: script})
	}

	images := session.Assets(scene.KindImage)
	for _, sc := range scenes {
		if ref := images[sc.ID]; ref != "" {
			entries = append(entries, NamedAsset{
				Filename:  fmt.Sprintf("%s/Scene_%d.png", imagesDir, sc.ID),
				Reference: ref,
			})
		}
	}

	voices := session.Assets(scene.KindVoice)
	for _, sc := range scenes {
		if ref := voices[sc.ID]; ref != "" {
			entries = append(entries, NamedAsset{
				Filename:  fmt.Sprintf("%s/Scene_%d.%s", audiosDir, sc.ID, audioExtension(ref)),
				Reference: ref,
			})
		}
	}

	for i, ref := range session.Thumbnails() {
		if ref == "" {
			continue
		}
		entries = append(entries, NamedAsset{
			Filename:  fmt.Sprintf("%s/Thumbnail_%d.png", thumbnailsDir, i+1),
			Reference: ref,
		})
	}

	if ref := session.BackgroundMusic(); ref != "" {
		entries = append(entries, NamedAsset{
			Filename:  backgroundMusic + "." + audioExtension(ref),
			Reference: ref,
		})
	}
	return entries
}

// audioExtension picks wav or mp3 from the clip signature when the reference
// is inline, or from the URL path otherwise.
func audioExtension(ref string) string {
	classified, err := asset.Classify(ref, "clip.wav")
	if err != nil {
		return audio.FormatWAV
	}
	switch v := classified.(type) {
	case asset.InlineDataURI:
		return audio.ExtensionFor(v.Data)
	case asset.RawBase64:
		return audio.ExtensionFor(v.Data)
	case asset.RemoteURL:
		if u, err := url.Parse(v.URL); err == nil && strings.EqualFold(path.Ext(u.Path), ".mp3") {
			return audio.FormatMP3
		}
	}
	return audio.FormatWAV
}

// RenderScript returns the session's script text, or a transcript built from
// its scenes when no script text was stored.
func RenderScript(session *scene.Session) string {
	if text := strings.TrimSpace(session.Script()); text != "" {
		return text + "\n"
	}
	return Transcript(session.Scenes())
}

// Transcript renders scenes as "Scene N", the description and a labelled
// dialogue line, with a blank line between scenes.
func Transcript(scenes []scene.Scene) string {
	title := cases.Title(language.English)
	var b strings.Builder
	for i, sc := range scenes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Scene %d\n", sc.ID)
		if desc := strings.TrimSpace(sc.Description); desc != "" {
			fmt.Fprintf(&b, "%s\n", desc)
		}
		if sc.HasDialogue() {
			fmt.Fprintf(&b, "%s: %s\n", speakerLabel(title, sc.SpeakerRole), strings.TrimSpace(sc.Dialogue))
		}
	}
	return b.String()
}

func speakerLabel(title cases.Caser, role scene.SpeakerRole) string {
	if role == "" {
		role = scene.Narrator
	}
	return title.String(strings.ReplaceAll(string(role), "_", " "))
}
