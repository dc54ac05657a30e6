package scene

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Session owns the state of one production.
type Session struct {
	mu sync.RWMutex

	id         string
	scenes     []Scene
	images     AssetMap
	audio      AssetMap
	status     map[Key]Status
	lastErrors map[Key]error
	music      string
	thumbnails []string
	script     string
	playback   PlaybackState
}

// NewSession starts an empty session with a fresh id.
func NewSession() *Session {
	s := &Session{}
	s.resetLocked()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Reset discards every scene, asset, and status and assigns a new id.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.id = uuid.NewString()
	s.scenes = nil
	s.images = AssetMap{}
	s.audio = AssetMap{}
	s.status = map[Key]Status{}
	s.lastErrors = map[Key]error{}
	s.music = ""
	s.thumbnails = nil
	s.script = ""
	s.playback = PlaybackState{}
}

// SetScenes replaces the ordered sequence. Scene ids must be unique.
func (s *Session) SetScenes(scenes []Scene) error {
	seen := make(map[int]struct{}, len(scenes))
	for _, sc := range scenes {
		if _, dup := seen[sc.ID]; dup {
			return fmt.Errorf("duplicate scene id %d", sc.ID)
		}
		seen[sc.ID] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes = slices.Clone(scenes)
	return nil
}

// Scenes returns a copy of the ordered sequence.
func (s *Session) Scenes() []Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.scenes)
}

// Len returns the number of scenes.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scenes)
}

// SceneAt returns the scene at position i.
func (s *Session) SceneAt(i int) (Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.scenes) {
		return Scene{}, false
	}
	return s.scenes[i], true
}

// SceneByID looks a scene up by id.
func (s *Session) SceneByID(id int) (Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.scenes {
		if sc.ID == id {
			return sc, true
		}
	}
	return Scene{}, false
}

// IndexOf returns the position of the scene with the given id, or -1.
func (s *Session) IndexOf(id int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.IndexFunc(s.scenes, func(sc Scene) bool { return sc.ID == id })
}

// Move removes the scene at from and reinserts it at to, preserving the
// relative order of every other scene.
func (s *Session) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.scenes)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("move %d -> %d out of range for %d scenes", from, to, n)
	}
	if from == to {
		return nil
	}
	moved := s.scenes[from]
	s.scenes = slices.Delete(s.scenes, from, from+1)
	s.scenes = slices.Insert(s.scenes, to, moved)
	return nil
}

// Delete removes the scene at index and returns it, dropping its assets and
// status entries with it.
func (s *Session) Delete(index int) (Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.scenes) {
		return Scene{}, fmt.Errorf("delete %d out of range for %d scenes", index, len(s.scenes))
	}
	removed := s.scenes[index]
	s.scenes = slices.Delete(s.scenes, index, index+1)
	delete(s.images, removed.ID)
	delete(s.audio, removed.ID)
	for _, kind := range []AssetKind{KindImage, KindVoice} {
		key := Key{SceneID: removed.ID, Kind: kind}
		delete(s.status, key)
		delete(s.lastErrors, key)
	}
	return removed, nil
}

func (s *Session) assetMapLocked(kind AssetKind) AssetMap {
	if kind == KindVoice {
		return s.audio
	}
	return s.images
}

// Asset returns the reference stored for the scene, if any.
func (s *Session) Asset(kind AssetKind, sceneID int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.assetMapLocked(kind)[sceneID]
	return ref, ok && ref != ""
}

// SetAsset overwrites the reference for the scene.
func (s *Session) SetAsset(kind AssetKind, sceneID int, ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assetMapLocked(kind)[sceneID] = ref
}

// Assets returns a copy of one asset map.
func (s *Session) Assets(kind AssetKind) AssetMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.assetMapLocked(kind))
}

// Status returns the generation status of one (scene, kind) pair.
func (s *Session) Status(sceneID int, kind AssetKind) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status[Key{SceneID: sceneID, Kind: kind}]
}

// LastError returns the most recent failure recorded for the pair.
func (s *Session) LastError(sceneID int, kind AssetKind) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErrors[Key{SceneID: sceneID, Kind: kind}]
}

// SetStatus records a status transition. err is kept only for Failed.
func (s *Session) SetStatus(key Key, status Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[key] = status
	if status == Failed {
		s.lastErrors[key] = err
		return
	}
	delete(s.lastErrors, key)
}

// Statuses returns a copy of the status table.
func (s *Session) Statuses() map[Key]Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.status)
}

// SetBackgroundMusic stores the background music reference.
func (s *Session) SetBackgroundMusic(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.music = ref
}

// BackgroundMusic returns the background music reference.
func (s *Session) BackgroundMusic() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.music
}

// AddThumbnail appends a cover-art reference.
func (s *Session) AddThumbnail(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbnails = append(s.thumbnails, ref)
}

// Thumbnails returns the cover-art references in insertion order.
func (s *Session) Thumbnails() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.thumbnails)
}

// SetScript stores the raw script text.
func (s *Session) SetScript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = text
}

// Script returns the raw script text.
func (s *Session) Script() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.script
}

// SetPlayback publishes the preview state. Only the playback director calls it.
func (s *Session) SetPlayback(state PlaybackState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playback = state
}

// Playback returns the last published preview state.
func (s *Session) Playback() PlaybackState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playback
}
