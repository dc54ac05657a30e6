// Package generation fans scene asset requests out to a generation backend
// and folds the results back into a scene.Session.
//
// GenerateBatch dispatches every request concurrently and isolates failures:
// one scene's error never cancels its siblings, and the call itself never
// fails. All status and asset-map writes happen on a single fan-in goroutine,
// so each (scene, kind) entry has exactly one writer. Voice payloads that
// arrive as raw PCM16 are wrapped in a WAV container before they are stored.
package generation
