// Package playback drives the timed multi-scene preview.
//
// A Director walks a scene.Session's ordered sequence. A scene with a voice
// clip advances exactly when the clip reports its natural end; a scene
// without one advances after a fixed fallback duration. At most one advance
// trigger is pending at a time. Every trigger carries an epoch token, so a
// late callback from an earlier scene is ignored.
//
// The Director exclusively owns one reusable audio Handle. Each new scene
// pauses and detaches the previous source before attaching its own, and
// Stop releases the handle's source and cancels any timer.
package playback
