// Package musicstream records background music from a streaming generation
// endpoint over a websocket.
//
// Record opens a session, sends the setup, weighted prompt, generation config
// and play command, then accumulates base64 PCM16 chunks in arrival order for
// a fixed wall-clock window. The concatenated audio is wrapped as 44.1 kHz
// mono WAV. A session that fails before the window closes yields an empty
// result rather than an error, so callers can treat "no music" as normal.
package musicstream
