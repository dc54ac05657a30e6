// Package audio holds the PCM16 and WAV helpers shared by generation,
// playback, archiving, and the music stream.
//
// EncodeWAV produces the canonical 44-byte RIFF/WAVE header followed by the
// untouched payload; InspectWAV reverses it for inspection. ClipDuration
// decodes a WAV or MP3 clip with beep to measure its natural length.
// Everything here is pure and synchronous.
package audio
