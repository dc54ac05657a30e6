package audio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"storyforge/internal/services"
)

// Audio container names returned by SniffAudioFormat.
const (
	FormatWAV     = "wav"
	FormatMP3     = "mp3"
	FormatUnknown = ""
)

// SniffAudioFormat identifies a clip by its leading signature.
func SniffAudioFormat(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// ExtensionFor returns the archive file extension for a clip, defaulting to
// wav when the signature is not recognised.
func ExtensionFor(data []byte) string {
	if SniffAudioFormat(data) == FormatMP3 {
		return FormatMP3
	}
	return FormatWAV
}

// ClipDuration measures the natural length of a WAV or MP3 clip.
func ClipDuration(data []byte) (time.Duration, error) {
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch SniffAudioFormat(data) {
	case FormatWAV:
		stream, format, err = wav.Decode(bytes.NewReader(data))
	case FormatMP3:
		stream, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	default:
		return 0, services.Wrap(services.ErrMalformedInput, "audio", "clip duration", "unrecognised audio signature", nil)
	}
	if err != nil {
		return 0, services.Wrap(services.ErrMalformedInput, "audio", "clip duration",
			fmt.Sprintf("decode %s", SniffAudioFormat(data)), err)
	}
	defer stream.Close()
	return format.SampleRate.D(stream.Len()), nil
}
