package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"storyforge/internal/services"
)

const (
	// HeaderSize is the length of the canonical RIFF/WAVE header.
	HeaderSize = 44
	// BitsPerSample is fixed; every clip in the pipeline is PCM16.
	BitsPerSample = 16

	bytesPerSample = BitsPerSample / 8
	fmtChunkSize   = 16
	formatPCM      = 1
)

// WavDescriptor describes the encoding parameters of a PCM16 WAV clip.
type WavDescriptor struct {
	SampleRateHz  int
	BitsPerSample int
	NumChannels   int
	PCMByteLength int
}

// Duration returns the playing time of the described clip.
func (d WavDescriptor) Duration() time.Duration {
	return PCMDuration(d.PCMByteLength, d.SampleRateHz, d.NumChannels)
}

// EncodeWAV wraps raw little-endian PCM16 samples in a WAV container. A zero
// length payload yields the header alone. numChannels <= 0 means mono.
func EncodeWAV(pcm []byte, sampleRateHz, numChannels int) ([]byte, error) {
	if sampleRateHz <= 0 {
		return nil, services.Wrap(services.ErrInvalidParameter, "audio", "encode wav",
			fmt.Sprintf("sample rate must be positive, got %d", sampleRateHz), nil)
	}
	if numChannels <= 0 {
		numChannels = 1
	}
	dataLength := len(pcm)
	blockAlign := numChannels * bytesPerSample
	byteRate := sampleRateHz * blockAlign

	out := make([]byte, HeaderSize+dataLength)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataLength))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(out[20:22], formatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(numChannels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRateHz))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], BitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataLength))
	copy(out[HeaderSize:], pcm)
	return out, nil
}

// DecodeRawPCMChunk decodes one base64 PCM chunk as delivered by the
// generation backend or the music stream.
func DecodeRawPCMChunk(b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, services.Wrap(services.ErrMalformedInput, "audio", "decode pcm chunk", "invalid base64", err)
	}
	return data, nil
}

// InspectWAV parses a canonical WAV header. Only uncompressed PCM16 clips with
// the fmt chunk immediately followed by the data chunk are accepted.
func InspectWAV(data []byte) (WavDescriptor, error) {
	if len(data) < HeaderSize {
		return WavDescriptor{}, malformedWAV(fmt.Sprintf("need %d header bytes, got %d", HeaderSize, len(data)))
	}
	switch {
	case string(data[0:4]) != "RIFF":
		return WavDescriptor{}, malformedWAV("missing RIFF marker")
	case string(data[8:12]) != "WAVE":
		return WavDescriptor{}, malformedWAV("missing WAVE marker")
	case string(data[12:16]) != "fmt ":
		return WavDescriptor{}, malformedWAV("missing fmt chunk")
	case string(data[36:40]) != "data":
		return WavDescriptor{}, malformedWAV("missing data chunk")
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != formatPCM {
		return WavDescriptor{}, malformedWAV(fmt.Sprintf("unsupported audio format %d", format))
	}
	desc := WavDescriptor{
		NumChannels:   int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRateHz:  int(binary.LittleEndian.Uint32(data[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(data[34:36])),
		PCMByteLength: int(binary.LittleEndian.Uint32(data[40:44])),
	}
	if desc.BitsPerSample != BitsPerSample {
		return WavDescriptor{}, malformedWAV(fmt.Sprintf("unsupported bits per sample %d", desc.BitsPerSample))
	}
	if desc.PCMByteLength > len(data)-HeaderSize {
		return WavDescriptor{}, malformedWAV("data chunk truncated")
	}
	return desc, nil
}

// PCMPayload returns the sample bytes of a canonical WAV clip.
func PCMPayload(data []byte) ([]byte, error) {
	desc, err := InspectWAV(data)
	if err != nil {
		return nil, err
	}
	return data[HeaderSize : HeaderSize+desc.PCMByteLength], nil
}

// PCMDuration converts a PCM16 byte length into playing time.
func PCMDuration(byteLen, sampleRateHz, numChannels int) time.Duration {
	if byteLen <= 0 || sampleRateHz <= 0 {
		return 0
	}
	if numChannels <= 0 {
		numChannels = 1
	}
	frames := int64(byteLen / (numChannels * bytesPerSample))
	return time.Duration(frames) * time.Second / time.Duration(sampleRateHz)
}

func malformedWAV(message string) error {
	return services.Wrap(services.ErrMalformedInput, "audio", "inspect wav", message, nil)
}
