package testsupport

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// PCMTone returns samples of a mono 16-bit little-endian 440 Hz sine at
// sampleRate. A 2000-sample clip is 4000 bytes.
func PCMTone(samples, sampleRate int) []byte {
	if samples <= 0 {
		return nil
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	pcm := make([]byte, samples*2)
	for i := range samples {
		v := math.Sin(2 * math.Pi * 440 * float64(i) / float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16/4)))
	}
	return pcm
}

// PNGStub returns bytes carrying the PNG signature, enough for sniffing.
func PNGStub(tag string) []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), tag...)
}
