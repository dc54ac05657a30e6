package generation

import (
	"fmt"
	"strconv"
	"strings"

	"storyforge/internal/asset"
	"storyforge/internal/audio"
	"storyforge/internal/scene"
	"storyforge/internal/services"
)

// materialize turns a backend result into the reference stored in the
// session's asset map.
func materialize(req Request, res Result, voiceRate int) (string, int, error) {
	op := string(req.Kind)
	switch v := res.(type) {
	case Failure:
		reason := strings.TrimSpace(v.Reason)
		if reason == "" {
			reason = "backend reported failure"
		}
		return "", 0, services.Wrap(services.ErrGenerationFailed, "generation", op, reason, v.Err)
	case Success:
		if len(v.Data) == 0 {
			return "", 0, services.Wrap(services.ErrGenerationFailed, "generation", op, "empty payload",
				services.ErrMalformedInput)
		}
		if req.Kind == scene.KindVoice {
			return normalizeVoice(v, voiceRate)
		}
		mimeType := strings.TrimSpace(v.MIMEType)
		if mimeType == "" {
			mimeType = "image/png"
		}
		return asset.EncodeDataURI(mimeType, v.Data), len(v.Data), nil
	default:
		return "", 0, services.Wrap(services.ErrGenerationFailed, "generation", op,
			fmt.Sprintf("unexpected result %T", res), services.ErrMalformedInput)
	}
}

// normalizeVoice wraps raw PCM16 in WAV unless the payload already carries a
// container.
func normalizeVoice(v Success, defaultRate int) (string, int, error) {
	mimeType := strings.ToLower(strings.TrimSpace(v.MIMEType))
	format := containerFromMIME(mimeType)
	if format == audio.FormatUnknown {
		format = audio.SniffAudioFormat(v.Data)
	}
	if format != audio.FormatUnknown {
		return asset.EncodeDataURI(containerMIME(format), v.Data), len(v.Data), nil
	}
	rate := rateFromMIME(mimeType)
	if rate <= 0 {
		rate = defaultRate
	}
	wav, err := audio.EncodeWAV(v.Data, rate, 1)
	if err != nil {
		return "", 0, services.Wrap(services.ErrGenerationFailed, "generation", "voice", "encode wav", err)
	}
	return asset.EncodeDataURI("audio/wav", wav), len(wav), nil
}

func containerFromMIME(mimeType string) string {
	base := strings.TrimSpace(strings.Split(mimeType, ";")[0])
	switch base {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return audio.FormatWAV
	case "audio/mpeg", "audio/mp3":
		return audio.FormatMP3
	default:
		return audio.FormatUnknown
	}
}

func containerMIME(format string) string {
	if format == audio.FormatMP3 {
		return "audio/mpeg"
	}
	return "audio/wav"
}

// rateFromMIME reads the rate parameter of hints like
// "audio/L16;codec=pcm;rate=24000".
func rateFromMIME(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.TrimSpace(key) != "rate" {
			continue
		}
		if rate, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return rate
		}
	}
	return 0
}
