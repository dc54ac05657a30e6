package config

const (
	defaultWorkDir             = "~/.local/share/storyforge"
	defaultLogDir              = "~/.local/share/storyforge/logs"
	defaultOutputDir           = "~/storyforge/exports"
	defaultMinFreeMB           = 256
	defaultGenerationBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultImageModel          = "gemini-2.5-flash-image"
	defaultVoiceModel          = "gemini-2.5-flash-preview-tts"
	defaultVoice               = "Kore"
	defaultVoiceSampleRate     = 24000
	defaultGenerationTimeout   = 120
	defaultGenerationRetries   = 3
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "google/gemini-2.5-flash"
	defaultLLMReferer          = "https://github.com/storyforge/storyforge"
	defaultLLMTitle            = "storyforge script writer"
	defaultLLMTimeoutSeconds   = 60
	defaultMusicEndpoint       = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateMusic"
	defaultMusicModel          = "models/lyria-realtime-exp"
	defaultMusicRecordSeconds  = 15
	defaultMusicBPM            = 90
	defaultMusicTemperature    = 1.0
	defaultFallbackSceneMillis = 3000
	defaultFetchTimeoutSeconds = 30
	defaultFetchCacheMinutes   = 30
	defaultFetchCacheMaxMB     = 64
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
			MinFreeMB: defaultMinFreeMB,
		},
		Generation: Generation{
			BaseURL:         defaultGenerationBaseURL,
			ImageModel:      defaultImageModel,
			VoiceModel:      defaultVoiceModel,
			DefaultVoice:    defaultVoice,
			VoiceSampleRate: defaultVoiceSampleRate,
			TimeoutSeconds:  defaultGenerationTimeout,
			RetryAttempts:   defaultGenerationRetries,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Music: Music{
			Endpoint:      defaultMusicEndpoint,
			Model:         defaultMusicModel,
			RecordSeconds: defaultMusicRecordSeconds,
			BPM:           defaultMusicBPM,
			Temperature:   defaultMusicTemperature,
		},
		Playback: Playback{
			FallbackSceneMillis: defaultFallbackSceneMillis,
		},
		Archive: Archive{
			FetchTimeoutSeconds: defaultFetchTimeoutSeconds,
			FetchCacheMinutes:   defaultFetchCacheMinutes,
			FetchCacheMaxMB:     defaultFetchCacheMaxMB,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
