package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGeneration()
	c.normalizeLLM()
	c.normalizeMusic()
	if err := c.normalizePlayback(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGeneration() {
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	if c.Generation.APIKey == "" {
		if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.Generation.APIKey = strings.TrimSpace(value)
		}
	}
	c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.BaseURL), "/")
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = defaultGenerationBaseURL
	}
	c.Generation.ImageModel = strings.TrimSpace(c.Generation.ImageModel)
	if c.Generation.ImageModel == "" {
		c.Generation.ImageModel = defaultImageModel
	}
	c.Generation.VoiceModel = strings.TrimSpace(c.Generation.VoiceModel)
	if c.Generation.VoiceModel == "" {
		c.Generation.VoiceModel = defaultVoiceModel
	}
	c.Generation.DefaultVoice = strings.TrimSpace(c.Generation.DefaultVoice)
	if c.Generation.DefaultVoice == "" {
		c.Generation.DefaultVoice = defaultVoice
	}
	if c.Generation.VoiceSampleRate == 0 {
		c.Generation.VoiceSampleRate = defaultVoiceSampleRate
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("STORYFORGE_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
}

func (c *Config) normalizeMusic() {
	c.Music.APIKey = strings.TrimSpace(c.Music.APIKey)
	if c.Music.APIKey == "" {
		if value, ok := os.LookupEnv("STORYFORGE_MUSIC_API_KEY"); ok {
			c.Music.APIKey = strings.TrimSpace(value)
		}
	}
	// The music endpoint shares the generation backend's credentials unless
	// configured separately.
	if c.Music.APIKey == "" {
		c.Music.APIKey = c.Generation.APIKey
	}
	c.Music.Endpoint = strings.TrimSpace(c.Music.Endpoint)
	if c.Music.Endpoint == "" {
		c.Music.Endpoint = defaultMusicEndpoint
	}
	c.Music.Model = strings.TrimSpace(c.Music.Model)
	if c.Music.Model == "" {
		c.Music.Model = defaultMusicModel
	}
}

func (c *Config) normalizePlayback() error {
	loop := strings.TrimSpace(c.Playback.BackgroundLoop)
	if loop == "" {
		c.Playback.BackgroundLoop = ""
		return nil
	}
	expanded, err := expandPath(loop)
	if err != nil {
		return fmt.Errorf("playback.background_loop: %w", err)
	}
	c.Playback.BackgroundLoop = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeout
	}
}
