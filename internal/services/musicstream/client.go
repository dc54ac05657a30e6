package musicstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"storyforge/internal/audio"
	"storyforge/internal/logging"
	"storyforge/internal/services"
)

const (
	// SampleRate is the fixed rate of recorded tracks.
	SampleRate = 44100
	// DefaultDuration is the recording window when none is given.
	DefaultDuration = 15 * time.Second

	defaultHandshakeTimeout = 10 * time.Second
	defaultModel            = "models/lyria-realtime-exp"
	defaultBPM              = 90
	defaultTemperature      = 1.0
	writeTimeout            = 5 * time.Second
)

// Config captures the runtime settings for the music endpoint.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	BPM         int
	Temperature float64
}

// Client records music tracks.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithDialer overrides the websocket dialer.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a music client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BPM <= 0 {
		cfg.BPM = defaultBPM
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	c := &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "musicstream")
	return c
}

type chunkEvent struct {
	pcm []byte
	err error
}

// Record streams music for duration and returns it as WAV. Session failures
// return an empty result and a nil error. Cancelling ctx stops accumulation
// and returns ctx.Err() without audio.
func (c *Client) Record(ctx context.Context, prompt string, duration time.Duration) ([]byte, error) {
	if duration <= 0 {
		duration = DefaultDuration
	}
	prompt = strings.TrimSpace(prompt)
	logger := logging.WithContext(ctx, c.logger)
	if prompt == "" {
		return nil, services.Wrap(services.ErrInvalidParameter, "musicstream", "record", "prompt required", nil)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.degrade(logger, "dial", err)
		return nil, nil
	}
	defer conn.Close()

	if err := c.start(conn, prompt); err != nil {
		c.degrade(logger, "start session", err)
		return nil, nil
	}

	done := make(chan struct{})
	defer close(done)
	events := make(chan chunkEvent, 16)
	go readChunks(conn, events, done)

	timer := time.NewTimer(duration)
	defer timer.Stop()

	var (
		pcm    bytes.Buffer
		chunks int
	)
	for {
		select {
		case ev := <-events:
			if ev.err != nil {
				c.degrade(logger, "receive", ev.err)
				return nil, nil
			}
			pcm.Write(ev.pcm)
			chunks++
		case <-timer.C:
			chunks += drainChunks(events, &pcm)
			c.stop(conn)
			if pcm.Len() == 0 {
				logger.Warn("music session produced no audio",
					logging.Duration("duration", duration),
					logging.String(logging.FieldEventType, "music_empty"),
				)
				return nil, nil
			}
			wav, err := audio.EncodeWAV(pcm.Bytes(), SampleRate, 1)
			if err != nil {
				return nil, err
			}
			logger.Info("music recorded",
				logging.Int("chunks", chunks),
				logging.Int("bytes", len(wav)),
				logging.Duration("duration", duration),
				logging.String(logging.FieldEventType, "music_recorded"),
			)
			return wav, nil
		case <-ctx.Done():
			c.stop(conn)
			return nil, ctx.Err()
		}
	}
}

// drainChunks appends chunks already queued when the window closes. It stops
// at the first error or once the queue is empty.
func drainChunks(events <-chan chunkEvent, pcm *bytes.Buffer) int {
	n := 0
	for {
		select {
		case ev := <-events:
			if ev.err != nil {
				return n
			}
			pcm.Write(ev.pcm)
			n++
		default:
			return n
		}
	}
}

func (c *Client) degrade(logger *slog.Logger, op string, err error) {
	wrapped := services.Wrap(services.ErrStreamingSession, "musicstream", op, "", err)
	logger.Warn("music session failed; continuing without music",
		logging.Error(wrapped),
		logging.String(logging.FieldEventType, "music_degraded"),
	)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	if c.cfg.Endpoint == "" {
		return nil, errors.New("music endpoint not configured")
	}
	endpoint, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if c.cfg.APIKey != "" {
		q := endpoint.Query()
		q.Set("key", c.cfg.APIKey)
		endpoint.RawQuery = q.Encode()
	}
	conn, resp, err := c.dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: http %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

type setupMessage struct {
	Setup struct {
		Model string `json:"model"`
	} `json:"setup"`
}

type weightedPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type promptMessage struct {
	ClientContent struct {
		WeightedPrompts []weightedPrompt `json:"weightedPrompts"`
	} `json:"clientContent"`
}

type configMessage struct {
	MusicGenerationConfig struct {
		BPM         int     `json:"bpm"`
		Temperature float64 `json:"temperature"`
	} `json:"musicGenerationConfig"`
}

type controlMessage struct {
	PlaybackControl string `json:"playbackControl"`
}

func (c *Client) start(conn *websocket.Conn, prompt string) error {
	var setup setupMessage
	setup.Setup.Model = c.cfg.Model

	var prompts promptMessage
	prompts.ClientContent.WeightedPrompts = []weightedPrompt{{Text: prompt, Weight: 1.0}}

	var genCfg configMessage
	genCfg.MusicGenerationConfig.BPM = c.cfg.BPM
	genCfg.MusicGenerationConfig.Temperature = c.cfg.Temperature

	for _, msg := range []any{setup, prompts, genCfg, controlMessage{PlaybackControl: "PLAY"}} {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("send %T: %w", msg, err)
		}
	}
	return nil
}

func (c *Client) stop(conn *websocket.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteJSON(controlMessage{PlaybackControl: "STOP"})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "recording complete"))
}

type serverMessage struct {
	SetupComplete *struct{} `json:"setupComplete"`
	ServerContent *struct {
		AudioChunks []struct {
			Data     string `json:"data"`
			MIMEType string `json:"mimeType"`
		} `json:"audioChunks"`
	} `json:"serverContent"`
	FilteredPrompt *struct {
		Text           string `json:"text"`
		FilteredReason string `json:"filteredReason"`
	} `json:"filteredPrompt"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// readChunks forwards decoded chunks in arrival order until the connection
// fails or done closes.
func readChunks(conn *websocket.Conn, events chan<- chunkEvent, done <-chan struct{}) {
	send := func(ev chunkEvent) bool {
		select {
		case events <- ev:
			return true
		case <-done:
			return false
		}
	}
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			send(chunkEvent{err: err})
			return
		}
		var msg serverMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			send(chunkEvent{err: services.Wrap(services.ErrMalformedInput, "musicstream", "decode message", "", err)})
			return
		}
		switch {
		case msg.Error != nil:
			send(chunkEvent{err: fmt.Errorf("server error: %s", strings.TrimSpace(msg.Error.Message))})
			return
		case msg.FilteredPrompt != nil:
			send(chunkEvent{err: fmt.Errorf("prompt filtered: %s", msg.FilteredPrompt.FilteredReason)})
			return
		case msg.ServerContent != nil:
			for _, chunk := range msg.ServerContent.AudioChunks {
				pcm, err := audio.DecodeRawPCMChunk(chunk.Data)
				if err != nil {
					send(chunkEvent{err: err})
					return
				}
				if !send(chunkEvent{pcm: pcm}) {
					return
				}
			}
		}
	}
}
