package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storyforge/internal/generation"
	"storyforge/internal/logging"
	"storyforge/internal/scene"
	"storyforge/internal/services"
)

const (
	defaultBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultImageModel     = "gemini-2.5-flash-image"
	defaultVoiceModel     = "gemini-2.5-flash-preview-tts"
	defaultVoice          = "Kore"
	defaultHTTPTimeout    = 120 * time.Second
	defaultRetryMaxDelay  = 20 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
	maxResponseBytes      = 64 << 20
)

// Config captures the runtime settings required to talk to the backend.
type Config struct {
	APIKey         string
	BaseURL        string
	ImageModel     string
	VoiceModel     string
	DefaultVoice   string
	TimeoutSeconds int
}

// Client calls generateContent for scene images and voice clips.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

var _ generation.Client = (*Client)(nil)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
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

// NewClient constructs a backend client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			ImageModel:     strings.TrimSpace(cfg.ImageModel),
			VoiceModel:     strings.TrimSpace(cfg.VoiceModel),
			DefaultVoice:   strings.TrimSpace(cfg.DefaultVoice),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		logger:           logging.NewNop(),
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.ImageModel == "" {
		client.cfg.ImageModel = defaultImageModel
	}
	if client.cfg.VoiceModel == "" {
		client.cfg.VoiceModel = defaultVoiceModel
	}
	if client.cfg.DefaultVoice == "" {
		client.cfg.DefaultVoice = defaultVoice
	}
	client.logger = logging.NewComponentLogger(client.logger, "genai")
	return client
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("genai request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Generate issues one generateContent call for req.
func (c *Client) Generate(ctx context.Context, req generation.Request) generation.Result {
	if c.cfg.APIKey == "" {
		return generation.Failure{Reason: "api key required", Err: services.ErrConfiguration}
	}
	model, payload, err := c.buildRequest(req)
	if err != nil {
		return generation.Failure{Reason: err.Error(), Err: services.ErrInvalidParameter}
	}

	logger := logging.WithContext(ctx, c.logger).With(
		logging.Int(logging.FieldSceneID, req.SceneID),
		logging.String(logging.FieldAssetKind, string(req.Kind)),
		logging.String("model", model),
	)
	start := time.Now()
	resp, err := c.generateWithRetry(ctx, model, payload)
	if err != nil {
		logger.Warn("genai request failed",
			logging.Error(err),
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldEventType, "genai_request_failed"),
		)
		return failureFor(err)
	}
	data, mimeType, err := extractInlineData(resp)
	if err != nil {
		logger.Warn("genai response rejected",
			logging.Error(err),
			logging.String(logging.FieldEventType, "genai_malformed_response"),
		)
		return generation.Failure{Reason: err.Error(), Err: services.ErrMalformedInput}
	}
	logger.Debug("genai request complete",
		logging.Int("bytes", len(data)),
		logging.String("mime_type", mimeType),
		logging.Duration("elapsed", time.Since(start)),
	)
	return generation.Success{Data: data, MIMEType: mimeType}
}

func failureFor(err error) generation.Failure {
	switch {
	case errors.Is(err, context.Canceled):
		return generation.Failure{Reason: "request cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return generation.Failure{Reason: err.Error(), Err: services.ErrTimeout}
	default:
		return generation.Failure{Reason: err.Error(), Err: services.ErrTransient}
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) buildRequest(req generation.Request) (string, generateRequest, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", generateRequest{}, errors.New("prompt required")
	}
	parts := []part{{Text: prompt}}
	switch req.Kind {
	case scene.KindImage:
		for _, ref := range req.ReferenceImages {
			if len(ref) == 0 {
				continue
			}
			parts = append(parts, part{InlineData: &inlineData{
				MIMEType: http.DetectContentType(ref),
				Data:     base64.StdEncoding.EncodeToString(ref),
			}})
		}
		return c.cfg.ImageModel, generateRequest{
			Contents:         []content{{Role: "user", Parts: parts}},
			GenerationConfig: generationConfig{ResponseModalities: []string{"IMAGE"}},
		}, nil
	case scene.KindVoice:
		voice := strings.TrimSpace(req.VoiceID)
		if voice == "" {
			voice = c.cfg.DefaultVoice
		}
		speech := &speechConfig{}
		speech.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voice
		return c.cfg.VoiceModel, generateRequest{
			Contents: []content{{Parts: parts}},
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig:       speech,
			},
		}, nil
	default:
		return "", generateRequest{}, fmt.Errorf("unsupported asset kind %q", req.Kind)
	}
}

func extractInlineData(resp generateResponse) ([]byte, string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, "", errors.New("response has no candidates")
	}
	candidate := resp.Candidates[0]
	for _, p := range candidate.Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, "", fmt.Errorf("inline data is not base64: %w", err)
		}
		return data, strings.TrimSpace(p.InlineData.MIMEType), nil
	}
	if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
		return nil, "", fmt.Errorf("no inline data (finish_reason=%s)", candidate.FinishReason)
	}
	return nil, "", errors.New("response has no inline data part")
}

func (c *Client) generateWithRetry(ctx context.Context, model string, payload generateRequest) (generateResponse, error) {
	attempts := c.retryAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.sendOnce(ctx, model, payload)
		if err == nil {
			return resp, nil
		}
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return generateResponse{}, err
		}
		c.logger.Debug("genai retry scheduled",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return generateResponse{}, err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return generateResponse{}, fmt.Errorf("genai generate: failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) sendOnce(ctx context.Context, model string, payload generateRequest) (generateResponse, error) {
	var decoded generateResponse
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "models", model+":generateContent")
	if err != nil {
		return decoded, fmt.Errorf("genai request: build url: %w", err)
	}
	endpoint += "?key=" + url.QueryEscape(c.cfg.APIKey)
	encoded, err := json.Marshal(payload)
	if err != nil {
		return decoded, fmt.Errorf("genai request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return decoded, fmt.Errorf("genai request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decoded, fmt.Errorf("genai request: http error (timeout=%s): %w", c.timeoutDuration(), redact(err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return decoded, fmt.Errorf("genai request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return decoded, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       summarize(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return decoded, services.Wrap(services.ErrMalformedInput, "genai", "decode response", summarize(string(body)), err)
	}
	if decoded.Error != nil {
		return decoded, fmt.Errorf("genai request: api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	return decoded, nil
}

// redact strips the API key from url.Error messages.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, parseErr := url.Parse(urlErr.URL); parseErr == nil {
			q := u.Query()
			if q.Has("key") {
				q.Set("key", "REDACTED")
				u.RawQuery = q.Encode()
				return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
			}
		}
	}
	return err
}

func (c *Client) timeoutDuration() time.Duration {
	if c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}
	if isTimeout(err) {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if base <= 0 {
		return 0
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func summarize(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	if clean == "" {
		return "<empty>"
	}
	return clean
}
