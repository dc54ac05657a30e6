package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

const userAgent = "storyforge/0.1"

// Event names a production milestone.
type Event string

const (
	EventProductionStarted  Event = "production_started"
	EventProductionComplete Event = "production_complete"
	EventProductionFailed   Event = "production_failed"
	EventMusicUnavailable   Event = "music_unavailable"
	EventTest               Event = "test"
)

// Payload carries event details. Keys are event specific.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op one when
// notifications.ntfy_topic is empty.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, err := format(event, payload)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
}

func format(event Event, p Payload) (message, error) {
	title := p.text("title", "Untitled story")
	switch event {
	case EventProductionStarted:
		return message{
			title: "storyforge - Production Started",
			body:  fmt.Sprintf("Producing %s (%d scenes)", title, p.number("scenes")),
			tags:  []string{"storyforge", "production", "started"},
		}, nil
	case EventProductionComplete:
		body := fmt.Sprintf("%s is ready: %d assets generated", title, p.number("succeeded"))
		tags := []string{"storyforge", "production", "completed"}
		priority := ""
		if failed := p.number("failed"); failed > 0 {
			body = fmt.Sprintf("%s is ready: %d assets generated, %d failed", title, p.number("succeeded"), failed)
			tags = append(tags, "partial")
		} else {
			priority = "high"
		}
		if bundle := p.text("bundle", ""); bundle != "" {
			body += "\nBundle: " + bundle
		}
		return message{title: "storyforge - Ready", body: body, tags: tags, priority: priority}, nil
	case EventProductionFailed:
		return message{
			title:    "storyforge - Production Failed",
			body:     fmt.Sprintf("%s failed: %s", title, p.text("error", "unknown error")),
			tags:     []string{"storyforge", "error", "alert"},
			priority: "high",
		}, nil
	case EventMusicUnavailable:
		return message{
			title: "storyforge - No Music",
			body:  fmt.Sprintf("%s continues without background music: %s", title, p.text("error", "no audio")),
			tags:  []string{"storyforge", "music", "degraded"},
		}, nil
	case EventTest:
		return message{
			title:    "storyforge - Test",
			body:     "Notification system test",
			tags:     []string{"storyforge", "test"},
			priority: "low",
		}, nil
	default:
		return message{}, services.Wrap(services.ErrInvalidParameter, "notifications", "publish",
			fmt.Sprintf("unknown event %q", event), nil)
	}
}

func (p Payload) text(key, fallback string) string {
	if v, ok := p[key]; ok {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return fallback
}

func (p Payload) number(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", msg.title)
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "notifications", "send", "ntfy request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrTransient, "notifications", "send",
			fmt.Sprintf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
