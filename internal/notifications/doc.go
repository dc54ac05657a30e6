// Package notifications publishes production milestones to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Each Event has a fixed title and tag set;
// the Payload supplies the per-run details.
package notifications
