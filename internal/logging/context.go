package logging

import (
	"context"
	"log/slog"

	"storyforge/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID is the standardized key for production session identifiers.
	FieldSessionID = "session_id"
	// FieldSceneID is the standardized key for scene identifiers.
	FieldSceneID = "scene_id"
	// FieldAssetKind is the standardized key for asset kinds (image, voice).
	FieldAssetKind = "asset_kind"
	// FieldPhase is the standardized key for production phase names.
	FieldPhase = "phase"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags log lines that mark lifecycle events.
	FieldEventType = "event_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if phase, ok := services.PhaseFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPhase, phase))
	}
	if id, ok := services.SceneIDFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldSceneID, id))
	}
	if kind, ok := services.AssetKindFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldAssetKind, kind))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
