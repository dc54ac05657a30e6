package services

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	sceneIDKey   contextKey = "scene_id"
	assetKindKey contextKey = "asset_kind"
	phaseKey     contextKey = "phase"
	requestIDKey contextKey = "request_id"
)

// WithSessionID annotates context with the production session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSceneID annotates context with the scene identifier.
func WithSceneID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, sceneIDKey, id)
}

// SceneIDFromContext extracts the scene identifier if present.
func SceneIDFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(sceneIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithAssetKind annotates context with the asset kind (image, voice).
func WithAssetKind(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, assetKindKey, kind)
}

// AssetKindFromContext returns the asset kind if present.
func AssetKindFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(assetKindKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPhase annotates context with the production phase name.
func WithPhase(ctx context.Context, phase string) context.Context {
	if phase == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// PhaseFromContext returns the production phase if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(phaseKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
