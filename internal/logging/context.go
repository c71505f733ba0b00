package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldPath is the standardized structured logging key for candidate file paths.
	FieldPath = "path"
	// FieldAssetID is the standardized structured logging key for asset identifiers.
	FieldAssetID = "asset_id"
	// FieldHubID is the standardized structured logging key for hub identifiers.
	FieldHubID = "hub_id"
	// FieldEntityID is the standardized structured logging key for claim-target identifiers.
	FieldEntityID = "entity_id"
	// FieldContentHash is the standardized structured logging key for content digests.
	FieldContentHash = "content_hash"
)

type contextKey int

const (
	pathContextKey contextKey = iota
	assetContextKey
)

// WithPath stores the candidate path in the context for log enrichment.
func WithPath(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, pathContextKey, path)
}

// WithAssetID stores the asset identifier in the context for log enrichment.
func WithAssetID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, assetContextKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if path, ok := ctx.Value(pathContextKey).(string); ok && path != "" {
		fields = append(fields, slog.String(FieldPath, path))
	}
	if id, ok := ctx.Value(assetContextKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldAssetID, id))
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
	return logger.With(attrsToArgs(fields)...)
}
