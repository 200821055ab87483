package logging

import (
	"context"

	"go.uber.org/zap"
)

type runIDCtxKey struct{}
type roleCtxKey struct{}

// WithRunID attaches a pipeline run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDCtxKey{}, runID)
}

// RunIDFromContext extracts the run ID, or "" when absent.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRole attaches the currently active agent role to the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleCtxKey{}, role)
}

// RoleFromContext extracts the active role, or "" when absent.
func RoleFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(roleCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// ContextFields extracts run correlation fields from the context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if role := RoleFromContext(ctx); role != "" {
		fields = append(fields, zap.String("run.role", role))
	}
	return fields
}
