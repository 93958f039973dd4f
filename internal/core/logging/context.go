package logging

import "context"

type contextKey string

const (
	runIDKey   contextKey = "run_id"
	projectKey contextKey = "project"
)

// WithRunID adds a provisioning run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithProject adds the target project name to the context.
func WithProject(ctx context.Context, project string) context.Context {
	return context.WithValue(ctx, projectKey, project)
}

// GetRunID retrieves the run ID from the context.
// Returns empty string if not present.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// GetProject retrieves the project name from the context.
// Returns empty string if not present.
func GetProject(ctx context.Context) string {
	if name, ok := ctx.Value(projectKey).(string); ok {
		return name
	}
	return ""
}
