package contextx

import "context"

// WithStage records the name of the pipeline stage that is currently
// running.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the running stage name, or "" outside a pipeline
// (for example inside the action itself).
func StageFromContext(ctx context.Context) string {
	s, _ := ctx.Value(stageKey).(string)
	return s
}
