package station

import "context"

// scope is the station identity carried by a context. Each With* call stores
// a modified copy, so parents are never changed.
type scope struct {
	runID     string
	cavity    int
	stage     string
	requestID string
}

type scopeKey struct{}

func scopeOf(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, edit func(*scope)) context.Context {
	s := scopeOf(ctx)
	edit(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithRunID stamps the batch run id. An empty id leaves ctx unchanged.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.runID = id })
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	id := scopeOf(ctx).runID
	return id, id != ""
}

// WithCavity stamps the cavity under test. Cavities are numbered from 1, so
// zero and negative numbers leave ctx unchanged.
func WithCavity(ctx context.Context, cavity int) context.Context {
	if cavity <= 0 {
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.cavity = cavity })
}

func CavityFromContext(ctx context.Context) (int, bool) {
	n := scopeOf(ctx).cavity
	return n, n > 0
}

// WithStage stamps the sequencer stage.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.stage = stage })
}

func StageFromContext(ctx context.Context) (string, bool) {
	stage := scopeOf(ctx).stage
	return stage, stage != ""
}

// WithRequestID stamps an IPC or HTTP correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.requestID = id })
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id := scopeOf(ctx).requestID
	return id, id != ""
}
