package server

import (
	"context"

	"github.com/taskforge/taskforge/auth"
)

type contextKey int

const (
	ctxKeyProfile contextKey = iota
	ctxKeyRequestID
)

func contextWithProfile(ctx context.Context, p *auth.Profile) context.Context {
	return context.WithValue(ctx, ctxKeyProfile, p)
}

// ProfileFrom returns the logged-in user attached by the session middleware.
func ProfileFrom(ctx context.Context) (*auth.Profile, bool) {
	p, ok := ctx.Value(ctxKeyProfile).(*auth.Profile)
	return p, ok
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}
