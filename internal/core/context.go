package core

import "context"

type contextKey int

const actorContextKey contextKey = iota

// DefaultActor is stamped on journal entries when the caller supplied no
// actor identity. Authentication is a collaborator's concern; the core
// only carries the identity through to the journal.
const DefaultActor = "system"

// WithActor returns a context carrying the acting user's identity.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey, actorID)
}

// ActorFromContext returns the actor identity stored in the context,
// or DefaultActor when none is set.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey).(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}
