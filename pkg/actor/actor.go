// Package actor carries the server-verified identity performing an
// operation. Privilege flags travel only through this context value, set by
// the authentication layer after verification; nothing in the billing core
// trusts a client-supplied role flag.
package actor

import (
	"context"

	"github.com/google/uuid"
)

// Actor identifies who is performing an operation.
type Actor struct {
	ID    uuid.UUID
	Admin bool // set by the authentication layer, never by the client
}

type actorCtxKey struct{}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// FromContext extracts the actor from the context.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(Actor)
	return a, ok
}

// AdminVerifier confirms administrator privileges against an external
// authorization collaborator. The context flag alone is not sufficient for
// destructive overrides; callers re-verify before honoring a bypass.
type AdminVerifier interface {
	IsAdmin(ctx context.Context, actorID uuid.UUID) (bool, error)
}

// AdminVerifierFunc adapts a function to the AdminVerifier interface.
type AdminVerifierFunc func(ctx context.Context, actorID uuid.UUID) (bool, error)

func (f AdminVerifierFunc) IsAdmin(ctx context.Context, actorID uuid.UUID) (bool, error) {
	return f(ctx, actorID)
}
