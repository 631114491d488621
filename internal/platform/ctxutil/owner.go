package ctxutil

import "context"

type ownerKey struct{}

// WithOwner attaches the ambient caller identity to ctx. Authentication
// itself is out of scope for this service; callers are trusted to have
// already resolved a stable owner string upstream (e.g. a gateway) and
// the orchestrator only persists and filters by it.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// GetOwner returns the caller identity stashed by WithOwner, or "".
func GetOwner(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}
