// Package testutil provides common helpers for handler and integration tests.
package testutil

import (
	"context"
	"time"

	id "cadastra/pkg/domain"
	"cadastra/pkg/requestcontext"
)

// AuthedContext returns a context carrying the identity the auth middleware
// would set for an authenticated request.
func AuthedContext(userID id.UserID, role id.Role) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), userID)
	return requestcontext.WithRole(ctx, role)
}

// FrozenContext is AuthedContext with the request time pinned, so stores that
// stamp rows via the context produce deterministic timestamps.
func FrozenContext(userID id.UserID, role id.Role, now time.Time) context.Context {
	return requestcontext.WithTime(AuthedContext(userID, role), now)
}
