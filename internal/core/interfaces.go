package core

import (
	"context"

	"subadmin/internal/types"
)

// ActorResolver maps a user id to the acting user and its permissions.
// auth.Session satisfies it.
type ActorResolver interface {
	// CurrentUserID is the console's session user, used when a request
	// names no acting user.
	CurrentUserID() string
	Lookup(ctx context.Context, userID string) (types.CurrentUserContext, error)
}
