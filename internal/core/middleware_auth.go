package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"subadmin/internal/types"
)

// ActingUserHeader names the user a single request acts as.
const ActingUserHeader = "X-Acting-User"

// actorPublicPaths skip actor resolution.
var actorPublicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

type permissionsKey struct{}

// PermissionsFromContext returns the acting user's permissions.
func PermissionsFromContext(ctx context.Context) []types.Permission {
	p, _ := ctx.Value(permissionsKey{}).([]types.Permission)
	return p
}

// ActorMiddleware resolves who is acting and stores the Actor and its
// permissions in the context.
//
//  1. A non-empty X-Acting-User header selects that user for this request.
//     Unknown ids are rejected with validation_invalid_value (400).
//  2. Otherwise the session's current user acts.
//
// There are no credentials: the console trusts its caller.
func (s *Server) ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		userID := strings.TrimSpace(r.Header.Get(ActingUserHeader))
		fromHeader := userID != ""
		if !fromHeader {
			userID = s.Actors.CurrentUserID()
		}

		cur, err := s.Actors.Lookup(r.Context(), userID)
		if err != nil {
			var appErr *types.AppError
			if fromHeader && errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
				Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
					"unknown acting user", err, map[string]any{"header": ActingUserHeader, "user_id": userID}))
				return
			}
			s.Logger.ErrorContext(r.Context(), "failed to resolve acting user",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			Error(w, r, err)
			return
		}

		actor := types.Actor{
			ID:   cur.User.ID,
			Name: cur.User.Name,
			Role: cur.User.Role,
			Type: types.ActorTypeUser,
		}
		ctx := types.WithActor(r.Context(), actor)
		ctx = context.WithValue(ctx, permissionsKey{}, cur.Permissions)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission rejects actors lacking p with permission_denied (403).
// It only enforces when Auth.EnforcePermissions is set; otherwise any user
// may perform any action. System actors always pass.
func (s *Server) RequirePermission(p types.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.Config == nil || !s.Config.Auth.EnforcePermissions {
				next.ServeHTTP(w, r)
				return
			}

			actor := types.ActorFromContext(r.Context())
			if actor.Type == types.ActorTypeSystem {
				next.ServeHTTP(w, r)
				return
			}

			if !slices.Contains(PermissionsFromContext(r.Context()), p) {
				s.Logger.WarnContext(r.Context(), "permission denied",
					slog.String("actor_id", actor.ID),
					slog.String("role", string(actor.Role)),
					slog.String("permission", string(p)),
				)
				Error(w, r, types.NewAppErrorWithDetails(types.ErrCodePermissionDenied,
					"you do not have permission to perform this action", nil,
					map[string]any{"permission": string(p), "role": string(actor.Role)}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
