package types

import (
	"context"
	"log/slog"
)

// ActorType identifies the kind of entity performing an operation.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// SystemActorID is recorded in audit entries written by background jobs.
const SystemActorID = "system"

// Actor is the entity performing an operation. Console users act with the
// role of the user record they resolve to.
type Actor struct {
	ID   string
	Name string
	Role UserRole
	Type ActorType
}

// SystemActor returns the actor used by timers and maintenance tasks.
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Name: "System", Type: ActorTypeSystem}
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
	loggerKey    contextKey = "logger"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// ActorFromContext returns the stored actor, or the system actor when none is set.
func ActorFromContext(ctx context.Context) Actor {
	if a, ok := GetActor(ctx); ok {
		return a
	}
	return SystemActor()
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithLogger stores a request-scoped logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the request-scoped logger, or nil if none was set.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return nil
}
