package engine

import (
	"context"

	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/logger"
)

type actorKey struct{}

// WithActor attaches the authenticated user to ctx.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the authenticated user carried by ctx.
func ActorFrom(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey{}).(string)
	return actor, ok && actor != ""
}

// requireActor is the mutation gate: ctx must carry exactly userID.
func requireActor(ctx context.Context, op, userID string) (string, error) {
	actor, ok := ActorFrom(ctx)
	if !ok {
		logger.Warn("Mutation without an authenticated actor", "op", op, "user", userID)
		return "", apperrors.New(apperrors.KindUnauthorized, op, "no authenticated actor")
	}
	if actor != userID {
		logger.Warn("Ownership mismatch", "op", op, "actor", actor, "user", userID)
		return "", apperrors.New(apperrors.KindUnauthorized, op, "actor %q does not own data of user %q", actor, userID)
	}
	return actor, nil
}

// checkActor is the read gate. A context without an actor belongs to a
// trusted internal caller such as the sweep.
func checkActor(ctx context.Context, op, userID string) error {
	actor, ok := ActorFrom(ctx)
	if !ok || actor == userID {
		return nil
	}
	logger.Warn("Ownership mismatch", "op", op, "actor", actor, "user", userID)
	return apperrors.New(apperrors.KindUnauthorized, op, "actor %q does not own data of user %q", actor, userID)
}
