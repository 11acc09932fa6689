package utils

import (
	"context"

	"github.com/mmdatafocus/clinic_backend/appctx"
)

var (
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

const systemActorName = "system"

// Actor identifies who performed a mutation. ID 0 is reserved for the system actor.
type Actor struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SystemActor is recorded whenever no authenticated actor is attached.
var SystemActor = Actor{ID: 0, Name: systemActorName}

func (a Actor) IsAuthenticated() bool {
	return a.ID > 0
}

// OrSystem substitutes the system actor for an unauthenticated one.
func (a Actor) OrSystem() Actor {
	if !a.IsAuthenticated() {
		if a.Name == "" {
			return SystemActor
		}
		return Actor{ID: 0, Name: a.Name}
	}
	return a
}

// WithActor attaches the actor to ctx for the lifetime of one operation.
func WithActor(ctx context.Context, actor Actor) context.Context {
	ctx = appctx.Set(ctx, ContextKeyUserId, actor.ID)
	return appctx.Set(ctx, ContextKeyUserName, actor.Name)
}

// ActorFromContext returns the actor attached by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	id, ok := appctx.GetInt(ctx, ContextKeyUserId)
	if !ok {
		return Actor{}, false
	}
	name, _ := appctx.GetString(ctx, ContextKeyUserName)
	return Actor{ID: id, Name: name}, true
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
