package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
)

const actorContextKey = "auth.actor"

// Actor identifies the authenticated caller for workflow operations.
// OrgID is the caller's organization; every mutating negotiation call is
// authorized against it.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	OrgID  uuid.UUID `json:"org_id"`
}

// ActorFromContext returns the actor placed in the context by the middleware.
func ActorFromContext(c *gin.Context) (Actor, error) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return Actor{}, apperrors.Forbidden("no authenticated actor on request")
	}
	actor, ok := v.(Actor)
	if !ok {
		return Actor{}, apperrors.Forbidden("no authenticated actor on request")
	}
	return actor, nil
}

func setActor(c *gin.Context, actor Actor) {
	c.Set(actorContextKey, actor)
}
