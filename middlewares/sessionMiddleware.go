package middlewares

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/clinic_backend/config"
	"github.com/mmdatafocus/clinic_backend/utils"
)

const sessionKeyPrefix = "Token:"

// SessionMiddleware resolves the acting user from either a bearer JWT or an
// opaque "token" header looked up in redis. Requests without credentials pass
// through anonymous; operations that need an actor reject them.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearer := bearerToken(c.GetHeader("Authorization")); bearer != "" {
			claims, err := utils.JwtValidate(bearer)
			if err != nil || claims.ID <= 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			ctx := utils.WithActor(c.Request.Context(), utils.Actor{ID: claims.ID, Name: claims.Name})
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		token := c.GetHeader("token")
		if token == "" {
			c.Next()
			return
		}
		actor, err := lookupSession(token)
		if err != nil || !actor.IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.WithActor(c.Request.Context(), actor)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// lookupSession reads the actor stored by the login service as JSON {"id","name"}.
func lookupSession(token string) (utils.Actor, error) {
	var actor utils.Actor
	raw, exists, err := config.GetRedisValue(sessionKeyPrefix + token)
	if err != nil {
		return actor, err
	}
	if !exists {
		return actor, utils.AuthRequired("session expired")
	}
	if err := json.Unmarshal([]byte(raw), &actor); err != nil {
		return actor, err
	}
	return actor, nil
}
