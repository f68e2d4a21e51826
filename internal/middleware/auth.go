package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/pkg/auth"
	"github.com/jwalitptl/carebook-api/pkg/errors"
	"github.com/jwalitptl/carebook-api/pkg/httputil"
)

const ContextActor = "actor"

// TokenValidator turns a bearer token into the caller's identity.
type TokenValidator interface {
	ValidateToken(token string) (model.Actor, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and stores the caller in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, errors.New(errors.CodeUnauthorized, "missing authorization header", nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.RespondWithError(c, errors.New(errors.CodeUnauthorized, "invalid authorization format", nil))
			return
		}

		actor, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			httputil.RespondWithError(c, errors.New(errors.CodeUnauthorized, "invalid token", err))
			return
		}

		c.Set(ContextActor, actor)
		c.Next()
	}
}

// ActorFrom returns the authenticated caller set by Authenticate.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

var _ TokenValidator = (*auth.JWTService)(nil)
