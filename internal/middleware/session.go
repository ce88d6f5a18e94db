package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
	"github.com/noah-isme/sma-adp-portal/pkg/response"
)

// ContextSessionKey is the gin context key storing the active session.
const ContextSessionKey = "currentSession"

type sessionReader interface {
	Current() (models.Session, bool)
}

// RequireSession blocks routes until the agent holds a session.
func RequireSession(sessions sessionReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessions.Current()
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrSessionTerminated, "sign in required"))
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, session)
		c.Next()
	}
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(c *gin.Context) (models.Session, bool) {
	value, exists := c.Get(ContextSessionKey)
	if !exists {
		return models.Session{}, false
	}
	session, ok := value.(models.Session)
	return session, ok
}
