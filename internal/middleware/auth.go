package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/exportd/internal/platform/ctxutil"
	"github.com/clipforge/exportd/internal/platform/logger"
)

// CallerIdentity resolves the ambient caller identity this service
// persists on every job (spec §1: authentication and per-tenant isolation
// are treated as ambient, owned by whatever sits in front of this
// service). It trusts X-Owner-ID the way the teacher's auth middleware
// trusts a bearer token, minus the verification step.
type CallerIdentity struct {
	log *logger.Logger
}

func NewCallerIdentity(log *logger.Logger) *CallerIdentity {
	return &CallerIdentity{log: log.With("middleware", "CallerIdentity")}
}

func (m *CallerIdentity) RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := strings.TrimSpace(c.GetHeader("X-Owner-ID"))
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-Owner-ID"})
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithOwner(c.Request.Context(), owner))
		c.Next()
	}
}
