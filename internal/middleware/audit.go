package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agora-api/internal/models"
	"github.com/noah-isme/agora-api/internal/repository"
)

// Audit creates a middleware that records audit logs after successful requests.
func Audit(repo *repository.AuditLogRepository, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var principalID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			principal := claims.(*models.JWTClaims)
			principalID = &principal.PrincipalID
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		_ = repo.Create(c.Request.Context(), &models.AuditLog{
			PrincipalID: principalID,
			Action:      action,
			Resource:    resource,
			ResourceID:  nil,
			NewValues:   body,
			IPAddress:   c.ClientIP(),
			UserAgent:   c.GetHeader("User-Agent"),
		})
	}
}
