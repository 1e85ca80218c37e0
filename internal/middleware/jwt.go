package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agora-api/internal/service"
	appErrors "github.com/noah-isme/agora-api/pkg/errors"
	"github.com/noah-isme/agora-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentPrincipal"

// JWT protects routes by requiring a valid access token. Authorization is
// purely signature-based here; the session ledger is only consulted on
// refresh.
func JWT(issuer *service.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := issuer.VerifyAccess(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}
