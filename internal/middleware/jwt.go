package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mfolio/internal/pkg/errcode"
	"github.com/xxxsen/mfolio/internal/pkg/jwt"
	"github.com/xxxsen/mfolio/internal/pkg/response"
)

const ContextSubjectKey = "subject"

// AdminAuth guards the maintenance endpoints. Only HS256 bearer tokens signed
// with secret and carrying the admin role pass.
func AdminAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			response.Abort(c, errcode.ErrForbidden, "admin api disabled")
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, errcode.ErrUnauthorized, "missing authorization")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Abort(c, errcode.ErrUnauthorized, "invalid authorization")
			return
		}
		claims, err := jwt.ParseToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			logutil.GetLogger(c.Request.Context()).Warn("reject admin token", zap.Error(err))
			response.Abort(c, errcode.ErrUnauthorized, "invalid token")
			return
		}
		if claims.Role != jwt.RoleAdmin {
			response.Abort(c, errcode.ErrForbidden, "forbidden")
			return
		}
		c.Set(ContextSubjectKey, claims.Subject)
		c.Next()
	}
}
