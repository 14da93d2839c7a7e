package rbac

import (
	"net/http"

	"crm-calls/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireUserType allows access if the caller has any of the provided user types.
// Identity must already be in the request context (auth.RequireAccessToken).
func RequireUserType(allowed ...auth.UserType) gin.HandlerFunc {
	allowedSet := make(map[auth.UserType]struct{}, len(allowed))
	for _, t := range allowed {
		allowedSet[t] = struct{}{}
	}

	return func(c *gin.Context) {
		typ, err := auth.Type(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_type required"})
			return
		}
		if _, ok := allowedSet[typ]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireStaff gates back-office routes on IsStaff.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		typ, err := auth.Type(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_type required"})
			return
		}
		if !IsStaff(typ) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
