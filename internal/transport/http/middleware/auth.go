package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/usecase"
)

const authenticatedUserKey = "authenticated_user_id"

// RequireAuth verifies the bearer access token and stores the subject in
// the request context for downstream handlers.
func RequireAuth(tokens *usecase.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := tokens.VerifyToken(c.Request.Context(), domain.TokenKindAccess, strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid access token"})
			return
		}

		c.Set(authenticatedUserKey, claims.Subject)
		c.Next()
	}
}

// GetAuthenticatedUserID returns the subject stored by RequireAuth.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(authenticatedUserKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
