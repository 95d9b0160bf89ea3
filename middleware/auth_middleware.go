package middleware

import (
	"cirrusdrive/models"
	"cirrusdrive/utils"
	"strings"

	"github.com/gin-gonic/gin"
)

const SessionKey = "session"

func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			utils.UnauthorizedResponse(c, "Authorization token required")
			c.Abort()
			return
		}

		claims, err := utils.VerifyJWTTokenWithSecret(token, jwtSecret)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(SessionKey, utils.SessionFromClaims(claims))
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}

	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

// GetSession returns the session set by AuthMiddleware.
func GetSession(c *gin.Context) (models.Session, bool) {
	value, exists := c.Get(SessionKey)
	if !exists {
		return models.Session{}, false
	}
	sess, ok := value.(models.Session)
	return sess, ok
}

// RequireRole filters by the role claim. This is a fast-path gate only;
// admin services re-verify the role against the user store.
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := GetSession(c)
		if !ok {
			utils.UnauthorizedResponse(c, "User session not found")
			c.Abort()
			return
		}

		if sess.Role != requiredRole {
			utils.ForbiddenResponse(c, "Insufficient privileges")
			c.Abort()
			return
		}

		c.Next()
	}
}
