package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/pkg/auth"
)

// Context keys set by AuthMiddleware
const (
	KeyUserID = "user_id"
	KeyEmail  = "email"
	KeyName   = "name"
	KeyToken  = "token"
)

// AuthMiddleware validates session tokens and injects the caller's claims
// into the context
func AuthMiddleware(jwtManager *auth.JWTManager, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abort(c, "Invalid authorization format. Use: Bearer <token>")
			return
		}
		tokenString := parts[1]

		revoked, err := IsRevoked(c.Request.Context(), rdb, tokenString)
		if err != nil {
			// Fail closed
			log.WithError(err).Error("❌ Token blacklist lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Auth server error", Code: "INTERNAL_ERROR"})
			return
		}
		if revoked {
			abort(c, "Token has been revoked")
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			abort(c, "Invalid or expired token")
			return
		}

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeyEmail, claims.Email)
		c.Set(KeyName, claims.Name)
		c.Set(KeyToken, tokenString)
		c.Next()
	}
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: msg, Code: "UNAUTHORIZED"})
}
