package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"friendclub-backend/pkg/jwt"
	"friendclub-backend/pkg/logger"
	"friendclub-backend/pkg/response"
)

// RevocationChecker defines interface for checking if a token is revoked (blacklisted)
type RevocationChecker interface {
	// IsTokenRevoked checks if a JWT token has been revoked/blacklisted
	IsTokenRevoked(ctx context.Context, tokenString string) (bool, error)
}

// AuthMiddleware requires a valid bearer token.
// If valid, it sets user_id, username, and role in the Gin context.
// revocationChecker may be nil.
func AuthMiddleware(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, msg := authenticate(c, jwtManager, revocationChecker, tokenString)
		if claims == nil {
			response.Unauthorized(c, msg)
			c.Abort()
			return
		}

		setPrincipal(c, claims)
		c.Next()
	}
}

// OptionalAuth attaches the principal when a valid token is presented and
// lets anonymous requests through. Used on the WebSocket upgrade, where
// browsers cannot set headers and pass the token as ?token=.
func OptionalAuth(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.Next()
			return
		}

		claims, msg := authenticate(c, jwtManager, revocationChecker, tokenString)
		if claims == nil {
			response.Unauthorized(c, msg)
			c.Abort()
			return
		}

		setPrincipal(c, claims)
		c.Next()
	}
}

// authenticate returns the claims, or nil and the rejection message
func authenticate(c *gin.Context, jwtManager *jwt.JWTManager, revocationChecker RevocationChecker, tokenString string) (*jwt.Claims, string) {
	claims, err := jwtManager.ValidateToken(tokenString)
	if err != nil {
		return nil, "Invalid token"
	}

	if revocationChecker != nil {
		revoked, err := revocationChecker.IsTokenRevoked(c.Request.Context(), tokenString)
		if err != nil {
			// Fail-open: revocation is best-effort while Redis is unavailable
			logger.Warn("Token revocation check failed", zap.Error(err))
			return claims, ""
		}
		if revoked {
			return nil, "Token revoked"
		}
	}
	return claims, ""
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setPrincipal(c *gin.Context, claims *jwt.Claims) {
	c.Set("user_id", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("role", claims.Role)
}

// CurrentUser returns the authenticated principal set by AuthMiddleware
func CurrentUser(c *gin.Context) (uuid.UUID, string, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, "", false
	}
	userID, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, "", false
	}
	return userID, c.GetString("username"), true
}
