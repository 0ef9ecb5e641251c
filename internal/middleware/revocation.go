package middleware

import (
	"context"
	"fmt"

	"friendclub-backend/internal/database"
	"friendclub-backend/pkg/jwt"
)

// RedisRevocationChecker implements RevocationChecker using the auth service's Redis blacklist
type RedisRevocationChecker struct {
	client *database.RedisClient
}

// NewRedisRevocationChecker creates a new RedisRevocationChecker
func NewRedisRevocationChecker(client *database.RedisClient) *RedisRevocationChecker {
	return &RedisRevocationChecker{client: client}
}

// IsTokenRevoked checks if the token's jti is blacklisted.
// The signature has already been verified by the caller.
func (c *RedisRevocationChecker) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	tokenID, err := jwt.TokenID(tokenString)
	if err != nil {
		return false, fmt.Errorf("failed to parse token: %w", err)
	}
	if tokenID == "" {
		return false, nil
	}

	exists, err := c.client.SafeExists(ctx, "blacklist:"+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist in redis: %w", err)
	}
	return exists > 0, nil
}
