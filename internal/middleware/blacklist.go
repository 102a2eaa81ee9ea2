package middleware

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// IsRevoked reports whether the token was blacklisted on logout
func IsRevoked(ctx context.Context, rdb *redis.Client, token string) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	n, err := rdb.Exists(ctx, "blacklist:"+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
