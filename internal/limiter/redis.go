package limiter

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketScript string

// Redis enforces one shared token bucket per source address across all
// replicas. The read/compute/write cycle runs inside a Lua script, so
// concurrent Admit calls against the same address are atomic.
type Redis struct {
	client *redis.Client
	limit  Limit
	script *redis.Script
	prefix string
}

func NewRedis(client *redis.Client, limit Limit) (*Redis, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis{
		client: client,
		limit:  limit,
		script: redis.NewScript(tokenBucketScript),
		prefix: "hookbin:limiter:",
	}, nil
}

func (r *Redis) Admit(ctx context.Context, source string) (bool, error) {
	now := float64(time.Now().UnixMicro()) / 1e6

	result, err := r.script.Run(ctx, r.client, []string{r.prefix + source},
		r.limit.Rate,
		r.limit.Burst,
		now,
	).Result()
	if err != nil {
		return false, err
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result %T", result)
	}
	return allowed == 1, nil
}
