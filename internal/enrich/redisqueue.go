package enrich

import (
	"context"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"hivetrap/internal/config"
)

// StartRedisSource pops event lines from a Redis list. Lightweight
// deployments push capture records here instead of running kafka.
func StartRedisSource(ctx context.Context, cfg config.RedisSourceConfig, out chan<- string, logger *slog.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if logger != nil {
		logger.Info("redis enrichment source enabled", "addr", cfg.Addr, "key", cfg.Key)
	}
	go func() {
		defer client.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			res, err := client.BLPop(ctx, cfg.BlockTimeout, cfg.Key).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("redis pop error", "err", err)
				}
				continue
			}
			if len(res) < 2 {
				continue
			}
			select {
			case out <- res[1]:
			case <-ctx.Done():
				return
			}
		}
	}()
}
