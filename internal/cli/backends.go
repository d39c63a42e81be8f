package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"report-card-service/internal/config"
	"report-card-service/internal/domain"
	"report-card-service/internal/infra/memory"
	pgloader "report-card-service/internal/infra/postgres"
)

// backends holds the optional external stores. The roster loader falls back
// to the built-in demo class when Postgres is not configured.
type backends struct {
	redis  *redis.Client
	pool   *pgxpool.Pool
	loader memory.RosterLoader
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
		b.loader = pgloader.NewRosterLoader(pool)
	} else {
		b.loader = memory.NewStaticRosterLoader(map[string][]domain.ActivityRecord{
			memory.DemoClassID: memory.DemoRoster(),
		})
	}
	return b, nil
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
