package satellites

import (
	"context"
	"database/sql"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gil0mendes/Stellar/internal/storage/mysql"
	"github.com/gil0mendes/Stellar/internal/storage/redis"
	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/satellite"
)

// Redis owns the shared redis client when redis.enabled is set.
type Redis struct {
	client *goredis.Client
}

func (*Redis) Name() string { return "redis" }

func (*Redis) Priorities() satellite.Priorities {
	return satellite.Priorities{Start: 50, Stop: 900}
}

func (r *Redis) Start(ctx context.Context, a *api.API) error {
	cfg := a.Config().Redis
	if !cfg.Enabled {
		return nil
	}
	client, err := redis.Open(ctx, cfg)
	if err != nil {
		return err
	}
	r.client = client
	a.Set(ResourceRedis, client)
	a.Logger("redis").Info("redis connected", slog.String("address", cfg.Address))
	return nil
}

func (r *Redis) Stop(_ context.Context, a *api.API) error {
	if r.client == nil {
		return nil
	}
	a.Set(ResourceRedis, nil)
	err := r.client.Close()
	r.client = nil
	return err
}

// Database owns the shared MySQL pool when database.enabled is set.
type Database struct {
	db *sql.DB
}

func (*Database) Name() string { return "database" }

func (*Database) Priorities() satellite.Priorities {
	return satellite.Priorities{Start: 50, Stop: 900}
}

func (d *Database) Start(ctx context.Context, a *api.API) error {
	cfg := a.Config().Database
	if !cfg.Enabled {
		return nil
	}
	db, err := mysql.Open(ctx, cfg)
	if err != nil {
		return err
	}
	d.db = db
	a.Set(ResourceDB, db)
	return nil
}

func (d *Database) Stop(_ context.Context, a *api.API) error {
	if d.db == nil {
		return nil
	}
	a.Set(ResourceDB, nil)
	err := d.db.Close()
	d.db = nil
	return err
}
