package satellites

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gil0mendes/Stellar/internal/cache"
	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/satellite"
)

// Cache publishes the cache backend selected by cache.driver. The memory
// backend outlives restarts.
type Cache struct {
	memory *cache.Memory
}

func (*Cache) Name() string { return "cache" }

func (*Cache) Priorities() satellite.Priorities {
	return satellite.Priorities{Start: 150, Stop: 800}
}

func (c *Cache) Load(context.Context, *api.API) error {
	c.memory = cache.NewMemory()
	return nil
}

func (c *Cache) Start(_ context.Context, a *api.API) error {
	cfg := a.Config().Cache
	switch cfg.Driver {
	case "", "memory":
		if c.memory == nil {
			c.memory = cache.NewMemory()
		}
		a.Set(ResourceCache, c.memory)
	case "redis":
		client, err := api.Resource[*goredis.Client](a, ResourceRedis)
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		store, err := cache.NewRedis(client, cfg.Prefix)
		if err != nil {
			return err
		}
		a.Set(ResourceCache, store)
	default:
		return fmt.Errorf("unknown cache driver: %s", cfg.Driver)
	}
	return nil
}

func (*Cache) Stop(_ context.Context, a *api.API) error {
	a.Set(ResourceCache, nil)
	return nil
}
