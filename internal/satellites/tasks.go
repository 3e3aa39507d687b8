package satellites

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gil0mendes/Stellar/internal/config"
	"github.com/gil0mendes/Stellar/internal/task"
	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/satellite"
)

// Tasks runs the background task processor when tasks.enabled is set. Tasks
// are stored in MySQL when the database satellite is running and in memory
// otherwise.
type Tasks struct {
	memory  *task.MemoryStore
	service *task.Service
	cancel  context.CancelFunc
	done    chan struct{}
}

func (*Tasks) Name() string { return "tasks" }

func (*Tasks) Priorities() satellite.Priorities {
	return satellite.Priorities{Start: 200, Stop: 100}
}

func (t *Tasks) Load(context.Context, *api.API) error {
	t.memory = task.NewMemoryStore()
	return nil
}

func (t *Tasks) Start(ctx context.Context, a *api.API) error {
	cfg := a.Config().Tasks
	if !cfg.Enabled {
		return nil
	}
	log := a.Logger("tasks")

	store, err := t.openStore(ctx, a)
	if err != nil {
		return err
	}
	queue, err := openQueue(a, cfg)
	if err != nil {
		return err
	}

	t.service = task.NewService(store, queue, task.DefaultMaxRetries)
	processor := task.NewProcessor(a, store, queue, queue,
		task.WithWorkerCount(cfg.Workers),
		task.WithProcessorLogger(log),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		if err := processor.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("task processor exited", slog.Any("error", err))
		}
	}()

	a.Set(ResourceTasks, t.service)
	log.Info("task processor started", slog.String("driver", cfg.Driver), slog.Int("workers", cfg.Workers))
	return nil
}

func (t *Tasks) Stop(_ context.Context, a *api.API) error {
	if t.cancel == nil {
		return nil
	}
	a.Set(ResourceTasks, nil)
	t.cancel()
	<-t.done
	err := t.service.Close()
	t.cancel, t.done, t.service = nil, nil, nil
	return err
}

func (t *Tasks) openStore(ctx context.Context, a *api.API) (task.Store, error) {
	if db, err := api.Resource[*sql.DB](a, ResourceDB); err == nil {
		return task.NewMySQLStore(ctx, db)
	}
	if t.memory == nil {
		t.memory = task.NewMemoryStore()
	}
	return t.memory, nil
}

func openQueue(a *api.API, cfg config.TasksConfig) (task.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemoryQueue(cfg.QueueSize), nil
	case "redis":
		client, err := api.Resource[*goredis.Client](a, ResourceRedis)
		if err != nil {
			return nil, fmt.Errorf("redis task queue: %w", err)
		}
		return task.NewRedisQueue(client, cfg.Redis.Queue, cfg.Redis.BlockWait)
	case "rabbitmq":
		return task.NewRabbitMQQueue(cfg.RabbitMQ)
	default:
		return nil, fmt.Errorf("unknown task queue driver: %s", cfg.Driver)
	}
}
