package repositories

import (
	"context"

	"skillcall/internal/core/ports"
	"skillcall/internal/infrastructure/repositories/memory"
	redisrepo "skillcall/internal/infrastructure/repositories/redis"
	"skillcall/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support. Presence and
// matchmaking prefer the shared store so multiple instances cooperate; the
// call store is memory unless explicitly configured distributed.
type RepositoryFactory struct {
	cfg         *config.Config
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		cfg:      cfg,
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreatePresenceRepository creates the presence registry (Redis or memory)
func (f *RepositoryFactory) CreatePresenceRepository() ports.PresenceRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewPresenceRepository(f.redisClient, f.cfg.Presence.TTL)
	}
	return memory.NewPresenceRepository(f.cfg.Presence.TTL)
}

// CreateMatchRepository creates the matchmaking queue store (Redis or memory)
func (f *RepositoryFactory) CreateMatchRepository(presence ports.PresenceRepository) ports.MatchRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewMatchRepository(f.redisClient)
	}
	return memory.NewMatchRepository(presence)
}

// CreateCallStore creates the call store. Memory is authoritative per
// instance; "redis" shares call state across instances with optimistic
// versioning and requires a live Redis connection.
func (f *RepositoryFactory) CreateCallStore() ports.CallStore {
	if f.cfg.Call.Store == "redis" && f.useRedis && f.redisClient != nil {
		f.logger.Info("using distributed call store")
		return redisrepo.NewCallStore(f.redisClient)
	}
	if f.cfg.Call.Store == "redis" {
		f.logger.Warn("distributed call store requested without Redis, using memory")
	}
	return memory.NewCallStore()
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
