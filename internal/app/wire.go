package app

import (
	"context"
	"fmt"

	s3blob "github.com/alanyoungcy/predictpool/internal/blob/s3"
	"github.com/alanyoungcy/predictpool/internal/bus"
	"github.com/alanyoungcy/predictpool/internal/cache/redis"
	"github.com/alanyoungcy/predictpool/internal/config"
	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the application modes
// need. Store and cache fields are nil in paper mode; the service layer
// skips the corresponding side writes.
type Dependencies struct {
	// Journal stores (Postgres).
	MarketStore     domain.MarketStore
	TradeStore      domain.TradeStore
	ResolutionStore domain.ResolutionStore
	AuditStore      domain.AuditStore

	// Trade journal concrete store, needed by the archiver for ListBefore.
	tradeStore *postgres.TradeStore

	// Caches and coordination (Redis).
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// SignalBus carries market events. Redis-backed outside paper mode, an
	// in-process bus otherwise.
	SignalBus domain.SignalBus

	// Blob storage (S3), wired when archiving is enabled.
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if cfg.Mode == "paper" {
		// Paper mode needs no external services; events still flow so the
		// websocket hub works.
		deps.SignalBus = bus.NewMemory()
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	tradeStore := postgres.NewTradeStore(pool)
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.TradeStore = tradeStore
	deps.tradeStore = tradeStore
	deps.ResolutionStore = postgres.NewResolutionStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage, only when the archiver will run ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.tradeStore, deps.AuditStore)
	}

	return deps, cleanup, nil
}
