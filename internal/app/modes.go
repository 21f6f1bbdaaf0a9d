package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/predictpool/internal/amm"
	"github.com/alanyoungcy/predictpool/internal/collateral"
	"github.com/alanyoungcy/predictpool/internal/crypto"
	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/ledger"
	"github.com/alanyoungcy/predictpool/internal/oracle"
	"github.com/alanyoungcy/predictpool/internal/server"
	"github.com/alanyoungcy/predictpool/internal/server/handler"
	"github.com/alanyoungcy/predictpool/internal/server/ws"
	"github.com/alanyoungcy/predictpool/internal/service"
)

// core bundles the domain objects shared by every mode: the engine, the
// oracle, and the services fronting them.
type core struct {
	engine        *amm.Engine
	oracle        *oracle.Oracle
	marketSvc     *service.MarketService
	resolutionSvc *service.ResolutionService
}

// buildCore constructs the ledger, collateral asset, engine, oracle, and
// services. On-chain collateral is used only in full mode with chain.enabled;
// every other combination runs the in-memory bank.
func (a *App) buildCore(ctx context.Context, deps *Dependencies) (*core, error) {
	minLiquidity, err := a.cfg.MinInitialLiquidityInt()
	if err != nil {
		return nil, fmt.Errorf("build core: %w", err)
	}

	asset, poolAddr, err := a.buildCollateral(ctx)
	if err != nil {
		return nil, err
	}

	led := ledger.New()
	engine := amm.NewEngine(led, asset, deps.SignalBus, amm.Config{
		Admin:               a.cfg.Market.Admin,
		PoolAddress:         poolAddr,
		MinInitialLiquidity: minLiquidity,
	}, a.logger)

	orc := oracle.New(engine, deps.SignalBus, oracle.Config{
		Admin:              a.cfg.Market.Admin,
		Address:            a.cfg.Oracle.Address,
		MaxResolutionDelay: a.cfg.Oracle.MaxResolutionDelay.Duration,
		MaxDisputePeriod:   a.cfg.Oracle.MaxDisputePeriod.Duration,
	}, a.logger)

	// The oracle resolves markets through the engine, so its address must be
	// authorized there. Configured resolvers are registered on both sides.
	admin := a.cfg.Market.Admin
	if err := engine.SetAuthorizedResolver(admin, a.cfg.Oracle.Address, true); err != nil {
		return nil, fmt.Errorf("build core: authorize oracle: %w", err)
	}
	for _, addr := range a.cfg.Oracle.Resolvers {
		if err := orc.AddResolver(admin, addr); err != nil {
			return nil, fmt.Errorf("build core: add resolver %s: %w", addr, err)
		}
		if err := engine.SetAuthorizedResolver(admin, addr, true); err != nil {
			return nil, fmt.Errorf("build core: authorize resolver %s: %w", addr, err)
		}
	}

	marketSvc := service.NewMarketService(
		engine, deps.MarketStore, deps.TradeStore, deps.PriceCache, deps.AuditStore, a.logger,
	)
	resolutionSvc := service.NewResolutionService(
		orc, deps.ResolutionStore, deps.AuditStore, a.logger,
	)

	return &core{
		engine:        engine,
		oracle:        orc,
		marketSvc:     marketSvc,
		resolutionSvc: resolutionSvc,
	}, nil
}

// buildCollateral returns the collateral asset and the pool address that
// custodies reserves.
func (a *App) buildCollateral(ctx context.Context) (domain.CollateralAsset, string, error) {
	if a.cfg.Mode == "full" && a.cfg.Chain.Enabled {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    a.cfg.Wallet.PrivateKey,
			EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      a.cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, "", fmt.Errorf("build collateral: load key: %w", err)
		}

		ethClient, err := ethclient.DialContext(ctx, a.cfg.Chain.RPCURL)
		if err != nil {
			return nil, "", fmt.Errorf("build collateral: dial rpc: %w", err)
		}
		a.closers = append(a.closers, ethClient.Close)

		erc20, err := collateral.NewERC20(ethClient, a.cfg.Chain.TokenAddress, keyHex, a.cfg.Chain.ChainID)
		if err != nil {
			return nil, "", fmt.Errorf("build collateral: %w", err)
		}

		a.logger.InfoContext(ctx, "collateral: using on-chain token",
			slog.String("token", a.cfg.Chain.TokenAddress),
			slog.Int64("chain_id", a.cfg.Chain.ChainID),
			slog.String("operator", erc20.Operator()),
		)
		return erc20, erc20.Operator(), nil
	}

	a.logger.InfoContext(ctx, "collateral: using in-memory bank",
		slog.String("pool", a.cfg.Market.PoolAddress),
	)
	return collateral.NewBank(a.cfg.Market.PoolAddress), a.cfg.Market.PoolAddress, nil
}

// PaperMode runs the engine against the in-memory bank with no persistence.
// The HTTP API is still served when enabled so the system can be exercised
// end to end.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("paper mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c)
	} else {
		a.logger.WarnContext(ctx, "paper mode with server disabled; nothing to do but wait")
		g.Go(func() error {
			<-ctx.Done()
			return ctx.Err()
		})
	}
	return g.Wait()
}

// ServerMode runs the HTTP API with Postgres journaling and Redis caching,
// using paper collateral.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, c)
	return g.Wait()
}

// FullMode runs every subsystem: the HTTP API, on-chain collateral when
// configured, and the settled-history archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c)
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		job := service.NewArchiveJob(
			deps.Archiver,
			deps.TradeStore,
			deps.LockManager,
			a.cfg.Archive.RetentionDays,
			a.cfg.Archive.Interval.Duration,
			a.cfg.Archive.LockTTL.Duration,
			a.logger,
		)
		g.Go(func() error {
			err := job.RunPeriodic(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// startHTTPServer adds the API server and websocket hub goroutines to the
// given errgroup. The server shuts down gracefully on context cancellation.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.logger, a.cfg.Mode, startedAt, c.marketSvc.Paused),
		Markets:     handler.NewMarketHandler(c.marketSvc, a.logger),
		Trades:      handler.NewTradeHandler(c.marketSvc, a.logger),
		Liquidity:   handler.NewLiquidityHandler(c.marketSvc, a.logger),
		Positions:   handler.NewPositionHandler(c.marketSvc, a.logger),
		Resolutions: handler.NewResolutionHandler(c.resolutionSvc, a.logger),
		Events:      handler.NewEventsHandler(deps.SignalBus, a.logger),
		Admin:       handler.NewAdminHandler(c.marketSvc, c.resolutionSvc, a.cfg.Market.Admin, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		AdminAPIKey:     a.cfg.Server.AdminAPIKey,
		RateLimiter:     deps.RateLimiter,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
