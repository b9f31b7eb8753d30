package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tenanttags/internal/enrichment"
	"tenanttags/internal/resolver"
	"tenanttags/internal/shaper"
	"tenanttags/pkg/config"
	"tenanttags/pkg/tenants"
)

// App holds the process-wide dependencies shared by the hook service and tagctl.
// Nothing in it is mutated per login event.
type App struct {
	Config       config.Config
	Log          *zap.SugaredLogger
	Orchestrator *enrichment.Orchestrator
}

// Deps are optional backends; nil members select dev fallbacks.
type Deps struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Registry prometheus.Registerer
}

// New builds the enrichment pipeline described by cfg.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger, deps Deps) (*App, error) {
	var dir tenants.Directory
	if cfg.Enrichment.TenantSourceStrategy == config.StrategyExternalLookup {
		d, err := Directory(ctx, cfg, log, deps)
		if err != nil {
			return nil, err
		}
		dir = d
	}
	res, err := resolver.New(ctx, cfg.Enrichment, dir)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	sh, err := shaper.New(shaper.Options{
		Pattern:    cfg.Enrichment.TenantIDPattern,
		MaxTenants: cfg.Enrichment.MaxTenantsPerPrincipal,
		MaxBytes:   cfg.Enrichment.MaxClaimBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("shaper: %w", err)
	}
	opts := []enrichment.Option{enrichment.WithLogger(log)}
	if deps.Registry != nil {
		opts = append(opts, enrichment.WithMetrics(enrichment.NewMetrics(deps.Registry)))
	}
	log.Infow("enrichment pipeline ready",
		"strategy", cfg.Enrichment.TenantSourceStrategy,
		"namespace", cfg.Enrichment.ClaimNamespace,
		"max_tenants", cfg.Enrichment.MaxTenantsPerPrincipal,
		"allow_tenantless", cfg.Enrichment.AllowTenantless,
		"lookup_timeout", cfg.Enrichment.LookupTimeout())
	return &App{
		Config:       cfg,
		Log:          log,
		Orchestrator: enrichment.New(res, sh, cfg.Enrichment.ClaimNamespace, opts...),
	}, nil
}

// Directory picks the principal directory: postgres when a pool is present, otherwise the
// in-memory seed, optionally behind the redis cache.
func Directory(ctx context.Context, cfg config.Config, log *zap.SugaredLogger, deps Deps) (tenants.Directory, error) {
	var dir tenants.Directory
	if deps.Pool != nil {
		if err := tenants.EnsureSchema(ctx, deps.Pool); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		if err := tenants.SeedFromJSON(ctx, deps.Pool, cfg.Lookup.SeedJSON); err != nil {
			log.Warnw("seed", "err", err)
		}
		dir = tenants.NewPostgresDirectory(deps.Pool, log)
	} else {
		dir = tenants.NewMemoryDirectoryFromSeed(cfg.Lookup.SeedJSON, log)
	}
	return tenants.NewCachedDirectory(dir, deps.Redis, cfg.Lookup.CacheTTL(), log), nil
}
