// Package runtime wires configuration, process state and the keeper
// services, and manages their lifecycle.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nebulafi/feedkeeper/internal/api"
	"github.com/nebulafi/feedkeeper/internal/app/services/fetcher"
	"github.com/nebulafi/feedkeeper/internal/app/services/report"
	"github.com/nebulafi/feedkeeper/internal/app/services/scheduler"
	"github.com/nebulafi/feedkeeper/internal/app/services/update"
	"github.com/nebulafi/feedkeeper/internal/app/state"
	"github.com/nebulafi/feedkeeper/internal/app/system"
	"github.com/nebulafi/feedkeeper/internal/chain"
	"github.com/nebulafi/feedkeeper/internal/config"
	"github.com/nebulafi/feedkeeper/pkg/logger"
)

// shutdownTimeout bounds how long Stop may take across all services.
const shutdownTimeout = 10 * time.Second

// Application owns process state and the keeper services.
type Application struct {
	cfg      *config.Config
	log      *logger.Logger
	st       *state.State
	stager   *update.MemoryStager
	services []system.Service
}

// NewApplication constructs an application from the environment-selected
// configuration file.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "keeper",
	})
	return NewWithConfig(cfg, log)
}

// NewWithConfig constructs an application with explicit configuration.
func NewWithConfig(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("keeper")
	}

	st := state.New()
	stager := update.NewMemoryStager()

	chains, err := buildChains(cfg)
	if err != nil {
		return nil, err
	}

	app := &Application{
		cfg:    cfg,
		log:    log,
		st:     st,
		stager: stager,
		services: []system.Service{
			scheduler.New(st, chains, stager, log.WithField("service", "scheduler")),
			fetcher.New(st, cfg.FetchInterval(), log.WithField("service", "fetcher")),
			report.New(st, cfg.StatusReportSchedule, log.WithField("service", "report")),
			api.NewServer(st, cfg.StatusListenAddress, log.WithField("service", "status-api")),
		},
	}
	return app, nil
}

// buildChains turns chain configuration into scheduler plans, one registry
// client per provider. Providers are ordered by name so the start stagger
// is deterministic.
func buildChains(cfg *config.Config) ([]scheduler.Chain, error) {
	chains := make([]scheduler.Chain, 0, len(cfg.Chains))
	for chainID, chainCfg := range cfg.Chains {
		plan := scheduler.Chain{
			ID:                            chainID,
			UpdateInterval:                chainCfg.UpdateInterval(),
			BatchSize:                     chainCfg.BatchSize,
			DeviationThresholdCoefficient: cfg.DeviationThresholdCoefficient,
		}

		names := make([]string, 0, len(chainCfg.Providers))
		for name := range chainCfg.Providers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			client, err := chain.NewClient(chain.ClientConfig{
				RPCURL:          chainCfg.Providers[name],
				RegistryAddress: chainCfg.RegistryAddress,
			})
			if err != nil {
				return nil, fmt.Errorf("chain %s provider %s: %w", chainID, name, err)
			}
			plan.Providers = append(plan.Providers, scheduler.Provider{Name: name, Registry: client})
		}
		chains = append(chains, plan)
	}
	return chains, nil
}

// State exposes process state, primarily for the status surface and tests.
func (a *Application) State() *state.State { return a.st }

// StagedUpdates returns the update decisions staged so far.
func (a *Application) StagedUpdates() []update.StagedUpdate { return a.stager.Staged() }

// Run starts every service and blocks until the context is cancelled,
// then stops them in reverse order.
func (a *Application) Run(ctx context.Context) error {
	started := make([]system.Service, 0, len(a.services))
	for _, svc := range a.services {
		if err := svc.Start(ctx); err != nil {
			a.stopAll(started)
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		started = append(started, svc)
		a.log.WithField("service", svc.Name()).Info("service started")
	}

	<-ctx.Done()
	a.log.Info("shutting down")
	a.stopAll(started)
	return nil
}

func (a *Application) stopAll(services []system.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if err := svc.Stop(ctx); err != nil {
			a.log.WithError(err).WithField("service", svc.Name()).Warn("service stop failed")
		}
	}
}
