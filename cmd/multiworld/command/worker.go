package command

import (
	"fmt"

	"github.com/pixil98/go-multiworld/internal/driver"
	"github.com/pixil98/go-multiworld/internal/listener"
	"github.com/pixil98/go-multiworld/internal/messaging"
	"github.com/pixil98/go-multiworld/internal/rando"
	"github.com/pixil98/go-multiworld/internal/server"
	service "github.com/pixil98/go-service"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	cfg.Logging.Apply()

	// Create the item bus broker
	broker, err := cfg.Nats.BuildBroker()
	if err != nil {
		return nil, fmt.Errorf("creating item bus: %w", err)
	}

	// Load the ruleset the server generates against
	rulesets, err := cfg.Storage.BuildRulesetStore()
	if err != nil {
		return nil, fmt.Errorf("creating ruleset store: %w", err)
	}
	spec := rulesets.Get(cfg.Server.Ruleset)
	if spec == nil {
		return nil, fmt.Errorf("ruleset %q not found", cfg.Server.Ruleset)
	}
	logic, err := spec.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving ruleset %q: %w", cfg.Server.Ruleset, err)
	}

	results, err := cfg.Storage.BuildResultStore()
	if err != nil {
		return nil, fmt.Errorf("creating result store: %w", err)
	}

	// Assemble the coordination server
	var engineOpts []rando.EngineOpt
	if cfg.Server.MaxAttempts > 0 {
		engineOpts = append(engineOpts, rando.WithMaxAttempts(cfg.Server.MaxAttempts))
	}
	if cfg.Server.ValidateWorlds {
		engineOpts = append(engineOpts, rando.WithValidation())
	}

	srv := server.NewServer(logic, messaging.NewItemBus(broker), results,
		server.WithSpoilerDir(cfg.Server.SpoilerDir),
		server.WithEngineOptions(engineOpts...),
	)

	// Create listeners
	cm := listener.NewConnectionManager(srv)
	listeners := make(service.WorkerList, len(cfg.Listeners))
	for i, l := range cfg.Listeners {
		lst, err := l.BuildListener(cm)
		if err != nil {
			return nil, fmt.Errorf("creating listener %d: %w", i, err)
		}
		listeners[fmt.Sprintf("listener-%d", i)] = lst
	}

	workers := service.WorkerList{
		"nats": broker,
		"ping-sweep": driver.NewSweepDriver(
			[]driver.Sweeper{server.NewPingSweep(srv, cfg.Server.pingInterval())},
			driver.WithInterval(cfg.Server.pingInterval()),
		),
		"resend-sweep": driver.NewSweepDriver(
			[]driver.Sweeper{server.NewResendSweep(srv, cfg.Server.resendInterval())},
			driver.WithInterval(cfg.Server.resendInterval()),
		),
		"listeners": &listeners,
	}

	if cfg.AdminPort != 0 {
		workers["admin"] = server.NewAdminConsole(cfg.AdminPort, srv)
	}

	return workers, nil
}
