// Package app assembles the daemon: registries, the engine, persistence,
// the tick loop, and the HTTP front end.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/raymoo/monoidal-effects/effects"
	"github.com/raymoo/monoidal-effects/effects/catalog"
	"github.com/raymoo/monoidal-effects/internal/host"
	"github.com/raymoo/monoidal-effects/internal/hud"
	servernet "github.com/raymoo/monoidal-effects/internal/net"
	"github.com/raymoo/monoidal-effects/internal/persist"
	"github.com/raymoo/monoidal-effects/internal/runner"
	"github.com/raymoo/monoidal-effects/logging"
	loggingSinks "github.com/raymoo/monoidal-effects/logging/sinks"
	"github.com/raymoo/monoidal-effects/monoid"
)

// Run wires the daemon together and serves until ctx is cancelled or the
// HTTP server fails. The engine loop always takes its shutdown snapshot
// before Run returns.
func Run(ctx context.Context, cfg Config) error {
	cfg = cfg.normalized()
	logger := log.Default()

	logConfig := logging.DefaultConfig()
	logConfig.EnabledSinks = cfg.LogSinks
	if cfg.LogJSONPath != "" {
		logConfig.JSON.FilePath = cfg.LogJSONPath
	}
	named, closeSinkFiles, err := buildSinks(logConfig)
	if err != nil {
		return err
	}
	defer closeSinkFiles()

	router, err := logging.NewRouter(logging.SystemClock(), logConfig, named)
	if err != nil {
		return fmt.Errorf("app: construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	roster := host.NewHost()
	quantities := monoid.NewRegistry()
	if err := monoid.RegisterStandard(quantities, roster); err != nil {
		return fmt.Errorf("app: register standard quantities: %w", err)
	}

	types := effects.NewTypeRegistry(quantities)
	resolver, err := catalog.Load(quantities, cfg.CatalogPaths...)
	if err != nil {
		return fmt.Errorf("app: load effect catalog: %w", err)
	}
	if err := resolver.Register(types); err != nil {
		return fmt.Errorf("app: install effect catalog: %w", err)
	}
	logger.Printf("catalog: %d effect types from %v", resolver.Len(), cfg.CatalogPaths)

	overlay := hud.NewTracker()
	mgr, err := effects.NewManager(effects.ManagerConfig{
		Quantities: quantities,
		Types:      types,
		Actors:     roster,
		Display:    overlay,
		Publisher:  router,
	})
	if err != nil {
		return fmt.Errorf("app: construct engine: %w", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = persist.DefaultDBPath()
	}
	db, err := persist.Open(dbPath)
	if err != nil {
		return fmt.Errorf("app: open store: %w", err)
	}
	defer db.Close()

	saver := persist.NewSaver(db, persist.SaverConfig{
		BackupEvery: cfg.BackupEvery,
		Keep:        cfg.KeepSnapshots,
		KeepBackups: cfg.KeepBackups,
		MaxAge:      cfg.SnapshotMaxAge,
		Publisher:   router,
	})
	restored, err := saver.LoadLatest(ctx, mgr)
	if err != nil {
		return fmt.Errorf("app: restore snapshot: %w", err)
	}
	if restored {
		logger.Printf("store: restored %d effect records from %s", mgr.Count(), dbPath)
	} else {
		logger.Printf("store: fresh start at %s", dbPath)
	}

	var srv *servernet.Server
	loop := runner.NewLoop(mgr, runner.Config{
		TickRate:        cfg.TickRate,
		CommandCapacity: cfg.CommandCapacity,
		PerActorLimit:   cfg.PerActorLimit,
		HUDRefreshEvery: cfg.HUDRefreshEvery,
		SaveInterval:    cfg.SaveInterval,
	}, runner.Deps{
		Roster:    roster,
		Overlay:   overlay,
		Store:     saver,
		Publisher: router,
	}, runner.Hooks{
		AfterTick: func(result runner.TickResult) {
			if srv != nil {
				srv.AfterTick(result)
			}
		},
	})
	srv = servernet.New(servernet.Deps{
		Loop:       loop,
		Roster:     roster,
		Overlay:    overlay,
		Catalog:    resolver,
		Quantities: quantities,
		Types:      types,
	}, servernet.Config{
		Version:   cfg.Version,
		TickRate:  cfg.TickRate,
		PushEvery: cfg.HUDPushEvery,
		Publisher: router,
	})

	for _, actor := range cfg.DemoActors {
		if ok, reason := loop.Enqueue(runner.Command{Type: runner.CommandJoin, ActorID: actor}); !ok {
			logger.Printf("demo actor %s not queued: %s", actor, reason)
		}
	}

	stop := make(chan struct{})
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(stop)
	}()

	httpServer := &http.Server{Addr: cfg.ListenAddr(), Handler: srv}
	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		close(stop)
		<-loopDone
		return fmt.Errorf("app: server failed: %w", err)
	}

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}

	close(stop)
	<-loopDone
	return nil
}

// buildSinks constructs the configured sinks. The returned closer releases
// any files opened for the JSON sink.
func buildSinks(cfg logging.Config) ([]logging.NamedSink, func(), error) {
	named := make([]logging.NamedSink, 0, len(cfg.EnabledSinks))
	var files []*os.File
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}

	for _, name := range cfg.EnabledSinks {
		switch name {
		case logging.SinkConsole:
			named = append(named, logging.NamedSink{
				Name: logging.SinkConsole,
				Sink: loggingSinks.NewConsoleSink(os.Stdout, cfg.Console),
			})
		case logging.SinkJSON:
			path := cfg.JSON.FilePath
			if path == "" {
				path = "data/events.jsonl"
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				closeFiles()
				return nil, nil, fmt.Errorf("app: open event log %s: %w", path, err)
			}
			files = append(files, f)
			named = append(named, logging.NamedSink{
				Name: logging.SinkJSON,
				Sink: loggingSinks.NewJSON(f, cfg.JSON.FlushInterval),
			})
		case logging.SinkMemory:
			named = append(named, logging.NamedSink{
				Name: logging.SinkMemory,
				Sink: loggingSinks.NewMemorySink(),
			})
		default:
			closeFiles()
			return nil, nil, fmt.Errorf("app: unknown log sink %q", name)
		}
	}
	return named, closeFiles, nil
}
