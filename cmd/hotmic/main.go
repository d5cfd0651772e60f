// Command hotmic is a headless driver for the dictation engine. Hotkey events
// are read from stdin, a WAV file stands in for the microphone and injected
// text is rendered to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/hotmic/internal/config"
	"github.com/MrWong99/hotmic/internal/coordinator"
	"github.com/MrWong99/hotmic/internal/health"
	"github.com/MrWong99/hotmic/internal/history"
	"github.com/MrWong99/hotmic/internal/inject"
	"github.com/MrWong99/hotmic/internal/observe"
	"github.com/MrWong99/hotmic/internal/providers"
	"github.com/MrWong99/hotmic/pkg/audio"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	reloadEvery := flag.Duration("reload-interval", 5*time.Second, "config file poll interval")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hotmic: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hotmic: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("hotmic starting",
		"version", version,
		"config", *configPath,
		"provider", cfg.Dictation.Provider,
		"test_mode", cfg.Dictation.TestMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Init(ctx, observe.ProviderConfig{
		ServiceVersion:    version,
		RuntimeCollectors: true,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	factories := config.NewRegistry()
	registerBuiltinProviders(factories, cfg.Dictation.FinalizeTimeout)

	registry, err := providers.Build(cfg, factories, needsKey)
	if err != nil {
		// Providers that did build stay usable; the configured one is
		// checked again at every session start.
		slog.Warn("some providers could not be created", "err", err)
	}
	if len(registry.Entries()) == 0 {
		slog.Error("no usable provider configured")
		return 1
	}
	for _, name := range registry.Names() {
		slog.Info("provider registered", "name", name)
	}

	// ── History ───────────────────────────────────────────────────────────────
	store, checkers, closeStore, err := openHistory(ctx, cfg.History)
	if err != nil {
		slog.Error("failed to open history", "err", err)
		return 1
	}
	defer closeStore()

	// ── Capture and injection ─────────────────────────────────────────────────
	source, err := audio.OpenFileSource(cfg.Audio.Input)
	if err != nil {
		slog.Error("failed to open audio input", "input", cfg.Audio.Input, "err", err)
		return 1
	}

	var surfaceOpts []inject.TerminalOption
	if cfg.Inject.SystemClipboard {
		surfaceOpts = append(surfaceOpts, inject.WithClipboard(inject.SystemClipboard{}))
	}
	injector := inject.New(inject.NewTerminal(os.Stdout, surfaceOpts...))

	// ── Coordinator ───────────────────────────────────────────────────────────
	coord := coordinator.New(cfg, registry, source, injector,
		coordinator.WithEvents(coordinator.LogEvents{Logger: slog.Default()}),
		coordinator.WithHistory(store),
		coordinator.WithMetrics(tel.Metrics),
	)

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(c config.Change) {
		applyReload(c.Diff, c.New, &level, coord)
	}, config.WithInterval(*reloadEvery))
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}

	// ── Ops server ────────────────────────────────────────────────────────────
	currentConfig := func() *config.Config {
		if watcher != nil {
			return watcher.Current()
		}
		return cfg
	}
	checkers = append([]health.Checker{{
		Name: "provider",
		Check: func(context.Context) error {
			c := currentConfig()
			return registry.Validate(c.Dictation.Provider, c)
		},
	}}, checkers...)
	if watcher != nil {
		checkers = append(checkers, health.Checker{
			Name:  "config",
			Check: func(context.Context) error { return watcher.Err() },
		})
	}

	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		srv = newOpsServer(cfg.Server.ListenAddr, tel, store, health.New(checkers,
			health.WithStatus(func() health.Status {
				return health.Status{State: coord.State().String(), Message: coord.Status()}
			}),
		), func() string { return coord.State().String() })
		go func() {
			slog.Info("ops server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops server failed", "err", err)
			}
		}()
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- coord.Run(runCtx) }()
	if watcher != nil {
		go watcher.Run(runCtx)
	}

	fmt.Fprintln(os.Stderr, "hotmic ready: d=hotkey down, u=hotkey up, s=start button, c=cancel, q=quit")
	go func() {
		if err := readCommands(runCtx, os.Stdin, coord); err != nil {
			slog.Warn("stdin closed", "err", err)
		}
		cancel()
	}()

	<-runCtx.Done()
	slog.Info("shutting down")
	if err := <-done; err != nil {
		slog.Error("coordinator stopped", "err", err)
	}

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ops server shutdown", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// openHistory returns the transcript store: PostgreSQL when a DSN is set,
// otherwise an in-memory ring. The returned checkers probe the database.
func openHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, []health.Checker, func(), error) {
	if cfg.PostgresDSN == "" {
		return history.NewMemoryStore(cfg.Limit), nil, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("history: connect: %w", err)
	}
	store := history.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	slog.Info("history stored in postgres")
	return store, []health.Checker{{Name: "history", Check: pool.Ping}}, pool.Close, nil
}

// applyReload applies the hot-reloadable parts of a config change. The log
// level changes immediately; everything the coordinator owns is handed over
// and takes effect once no session is active.
func applyReload(diff config.ConfigDiff, cfg *config.Config, level *slog.LevelVar, coord *coordinator.Coordinator) {
	if len(diff.RestartRequired) > 0 {
		slog.Warn("some settings take effect after a restart", "settings", diff.RestartRequired)
	}
	if diff.LogLevelChanged {
		level.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.DictationChanged || diff.FiltersChanged || diff.ProvidersChanged {
		coord.ApplySettings(cfg)
		slog.Info("settings reloaded",
			"dictation", diff.DictationChanged,
			"filters", diff.FiltersChanged,
			"providers", diff.ProvidersChanged,
		)
	}
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
