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

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/telhawk-systems/secmon/internal/bus"
	"github.com/telhawk-systems/secmon/internal/config"
	"github.com/telhawk-systems/secmon/internal/dedup"
	"github.com/telhawk-systems/secmon/internal/handlers"
	"github.com/telhawk-systems/secmon/internal/logging"
	"github.com/telhawk-systems/secmon/internal/models"
	"github.com/telhawk-systems/secmon/internal/monitor"
	"github.com/telhawk-systems/secmon/internal/notify"
	"github.com/telhawk-systems/secmon/internal/repository"
	"github.com/telhawk-systems/secmon/internal/router"
	"github.com/telhawk-systems/secmon/internal/rules"
	"github.com/telhawk-systems/secmon/internal/scorer"
	"github.com/telhawk-systems/secmon/internal/server"
	"github.com/telhawk-systems/secmon/internal/window"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("service failed", logging.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	sc, err := scorer.New(cfg.Scorer.Weights, cfg.Scorer.HalfLife, nil)
	if err != nil {
		return err
	}

	ruleSet := rules.Defaults()
	if cfg.Rules.File != "" {
		ruleSet, err = rules.LoadFile(cfg.Rules.File)
		if err != nil {
			return err
		}
		logger.Info("rules loaded", slog.String("file", cfg.Rules.File), slog.Int("count", len(ruleSet)))
	}
	engine := rules.NewEngine(ruleSet, logger)

	deduper, err := buildDedup(cfg, logger)
	if err != nil {
		return err
	}

	channels := buildChannels(cfg, logger)
	rt, err := router.New(router.Config{
		QueueSize:      cfg.Router.QueueSize,
		Workers:        cfg.Router.Workers,
		RetryCount:     cfg.Router.RetryCount,
		AttemptTimeout: cfg.Router.AttemptTimeout,
		BackoffBase:    cfg.Router.BackoffBase,
		Routes:         buildRoutes(cfg, channels, logger),
	}, channels, logger)
	if err != nil {
		return err
	}

	repo, err := buildRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	var publisher monitor.AlertPublisher
	if cfg.Bus.Enabled {
		busCfg := bus.DefaultConfig()
		busCfg.URL = cfg.Bus.URL
		busCfg.SubjectPrefix = cfg.Bus.SubjectPrefix
		p, err := bus.NewPublisher(busCfg)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
		logger.Info("alert bus enabled", slog.String("url", cfg.Bus.URL))
	}

	mon, err := monitor.New(monitor.Config{
		ClockSkew:    cfg.Monitor.ClockSkew,
		EvalMode:     cfg.Rules.EvalMode,
		EvalInterval: cfg.Rules.EvalInterval,
	}, monitor.Deps{
		Scorer:    sc,
		Window:    window.New(cfg.Window.Capacity, cfg.Window.Retention, nil),
		Engine:    engine,
		Dedup:     deduper,
		Repo:      repo,
		Router:    rt,
		Publisher: publisher,
	}, logger)
	if err != nil {
		return err
	}

	mon.Start()
	defer mon.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handlers.NewHandler(mon, repo, logger)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("secmon listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// buildChannels constructs every channel with configured credentials.
// Unconfigured channels are skipped with a warning; routes referencing them
// are filtered before the router validates.
func buildChannels(cfg *config.Config, logger *slog.Logger) []notify.Channel {
	var channels []notify.Channel

	if cfg.Channels.Slack.WebhookURL != "" {
		channels = append(channels, notify.NewSlack(cfg.Channels.Slack.WebhookURL))
	} else {
		logger.Warn("slack channel not configured, skipping")
	}
	if cfg.Channels.Email.RelayURL != "" {
		channels = append(channels, notify.NewEmail(cfg.Channels.Email.RelayURL, cfg.Channels.Email.From, cfg.Channels.Email.To))
	} else {
		logger.Warn("email channel not configured, skipping")
	}
	if cfg.Channels.PagerDuty.RoutingKey != "" {
		channels = append(channels, notify.NewPagerDuty(cfg.Channels.PagerDuty.URL, cfg.Channels.PagerDuty.RoutingKey))
	} else {
		logger.Warn("pagerduty channel not configured, skipping")
	}
	if cfg.Channels.Webhook.URL != "" {
		channels = append(channels, notify.NewWebhook(cfg.Channels.Webhook.URL))
	} else {
		logger.Warn("webhook channel not configured, skipping")
	}

	return channels
}

// buildRoutes converts the configured routing table, dropping entries for
// channels that were not built.
func buildRoutes(cfg *config.Config, channels []notify.Channel, logger *slog.Logger) map[models.Severity][]string {
	available := make(map[string]bool, len(channels))
	for _, ch := range channels {
		available[ch.Name()] = true
	}

	routes := make(map[models.Severity][]string, len(cfg.Router.Routes))
	for severity, names := range cfg.Router.Routes {
		var kept []string
		for _, name := range names {
			if available[name] {
				kept = append(kept, name)
			} else {
				logger.Warn("route drops unconfigured channel",
					logging.Severity(severity), logging.Channel(name))
			}
		}
		if len(kept) > 0 {
			routes[models.Severity(severity)] = kept
		}
	}
	return routes
}

func buildDedup(cfg *config.Config, logger *slog.Logger) (dedup.Deduplicator, error) {
	switch cfg.Dedup.Backend {
	case config.DedupBackendRedis:
		return dedup.NewRedis(cfg.Dedup.RedisURL, cfg.Dedup.Window, logger)
	default:
		return dedup.NewMemory(cfg.Dedup.Window, cfg.Dedup.SweepInterval, nil), nil
	}
}

// buildRepository returns the in-memory store, or the PostgreSQL archive
// with migrations applied when the database is enabled.
func buildRepository(cfg *config.Config, logger *slog.Logger) (repository.Repository, error) {
	if !cfg.Database.Enabled {
		return repository.NewMemoryRepository(), nil
	}

	connString := cfg.Database.Postgres.ConnString()

	logger.Info("running database migrations")
	m, err := migrate.New("file://"+cfg.Database.MigrationsPath, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repository.NewPostgresRepository(context.Background(), connString)
}
