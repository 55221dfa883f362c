// Package main provides the fleetsync pipeline CLI.
//
// fleetsync reconciles fleet telemetry from the bus-tracking integration
// API into PostgreSQL: trip schedules, per-trip odometer estimates and
// classified route violations, plus a denormalized join view for
// reporting.
//
// Usage:
//
//	fleetsync [options] <command>
//
// Commands:
//
//	sync        Reconcile the trip schedule for the lookback window.
//	sweep       Remove canceled or withdrawn trips from the history.
//	odometer    Back-fill missing odometer readings from positions.
//	violations  Ingest and classify route non-conformities.
//	refresh     Rebuild the violation/schedule join view once.
//	run         Run all stages continuously until interrupted.
//
// Options:
//
//	-config PATH   YAML config file (default: fleetsync.yaml if present)
//
// Connection settings may also come from the environment:
// POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DATABASE, POSTGRES_USER,
// POSTGRES_PASSWORD, CLICKHOUSE_HOST, NATS_URL, FLEETSYNC_UPSTREAM_URL,
// FLEETSYNC_TOKEN_URL, FLEETSYNC_USERNAME, FLEETSYNC_PASSWORD,
// FLEETSYNC_CLIENT_CODE.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fleetsync/internal/config"
	"fleetsync/internal/events"
	"fleetsync/internal/globalbus"
	"fleetsync/internal/journal"
	"fleetsync/internal/matview"
	"fleetsync/internal/odometer"
	"fleetsync/internal/pipeline"
	"fleetsync/internal/reconciler"
	"fleetsync/internal/storage"
	"fleetsync/internal/violations"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default: fleetsync.yaml if present)")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		fmt.Fprintln(os.Stderr, "usage: fleetsync [options] <sync|sweep|odometer|violations|refresh|run>")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	switch cmd {
	case "sync":
		app.reconciler.Sync(ctx)
	case "sweep":
		app.runner.RunSweep(ctx)
	case "odometer":
		app.estimator.Run(ctx)
	case "violations":
		app.classifier.Ingest(ctx)
		app.classifier.Classify(ctx)
	case "refresh":
		if _, err := app.refresher.Refresh(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error refreshing join view: %v\n", err)
			os.Exit(1)
		}
	case "run":
		app.runner.Start(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(2)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat("fleetsync.yaml"); err == nil {
		return config.Load("fleetsync.yaml")
	}
	cfg := config.Default()
	return cfg, nil
}

// app bundles the wired pipeline components for command dispatch.
type app struct {
	pg         *storage.PostgresDB
	ch         *storage.ClickHouseDB
	jr         *journal.Journal
	bus        *events.Publisher
	reconciler *reconciler.Reconciler
	estimator  *odometer.Estimator
	classifier *violations.Classifier
	refresher  *matview.Refresher
	runner     *pipeline.Runner
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("opening PostgreSQL: %w", err)
	}
	if err := pg.CreateSchema(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	a := &app{pg: pg}

	// Raw position retention is optional.
	var archive storage.PositionArchive
	if cfg.ClickHouse.Host != "" {
		ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Host:     cfg.ClickHouse.Host,
			Port:     cfg.ClickHouse.Port,
			Database: cfg.ClickHouse.Database,
			User:     cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
		})
		if err != nil {
			log.Printf("❌ ClickHouse unavailable, position archive disabled: %v", err)
		} else if err := ch.CreateSchema(ctx); err != nil {
			log.Printf("❌ ClickHouse schema, position archive disabled: %v", err)
			_ = ch.Close()
		} else {
			a.ch = ch
			archive = ch
		}
	}

	jr, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening run journal: %w", err)
	}
	a.jr = jr

	bus, err := events.Connect(cfg.NATS.URL)
	if err != nil {
		log.Printf("❌ NATS unavailable, event publishing disabled: %v", err)
		bus = nil
	}
	a.bus = bus

	tokens := globalbus.NewOAuthTokenProvider(cfg.Upstream.TokenURL, cfg.Upstream.Username, cfg.Upstream.Password)
	client := globalbus.NewClient(globalbus.Config{
		BaseURL:               cfg.Upstream.BaseURL,
		ClientIntegrationCode: cfg.Upstream.ClientIntegrationCode,
		Timeout:               cfg.Upstream.Timeout.Std(),
	}, tokens, nil)

	a.reconciler = reconciler.New(pg, client, cfg.Pipeline.LookbackDays)
	a.estimator = odometer.New(pg, client, archive)

	var notify violations.Notifier
	if bus != nil {
		notify = bus
	}
	a.classifier = violations.New(pg, client, notify, violations.Options{
		Workers:      cfg.Pipeline.Workers,
		PageSize:     cfg.Pipeline.PageSize,
		EvidenceHost: cfg.Pipeline.EvidenceHost,
	})
	a.refresher = matview.New(pg, cfg.Pipeline.ViewBatchSize)

	a.runner = pipeline.New(a.reconciler, a.estimator, a.classifier, a.refresher, jr, bus, pipeline.Options{
		SweepDays:       cfg.Pipeline.SweepDays,
		CycleInterval:   cfg.Pipeline.CycleInterval.Std(),
		RefreshInterval: cfg.Pipeline.RefreshInterval.Std(),
	})
	return a, nil
}

func (a *app) close() {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.jr != nil {
		_ = a.jr.Close()
	}
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
}
