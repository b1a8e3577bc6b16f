package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/partyquest/internal/admin"
	"github.com/playperu/partyquest/internal/config"
	"github.com/playperu/partyquest/internal/database"
	"github.com/playperu/partyquest/internal/feed"
	"github.com/playperu/partyquest/internal/handler/health"
	"github.com/playperu/partyquest/internal/kv"
	"github.com/playperu/partyquest/internal/ledger"
	"github.com/playperu/partyquest/internal/migrations"
	"github.com/playperu/partyquest/internal/offline"
	"github.com/playperu/partyquest/internal/photos"
	"github.com/playperu/partyquest/internal/retry"
	"github.com/playperu/partyquest/internal/server"
	"github.com/playperu/partyquest/internal/session"
	"github.com/playperu/partyquest/internal/shop"
	"github.com/playperu/partyquest/internal/slots"
	"github.com/playperu/partyquest/internal/store"
	"github.com/playperu/partyquest/internal/treasure"
	"github.com/playperu/partyquest/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LocalDBPath), 0o755); err != nil {
		return fmt.Errorf("creating local db dir: %w", err)
	}

	// --- Main store ---
	db, err := database.Open(ctx, cfg.DBTarget())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	n, err := migrations.Run(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to database", "remote", database.IsRemote(cfg.DBTarget()), "migrations_applied", n)

	broker := feed.NewBroker()
	st := store.New(db, broker)
	if err := st.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}

	// --- Device-local store ---
	local, err := kv.Open(ctx, cfg.LocalDBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer local.Close()

	bucket, err := photos.NewBucket(cfg.PhotoDir, cfg.PublicBaseURL, logger)
	if err != nil {
		return fmt.Errorf("opening photo bucket: %w", err)
	}

	// --- Services ---
	write := retry.Policy{MaxRetries: cfg.RetryMax, Base: cfg.RetryBase, Cap: cfg.RetryCap, Timeout: cfg.WriteTimeout}
	upload := write.WithTimeout(cfg.UploadTimeout)

	queue := offline.New(local, logger)
	sessions := session.NewManager(local, st, logger)
	led := ledger.New(st, write, logger)
	wf := workflow.New(st, led, bucket, queue, sessions, workflow.Config{Write: write, Upload: upload}, logger)
	sl := slots.New(led, queue, nil, logger)
	console := admin.New(st, led, bucket, logger,
		func(_ context.Context, id string) { wf.Reset(id) },
		func(_ context.Context, id string) { sl.Forget(id) },
		func(ctx context.Context, id string) {
			if err := sessions.ClearSkip(ctx, id); err != nil {
				logger.Warn("clearing skip flag", "session_id", id, "error", err)
			}
		},
	)

	storeCheck := health.CheckerFunc(st.Ping)
	monitor := offline.NewMonitor(queue, map[string]health.Checker{"store": storeCheck}, cfg.CheckInterval, cfg.FlushTimeout, logger)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Admins:   st,
		Players:  st,
		Sessions: sessions,
		Workflow: wf,
		Shop:     shop.New(st, led, write, logger),
		Slots:    sl,
		Treasure: treasure.New(st, bucket, queue, write, upload, logger),
		Queue:    queue,
		Console:  console,
		Feed:     broker,
		Checks: map[string]health.Checker{
			"store": storeCheck,
			"local": health.CheckerFunc(local.Ping),
		},
		PhotoDir:      cfg.PhotoDir,
		PublicBaseURL: cfg.PublicBaseURL,
		SPADir:        cfg.SPADir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		return monitor.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
