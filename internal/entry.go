// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/starford/vaultd/internal/index"
	"github.com/starford/vaultd/internal/mcpserver"
	"github.com/starford/vaultd/internal/models"
	"github.com/starford/vaultd/internal/noteservice"
	"github.com/starford/vaultd/internal/parser"
	"github.com/starford/vaultd/internal/rpc"
	"github.com/starford/vaultd/internal/storage"
)

// Run starts the application with the given options. It returns when the
// protocol input closes, on SIGINT/SIGTERM, or when ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		logOut: os.Stderr,
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Stdout carries the protocol, so logs never go there.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("transport", cfg.App.Transport),
		slog.Bool("watch", cfg.Vault.Watch),
		slog.Bool("notify_changes", cfg.App.NotifyChanges),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	if cfg.Vault.Lock {
		lock, err := storage.AcquireLock(cfg.Vault.Path)
		if err != nil {
			return fmt.Errorf("lock vault: %w", err)
		}
		logger.Info("Vault locked", slog.String("lock_file", lock.Path()))
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn("release vault lock failed", slog.String("error", err.Error()))
			}
		}()
	}

	provider, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	vault := storage.NewVault(provider)

	mgr := index.NewManager(vault, index.NewMemStore(), parser.New(), logger)
	svc := noteservice.NewService(vault, mgr, logger)

	// Run initial reindex. A failure leaves an empty index; clients can retry
	// with core.reindex.
	if _, err := svc.ReindexAll(ctx); err != nil {
		logger.Warn("initial reindex failed", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	var serve func() error
	var onChange index.EventCallback

	switch cfg.App.Transport {
	case TransportMCP:
		srv := mcpserver.New(svc, logger)
		serve = func() error { return srv.Serve(gCtx, app.stdin, app.stdout) }
		if cfg.App.NotifyChanges {
			onChange = srv.NotifyChange
		}
	default:
		srv := rpc.NewServer(rpc.NewMethods(svc), logger)
		serve = func() error { return srv.Serve(gCtx, app.stdin, app.stdout) }
		if cfg.App.NotifyChanges {
			onChange = func(kind index.ChangeKind, id models.NoteID) {
				err := srv.Notify(gCtx, rpc.MethodNoteChanged, rpc.NoteChange{Kind: kind, NoteID: id})
				if err != nil && !errors.Is(err, rpc.ErrClosed) && !errors.Is(err, context.Canceled) {
					logger.Warn("notify failed", slog.String("error", err.Error()))
				}
			}
		}
	}

	logger.Info("Server starting...", slog.String("transport", cfg.App.Transport))

	// Serve the protocol; its end stops everything else.
	g.Go(func() error {
		defer cancel()
		if err := serve(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s transport error: %w", cfg.App.Transport, err)
		}
		return nil
	})

	// Start file watcher.
	if cfg.Vault.Watch {
		g.Go(func() error {
			if err := index.Watch(gCtx, vault.Root(), svc, logger, onChange); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
