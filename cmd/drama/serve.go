package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/drama/config"
	"github.com/BaSui01/drama/internal/server"
	"github.com/BaSui01/drama/internal/telemetry"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve chats over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Bool("watch", false, "Reload the roster when the file changes")
	cmd.Flags().Duration("watch-interval", time.Second, "Roster poll interval")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting Drama",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		defer func() {
			if err := providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.newEngine(ctx, cfg.Roster)
	if err != nil {
		return err
	}
	stage := server.NewStage(engine, logger)

	opts := server.HandlerOptions{
		Logger:         logger,
		Collector:      a.collector,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if cfg.Metrics.Enabled {
		opts.Gatherer = a.registry
		opts.MetricsPath = cfg.Metrics.Path
	}
	handler := server.NewHandler(stage, opts)

	manager := server.NewManager(handler, cfg.Server, logger)
	manager.RegisterOnShutdown(handler.CloseSessions)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		interval, _ := cmd.Flags().GetDuration("watch-interval")
		watcher, err := config.NewFileWatcher(cfg.Roster, func(evt config.FileEvent) {
			a.reload(gctx, stage, evt)
		},
			config.WithPollInterval(interval),
			config.WithWatcherLogger(logger),
		)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}

	logger.Info("serving", zap.String("addr", cfg.Server.Addr))
	err = g.Wait()
	logger.Info("Drama stopped")
	return err
}

// reload rebuilds the engine from the changed roster and installs it on
// stage. A removed or invalid roster keeps the running engine.
func (a *app) reload(ctx context.Context, stage *server.Stage, evt config.FileEvent) {
	logger := a.logger.With(zap.String("path", evt.Path), zap.String("op", evt.Op.String()))
	if evt.Op == config.FileOpRemove {
		logger.Warn("roster removed, keeping current companions")
		return
	}

	engine, err := a.newEngine(ctx, evt.Path)
	if err != nil {
		logger.Error("roster reload failed", zap.Error(err))
		return
	}
	stage.Swap(engine)
	logger.Info("roster reloaded", zap.Int("companions", len(engine.Companions())))
}
