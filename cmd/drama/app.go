package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/drama/config"
	"github.com/BaSui01/drama/drama"
	"github.com/BaSui01/drama/internal/metrics"
	"github.com/BaSui01/drama/llm"
	"github.com/BaSui01/drama/llm/tokenizer"
	"github.com/BaSui01/drama/persistence"
)

// app holds the long-lived dependencies shared by every engine built during
// one process, so a roster reload keeps the store and metrics.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	backend   llm.Backend
	db        persistence.Database
}

// loadConfig reads --config and applies --roster on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if roster, _ := cmd.Flags().GetString("roster"); roster != "" {
		cfg.Roster = roster
	}
	return cfg, nil
}

// newApp connects the store and the inference backend described by cfg.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	if cfg.Metrics.Enabled {
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.collector = metrics.NewCollector(cfg.Metrics.Namespace, a.registry, logger)
	}

	counter, err := tokenizer.New(cfg.Tokenizer.Kind, cfg.Engine.Model.Model)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(cfg.LLM, logger, llm.WithTokenCounter(counter))
	if err != nil {
		return nil, err
	}
	retrying := llm.NewRetryBackend(client, cfg.LLM.Retry, logger)
	a.backend = llm.NewInstrumentedBackend(retrying, a.collector, logger)

	db, err := persistence.New(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.db = persistence.Instrument(db, string(cfg.Store.Type), a.collector)

	logger.Info("dependencies ready",
		zap.String("store", string(cfg.Store.Type)),
		zap.String("llm", cfg.LLM.BaseURL),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	return a, nil
}

// newEngine loads the roster at path and restores the stored chats.
func (a *app) newEngine(ctx context.Context, path string) (*drama.Engine, error) {
	roster, err := drama.LoadRosterFile(path)
	if err != nil {
		return nil, err
	}

	engineCfg := a.cfg.Engine
	if roster.DefaultSituation != "" {
		engineCfg.DefaultSituation = roster.DefaultSituation
	}
	engine, err := drama.New(ctx, engineCfg, roster.Companions, a.backend, a.db,
		drama.WithLogger(a.logger),
		drama.WithMetrics(a.collector),
	)
	if err != nil {
		return nil, err
	}

	if err := engine.LoadChats(ctx, nil); err != nil {
		return nil, err
	}
	return engine, nil
}

func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
