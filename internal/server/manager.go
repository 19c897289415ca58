package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config 服务器配置
type Config struct {
	// 监听地址；":0" 绑定随机端口
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`

	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`

	// 写入超时；WebSocket 会话在升级时清除写截止时间
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`

	// 关闭时等待进行中的回合结束的时长
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// TLS 证书与私钥；两者都设置时以 HTTPS 启动
	TLSCertFile string `yaml:"tls_cert_file" json:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" json:"tls_key_file" env:"TLS_KEY_FILE"`

	// AllowedOrigins 为 WebSocket 允许的跨域来源模式，空表示仅同源
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// TLSEnabled reports whether both certificate files are configured.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Manager owns the HTTP server that exposes a stage. It is started once
// and cannot be restarted after Shutdown.
type Manager struct {
	server *http.Server
	config Config
	logger *zap.Logger

	// serveErr receives the first error of the serving goroutine.
	serveErr chan error

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		server: &http.Server{
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			ErrorLog:     zap.NewStdLog(logger.Named("net_http")),
		},
		config:   config,
		logger:   logger.With(zap.String("component", "http_server")),
		serveErr: make(chan error, 1),
	}
}

// Start 绑定端口并在后台开始服务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return fmt.Errorf("server is closed")
	case m.listener != nil:
		return fmt.Errorf("server already started")
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = listener

	serve := func() error { return m.server.Serve(listener) }
	scheme := "http"
	if m.config.TLSEnabled() {
		serve = func() error { return m.server.ServeTLS(listener, m.config.TLSCertFile, m.config.TLSKeyFile) }
		scheme = "https"
	}
	m.logger.Info("serving stage",
		zap.String("scheme", scheme),
		zap.String("addr", listener.Addr().String()))

	go func() {
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("HTTP server failed", zap.Error(err))
			_ = listener.Close()
			m.serveErr <- err
		}
	}()
	return nil
}

// Run starts the server and blocks until ctx is cancelled or serving
// fails, then shuts down. It suits errgroup.Group.Go.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-m.serveErr:
	}

	// ctx is already done here; the shutdown gets its own deadline.
	if err := m.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// Shutdown stops accepting connections and waits up to ShutdownTimeout for
// open requests. Calling it again is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	ctx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// RegisterOnShutdown runs f when Shutdown starts, e.g. to close websocket
// sessions that http.Server does not track after hijacking.
func (m *Manager) RegisterOnShutdown(f func()) {
	m.server.RegisterOnShutdown(f)
}

// Addr 返回监听地址；启动后为实际绑定的地址
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}
