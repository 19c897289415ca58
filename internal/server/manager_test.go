package server

import (
	"context"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func testManagerConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// --- DefaultConfig ---

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.TLSEnabled())

	cfg.TLSCertFile = "cert.pem"
	assert.False(t, cfg.TLSEnabled(), "both files are required")
	cfg.TLSKeyFile = "key.pem"
	assert.True(t, cfg.TLSEnabled())
}

// --- Start / Shutdown lifecycle ---

func TestManager_StartAndShutdown(t *testing.T) {
	m := NewManager(okHandler(), testManagerConfig(), zap.NewNop())
	assert.Equal(t, "127.0.0.1:0", m.Addr())

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	assert.NotEqual(t, "127.0.0.1:0", m.Addr(), "Addr reports the bound port")

	client := newTestClient(t)
	resp, err := client.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestManager_DoubleStart(t *testing.T) {
	m := NewManager(okHandler(), testManagerConfig(), nil)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := NewManager(okHandler(), testManagerConfig(), nil)
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_ListenError(t *testing.T) {
	first := NewManager(okHandler(), testManagerConfig(), nil)
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	cfg := testManagerConfig()
	cfg.Addr = first.Addr()
	second := NewManager(okHandler(), cfg, nil)
	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestManager_RunStopsWithContext(t *testing.T) {
	m := NewManager(okHandler(), testManagerConfig(), nil)
	shutdownHook := make(chan struct{})
	m.RegisterOnShutdown(func() { close(shutdownHook) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Addr() != "127.0.0.1:0" }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Error(t, m.Start(), "a stopped manager cannot restart")
	select {
	case <-shutdownHook:
	case <-time.After(time.Second):
		t.Fatal("shutdown hook not called")
	}
}

func TestManager_RunReportsServeError(t *testing.T) {
	cfg := testManagerConfig()
	dir := t.TempDir()
	cfg.TLSCertFile = filepath.Join(dir, "missing-cert.pem")
	cfg.TLSKeyFile = filepath.Join(dir, "missing-key.pem")
	m := NewManager(okHandler(), cfg, nil)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}
