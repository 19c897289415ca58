package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/drama/drama"
	"github.com/BaSui01/drama/internal/ctxkeys"
	"github.com/BaSui01/drama/internal/metrics"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxFrameBytes bounds a single client frame.
const maxFrameBytes = 64 << 10

// HandlerOptions configures NewHandler.
type HandlerOptions struct {
	Logger    *zap.Logger
	Collector *metrics.Collector
	// Gatherer serves MetricsPath; nil disables the endpoint.
	Gatherer    prometheus.Gatherer
	MetricsPath string
	// AllowedOrigins are websocket origin patterns besides the same host.
	AllowedOrigins []string
}

// Handler serves /healthz, /chats, the metrics endpoint and the /ws chat
// transport.
type Handler struct {
	stage     *Stage
	logger    *zap.Logger
	collector *metrics.Collector
	origins   []string
	root      http.Handler

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHandler builds the HTTP surface around stage.
func NewHandler(stage *Stage, opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		stage:     stage,
		logger:    logger.With(zap.String("component", "http_handler")),
		collector: opts.Collector,
		origins:   opts.AllowedOrigins,
		conns:     make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	routes := []string{"/healthz", "/chats", "/ws"}
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /chats", h.handleChats)
	mux.HandleFunc("GET /ws", h.handleWS)
	if opts.Gatherer != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
		routes = append(routes, path)
	}

	h.root = Chain(mux,
		Recovery(h.logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(opts.Collector, routes...),
		RequestLogger(h.logger),
	)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleChats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stage.Chats())
}

// handleWS runs one session: every client frame is posted to its chat and
// answered with message frames followed by turn_end, or by an error frame.
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	// The server read/write timeouts would otherwise cut long sessions.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	h.collector.SessionOpened()
	h.track(conn)
	defer h.untrack(conn)
	defer h.collector.SessionClosed()

	ctx := r.Context()
	sessionID, _ := ctxkeys.SessionID(ctx)
	logger := h.logger.With(zap.String("session_id", sessionID))
	logger.Info("session opened", zap.String("remote_addr", r.RemoteAddr))

	for {
		var in ClientFrame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				logger.Info("session closed")
			default:
				logger.Debug("session ended", zap.Error(err))
			}
			return
		}

		if in.Chat == "" || strings.TrimSpace(in.Text) == "" {
			if err := wsjson.Write(ctx, conn, ErrorFrame(in.Chat, errors.New("chat and text are required"))); err != nil {
				return
			}
			continue
		}

		end, err := h.stage.Post(ctx, in.Chat, in.Text, func(f Frame) error {
			return wsjson.Write(ctx, conn, f)
		})
		if err != nil {
			if errors.Is(err, drama.ErrChatNotFound) {
				logger.Info("unknown chat", zap.String("chat_id", in.Chat))
			} else {
				logger.Warn("post failed", zap.String("chat_id", in.Chat), zap.Error(err))
			}
			end = ErrorFrame(in.Chat, err)
		}
		if err := wsjson.Write(ctx, conn, end); err != nil {
			logger.Debug("write failed", zap.Error(err))
			return
		}
	}
}

func (h *Handler) track(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.CloseNow()
}

// Sessions returns the number of open websocket sessions.
func (h *Handler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseSessions ends every websocket session with StatusGoingAway.
// http.Server.Shutdown does not wait for hijacked connections.
func (h *Handler) CloseSessions() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
