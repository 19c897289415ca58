package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/drama/drama"
	"github.com/BaSui01/drama/internal/metrics"
	"github.com/BaSui01/drama/testutil/fixtures"
	"github.com/BaSui01/drama/testutil/mocks"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, backend *mocks.MockBackend) *drama.Engine {
	t.Helper()
	roster, err := drama.LoadRoster(strings.NewReader(fixtures.RosterYAML))
	require.NoError(t, err)
	e, err := drama.New(context.Background(), drama.DefaultConfig(), roster.Companions, backend, nil)
	require.NoError(t, err)
	return e
}

type testServer struct {
	*httptest.Server
	handler  *Handler
	registry *prometheus.Registry
	client   *http.Client
}

func newTestServer(t *testing.T, backend *mocks.MockBackend) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("drama", reg, nil)
	stage := NewStage(newTestEngine(t, backend), nil)
	h := NewHandler(stage, HandlerOptions{
		Collector: collector,
		Gatherer:  reg,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.CloseSessions()
		srv.Close()
	})
	return &testServer{Server: srv, handler: h, registry: reg, client: newTestClient(t)}
}

func (s *testServer) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(s.URL, "http")+"/ws", &websocket.DialOptions{HTTPClient: s.client})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readFrames(t *testing.T, ctx context.Context, conn *websocket.Conn) []Frame {
	t.Helper()
	var frames []Frame
	for {
		var f Frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		frames = append(frames, f)
		if f.Type != FrameMessage {
			return frames
		}
	}
}

func TestHandler_Health(t *testing.T) {
	s := newTestServer(t, mocks.NewMockBackend())

	resp, err := s.client.Get(s.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandler_Chats(t *testing.T) {
	s := newTestServer(t, mocks.NewMockBackend())

	resp, err := s.client.Get(s.URL + "/chats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var chats []ChatInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chats))
	ids := make([]string, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"anne_chat", "bob_chat"}, ids)
	assert.Equal(t, []string{"anne", "you", "reader"}, chats[0].Companions)
	assert.Equal(t, "fireplace", chats[0].Situation)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, mocks.NewMockBackend())

	resp, err := s.client.Post(s.URL+"/chats", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandler_WebSocketConversation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	backend := mocks.NewMockBackend().WithDefault("Ahoy")
	s := newTestServer(t, backend)
	conn := s.dial(t, ctx)

	require.NoError(t, wsjson.Write(ctx, conn, ClientFrame{Chat: "bob_chat", Text: "Hello Bob"}))
	frames := readFrames(t, ctx, conn)

	require.Len(t, frames, 3)
	assert.Equal(t, FrameMessage, frames[0].Type)
	assert.Equal(t, "you", frames[0].Companion)
	assert.Equal(t, "You", frames[0].Name)
	assert.Equal(t, "Hello Bob", frames[0].Text)

	assert.Equal(t, FrameMessage, frames[1].Type)
	assert.Equal(t, "bob", frames[1].Companion)
	assert.Equal(t, "Ahoy", frames[1].Text)
	assert.Equal(t, "bob_chat", frames[1].Chat)

	assert.Equal(t, Frame{Type: FrameTurnEnd, Chat: "bob_chat", Rounds: 1, Active: "you"}, frames[2])
	assert.Equal(t, 1, backend.CallCount())
}

func TestHandler_WebSocketErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	backend := mocks.NewMockBackend().WithError(errors.New("connection refused"))
	s := newTestServer(t, backend)
	conn := s.dial(t, ctx)

	tests := []struct {
		name  string
		in    ClientFrame
		msgs  int
		error string
	}{
		{name: "missing chat", in: ClientFrame{Text: "hi"}, error: "chat and text are required"},
		{name: "blank text", in: ClientFrame{Chat: "bob_chat", Text: "  "}, error: "chat and text are required"},
		{name: "unknown chat", in: ClientFrame{Chat: "nowhere", Text: "hi"}, error: "chat not found"},
		{name: "inference failure", in: ClientFrame{Chat: "bob_chat", Text: "Hello Bob"}, msgs: 1, error: "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, wsjson.Write(ctx, conn, tt.in))
			frames := readFrames(t, ctx, conn)
			require.Len(t, frames, tt.msgs+1)
			last := frames[len(frames)-1]
			assert.Equal(t, FrameError, last.Type)
			assert.Contains(t, last.Error, tt.error)
		})
	}
}

func TestHandler_SessionsAndShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := newTestServer(t, mocks.NewMockBackend())
	conn := s.dial(t, ctx)

	require.Eventually(t, func() bool { return s.handler.Sessions() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, gaugeValue(t, s.registry, "drama_sessions_active"))

	s.handler.CloseSessions()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	require.Eventually(t, func() bool { return s.handler.Sessions() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, gaugeValue(t, s.registry, "drama_sessions_active"))
}

func TestHandler_Metrics(t *testing.T) {
	s := newTestServer(t, mocks.NewMockBackend())

	for _, path := range []string{"/healthz", "/healthz", "/nowhere/42"} {
		resp, err := s.client.Get(s.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err := s.client.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	families, err := s.registry.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "drama_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			counts[labels["path"]+" "+labels["status"]] += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, counts["/healthz 2xx"])
	assert.Equal(t, 1.0, counts["other 4xx"])
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
