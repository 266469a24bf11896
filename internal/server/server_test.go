package server_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/parrotlabs/parrot/internal/config"
	"github.com/parrotlabs/parrot/internal/health"
	"github.com/parrotlabs/parrot/internal/server"
	"github.com/parrotlabs/parrot/pkg/realtime"
)

// testConfig returns a minimal configuration with one keyword template and
// a configured fallback.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Session: config.SessionConfig{
			Model:      "parrot-sim-1",
			Voice:      "echo",
			Modalities: []string{"text"},
		},
		Templates: []config.TemplateConfig{
			{
				Key:  "greeting",
				Text: "Hello!",
				Criteria: &config.CriteriaConfig{
					RequiredKeywords: []string{"hello"},
				},
			},
		},
		Fallback: &config.TemplateConfig{
			Key:  "shrug",
			Text: "Hmm.",
		},
	}
}

// startServer builds a Server from cfg and serves its handler from an
// httptest listener. The returned URL uses the ws scheme.
func startServer(t *testing.T, cfg *config.Config, opts ...server.Option) string {
	t.Helper()

	srv, err := server.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// dialRealtime opens a session and consumes the initial session.created
// event, returning it alongside the connection.
func dialRealtime(t *testing.T, wsURL string) (*websocket.Conn, realtime.Event) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL+"/v1/realtime", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })

	created := readEvent(t, conn)
	if created.Type != realtime.TypeSessionCreated {
		t.Fatalf("first event = %q, want %q", created.Type, realtime.TypeSessionCreated)
	}
	return conn, created
}

func readEvent(t *testing.T, conn *websocket.Conn) realtime.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var evt realtime.Event
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return evt
}

func writeEvent(t *testing.T, conn *websocket.Conn, evt realtime.Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, conn, evt); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

// collectResponse reads events until the trailing rate_limits.updated frame.
func collectResponse(t *testing.T, conn *websocket.Conn) []realtime.Event {
	t.Helper()
	var events []realtime.Event
	for {
		evt := readEvent(t, conn)
		events = append(events, evt)
		if evt.Type == realtime.TypeRateLimitsUpdated {
			return events
		}
	}
}

func textDone(t *testing.T, events []realtime.Event) realtime.Event {
	t.Helper()
	for _, evt := range events {
		if evt.Type == realtime.TypeTextDone {
			return evt
		}
	}
	t.Fatalf("no %s event in %d events", realtime.TypeTextDone, len(events))
	return realtime.Event{}
}

func TestServer_SessionCreatedOnConnect(t *testing.T) {
	t.Parallel()

	wsURL := startServer(t, testConfig())
	_, created := dialRealtime(t, wsURL)

	if created.Session == nil {
		t.Fatal("session.created missing session payload")
	}
	if created.Session.Model != "parrot-sim-1" {
		t.Errorf("model = %q, want parrot-sim-1", created.Session.Model)
	}
	if created.Session.ID == "" {
		t.Error("session.created missing session id")
	}
}

func TestServer_ResponseUsesFallback(t *testing.T) {
	t.Parallel()

	wsURL := startServer(t, testConfig())
	conn, _ := dialRealtime(t, wsURL)

	writeEvent(t, conn, realtime.Event{Type: realtime.TypeResponseCreate})
	events := collectResponse(t, conn)

	done := textDone(t, events)
	if done.Text != "Hmm." {
		t.Errorf("text.done = %q, want %q", done.Text, "Hmm.")
	}
}

func TestServer_SessionUpdateRoundTrip(t *testing.T) {
	t.Parallel()

	wsURL := startServer(t, testConfig())
	conn, _ := dialRealtime(t, wsURL)

	writeEvent(t, conn, realtime.Event{
		Type:    realtime.TypeSessionUpdate,
		Session: &realtime.SessionConfig{Voice: "alloy"},
	})

	updated := readEvent(t, conn)
	if updated.Type != realtime.TypeSessionUpdated {
		t.Fatalf("event = %q, want %q", updated.Type, realtime.TypeSessionUpdated)
	}
	if updated.Session.Voice != "alloy" {
		t.Errorf("voice = %q, want alloy", updated.Session.Voice)
	}
	if updated.Session.Model != "parrot-sim-1" {
		t.Errorf("model = %q, want parrot-sim-1 (unrelated field must survive)", updated.Session.Model)
	}
}

func TestServer_BinaryFramesIgnored(t *testing.T) {
	t.Parallel()

	wsURL := startServer(t, testConfig())
	conn, _ := dialRealtime(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{0x00, 0x01}); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	// The session must still be usable afterwards.
	writeEvent(t, conn, realtime.Event{Type: realtime.TypeResponseCreate})
	events := collectResponse(t, conn)
	if events[len(events)-1].Type != realtime.TypeRateLimitsUpdated {
		t.Errorf("last event = %q, want %q", events[len(events)-1].Type, realtime.TypeRateLimitsUpdated)
	}
}

func TestServer_MalformedFrameEmitsError(t *testing.T) {
	t.Parallel()

	wsURL := startServer(t, testConfig())
	conn, _ := dialRealtime(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	evt := readEvent(t, conn)
	if evt.Type != realtime.TypeError {
		t.Fatalf("event = %q, want %q", evt.Type, realtime.TypeError)
	}
	if evt.Error == nil || evt.Error.Code != "invalid_event" {
		t.Errorf("error = %+v, want code invalid_event", evt.Error)
	}
}

func TestServer_RejectsPlainHTTP(t *testing.T) {
	t.Parallel()

	wsURL := startServer(t, testConfig())
	httpURL := "http" + strings.TrimPrefix(wsURL, "ws")

	resp, err := http.Get(httpURL + "/v1/realtime")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		t.Errorf("status = %d, want a websocket upgrade failure", resp.StatusCode)
	}
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	wsURL := startServer(t, testConfig())
	httpURL := "http" + strings.TrimPrefix(wsURL, "ws")

	resp, err := http.Get(httpURL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_ReadyzReportsFailingChecker(t *testing.T) {
	t.Parallel()

	wsURL := startServer(t, testConfig(), server.WithHealthCheckers(health.Checker{
		Name:  "timing-store",
		Check: func(context.Context) error { return errors.New("connection refused") },
	}))
	httpURL := "http" + strings.TrimPrefix(wsURL, "ws")

	resp, err := http.Get(httpURL + "/readyz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	wsURL := startServer(t, testConfig())
	httpURL := "http" + strings.TrimPrefix(wsURL, "ws")

	resp, err := http.Get(httpURL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_ApplyConfigSwapsTemplates(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	updated := testConfig()
	updated.Fallback = &config.TemplateConfig{Key: "shrug", Text: "Beats me."}
	srv.ApplyConfig(cfg, updated)

	conn, _ := dialRealtime(t, wsURL)
	writeEvent(t, conn, realtime.Event{Type: realtime.TypeResponseCreate})
	done := textDone(t, collectResponse(t, conn))

	if done.Text != "Beats me." {
		t.Errorf("text.done = %q, want %q", done.Text, "Beats me.")
	}
}

func TestServer_ApplyConfigAdjustsLogLevel(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	level := new(slog.LevelVar)

	srv, err := server.New(cfg, server.WithLogLevelVar(level))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	srv.ApplyConfig(cfg, updated)

	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("level = %v, want %v", got, slog.LevelDebug)
	}
}

func TestServer_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv, err := server.New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	// Give the listener a moment to come up before tearing it down.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
