package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/parrotlabs/parrot/pkg/realtime"
	"github.com/parrotlabs/parrot/pkg/sim"
)

// writeTimeout bounds a single outbound frame write. A client that stops
// reading for this long is considered gone.
const writeTimeout = 10 * time.Second

// wsSink writes simulator events to a WebSocket as JSON text frames. Send is
// called from the session's generation worker as well as from the read-loop
// goroutine (acks and error events) and from Connect; websocket.Conn.Write
// serialises concurrent writers internally.
type wsSink struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (s wsSink) Send(evt realtime.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("server: marshal event %q: %w", evt.Type, err)
	}
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("server: write event %q: %w", evt.Type, err)
	}
	return nil
}

// handleRealtime upgrades the request and runs one simulated session for the
// lifetime of the connection.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session aborted")

	snap := s.currentSnapshot()
	opts := []sim.Option{
		sim.WithRegistry(snap.registry),
		sim.WithCache(s.cache),
		sim.WithSessionDefaults(snap.defaults),
		sim.WithObserver(s.observer),
	}
	if snap.hasFallback {
		opts = append(opts, sim.WithFallbackTemplate(snap.fallback))
	}
	if s.vadEngine != nil {
		opts = append(opts, sim.WithVAD(s.vadEngine))
	}
	if s.trEngine != nil {
		opts = append(opts, sim.WithTranscriber(s.trEngine))
	}
	if s.timingSink != nil {
		opts = append(opts, sim.WithTimingSink(s.timingSink))
	}

	client := sim.NewClient(opts...)
	ctx := r.Context()

	if err := client.Connect(ctx, wsSink{ctx: ctx, conn: conn}); err != nil {
		slog.Error("session connect failed", "remote", r.RemoteAddr, "err", err)
		conn.Close(websocket.StatusInternalError, "connect failed")
		return
	}
	defer client.Close()

	slog.Info("session opened", "session_id", client.SessionID(), "remote", r.RemoteAddr)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				slog.Info("session closed", "session_id", client.SessionID())
			} else if ctx.Err() == nil {
				slog.Warn("session read failed", "session_id", client.SessionID(), "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			// Audio travels base64-encoded inside text frames; binary
			// frames are not part of the protocol.
			continue
		}
		client.HandleRaw(ctx, data)
	}
}
