// Package sim implements the session/response simulation engine of parrot:
// a protocol-accurate, offline stand-in for a realtime conversational AI
// service.
//
// The central type is Client, the per-connection session orchestrator. It
// owns the session state, wires inbound wire events to the conversation
// context, and drives the streaming response generator, which emits wire
// events through a MessageSink. Conn wraps a Client behind a
// send/receive/close surface so calling code cannot distinguish it from a
// real network connection.
//
// A Client is single-session: create one per simulated connection. All
// exported methods are safe for concurrent use.
package sim

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parrotlabs/parrot/pkg/audio/cache"
	"github.com/parrotlabs/parrot/pkg/provider/transcribe"
	"github.com/parrotlabs/parrot/pkg/provider/vad"
	"github.com/parrotlabs/parrot/pkg/realtime"
	"github.com/parrotlabs/parrot/pkg/respond"
)

// DefaultSampleRate is the PCM sample rate of the simulated audio path:
// 16 kHz mono 16-bit.
const DefaultSampleRate = 16000

// Wire error codes emitted by the client.
const (
	ErrCodeInvalidEvent  = "invalid_event"
	ErrCodeInvalidAudio  = "invalid_audio"
	ErrCodeGeneration    = "response_generation_failed"
	ErrCodeResponseQueue = "response_queue_full"
)

var (
	// ErrAlreadyConnected is returned by Connect on a connected client.
	ErrAlreadyConnected = errors.New("sim: client already connected")

	// ErrNotConnected is returned when an operation needs an open session.
	ErrNotConnected = errors.New("sim: client not connected")
)

// MessageSink receives the client's outbound wire events. The protocol
// facade supplies a queue-backed implementation; the WebSocket front end
// supplies one that writes frames to the network.
type MessageSink interface {
	Send(evt realtime.Event) error
}

// Session is the per-connection session state.
type Session struct {
	// ID and ConversationID identify the session on the wire.
	ID             string
	ConversationID string

	// Config is the effective session configuration, updated by
	// session.update events.
	Config realtime.SessionConfig

	// CreatedAt is the session creation time.
	CreatedAt time.Time

	// inputBuffer accumulates inbound audio between append and commit.
	inputBuffer []byte
}

// Observer receives lifecycle notifications from a Client. All methods are
// called synchronously and must be cheap. The zero-value client uses a
// no-op observer.
type Observer interface {
	// SessionOpened / SessionClosed bracket the session lifecycle.
	SessionOpened()
	SessionClosed()

	// TemplateSelected fires once per response with the winning key, or
	// "(default)" when no template scored above zero.
	TemplateSelected(key string)

	// ResponseCompleted fires after each generation with its timing record
	// and terminal status.
	ResponseCompleted(t ResponseTiming, status string)

	// EventSent fires for every outbound wire event type.
	EventSent(eventType string)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()                           {}
func (nopObserver) SessionClosed()                           {}
func (nopObserver) TemplateSelected(string)                  {}
func (nopObserver) ResponseCompleted(ResponseTiming, string) {}
func (nopObserver) EventSent(string)                         {}

// genRequest is one queued response generation.
type genRequest struct {
	opts *realtime.ResponseOptions
}

// Client is the session/event orchestrator.
type Client struct {
	registry   *respond.Registry
	selector   *respond.Selector
	cache      *cache.Cache
	vadEngine  vad.Engine
	trEngine   transcribe.Engine
	observer   Observer
	timingSink TimingSink
	defaults   realtime.SessionConfig
	fallback   respond.Template
	sampleRate int

	mu               sync.Mutex
	sink             MessageSink
	sess             *Session
	conv             *respond.Context
	connected        bool
	activeResponseID string
	vadSess          vad.SessionHandle
	trSess           transcribe.SessionHandle
	timings          []ResponseTiming

	genCh  chan genRequest
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Client during construction.
type Option func(*Client)

// WithRegistry supplies the response template registry. Without it the
// client answers every request with the fallback template.
func WithRegistry(reg *respond.Registry) Option {
	return func(c *Client) {
		c.registry = reg
		c.selector = respond.NewSelector(reg)
	}
}

// WithCache supplies the audio cache used to resolve template file
// references. Without it, file-backed audio degrades to silence.
func WithCache(ac *cache.Cache) Option {
	return func(c *Client) { c.cache = ac }
}

// WithVAD supplies the speech-activity backend enabled when the session's
// turn detection is "server_vad".
func WithVAD(engine vad.Engine) Option {
	return func(c *Client) { c.vadEngine = engine }
}

// WithTranscriber supplies the transcription backend used on audio commit.
func WithTranscriber(engine transcribe.Engine) Option {
	return func(c *Client) { c.trEngine = engine }
}

// WithObserver registers a lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(c *Client) {
		if obs != nil {
			c.observer = obs
		}
	}
}

// WithTimingSink registers a persistent sink for response timing records,
// in addition to the in-memory window.
func WithTimingSink(sink TimingSink) Option {
	return func(c *Client) { c.timingSink = sink }
}

// WithSessionDefaults sets the session configuration template applied at
// connect, before any session.update patches.
func WithSessionDefaults(cfg realtime.SessionConfig) Option {
	return func(c *Client) { c.defaults = cfg }
}

// WithFallbackTemplate replaces the built-in default response used when no
// registered template scores above zero.
func WithFallbackTemplate(t respond.Template) Option {
	return func(c *Client) { c.fallback = t }
}

// NewClient creates an orchestrator with the given options. The client is
// inert until Connect is called.
func NewClient(opts ...Option) *Client {
	c := &Client{
		observer:   nopObserver{},
		sampleRate: DefaultSampleRate,
		fallback: respond.Template{
			Key:  "(default)",
			Text: "I'm not sure how to respond to that.",
		},
		defaults: realtime.SessionConfig{
			Model:             "parrot-sim-1",
			Modalities:        []string{"text", "audio"},
			Voice:             "echo",
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
		},
	}
	for _, o := range opts {
		o(c)
	}
	if c.registry == nil {
		c.registry = respond.NewRegistry()
		c.selector = respond.NewSelector(c.registry)
	}
	return c
}

// Connect opens the session: it binds the outbound sink, assigns fresh
// session identifiers, initialises the optional backends, starts the
// generation worker, and emits the session.created event carrying the
// effective configuration.
//
// Returns ErrAlreadyConnected on a connected client and an error if sink is
// nil; in both failure cases the client remains disconnected.
func (c *Client) Connect(ctx context.Context, sink MessageSink) error {
	if sink == nil {
		return fmt.Errorf("sim: connect: %w", errors.New("nil message sink"))
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}

	cfg := c.defaults
	cfg.ID = "sess_" + uuid.NewString()

	c.sink = sink
	c.sess = &Session{
		ID:             cfg.ID,
		ConversationID: "conv_" + uuid.NewString(),
		Config:         cfg,
		CreatedAt:      time.Now(),
	}
	c.conv = respond.NewContext()
	c.connected = true
	c.activeResponseID = ""
	c.genCh = make(chan genRequest, 64)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.done = make(chan struct{})

	// Optional backends degrade to "feature disabled" on failure.
	c.initBackendsLocked()

	sess := c.sess
	c.mu.Unlock()

	go c.generateLoop()

	c.observer.SessionOpened()
	c.send(realtime.Event{
		Type:      realtime.TypeSessionCreated,
		Session:   &sess.Config,
		CreatedAt: sess.CreatedAt.Unix(),
	})

	slog.Info("sim: session created",
		"session_id", sess.ID,
		"conversation_id", sess.ConversationID,
	)
	return nil
}

// initBackendsLocked creates the transcription session and, when turn
// detection asks for it, the VAD session. Must be called with c.mu held.
func (c *Client) initBackendsLocked() {
	if c.trEngine != nil && c.trSess == nil {
		sess, err := c.trEngine.NewSession(transcribe.Config{SampleRate: c.sampleRate})
		if err != nil {
			slog.Warn("sim: transcription backend unavailable", "err", err)
		} else {
			c.trSess = sess
		}
	}
	c.syncVADLocked()
}

// syncVADLocked brings the VAD session in line with the session's turn
// detection mode. Idempotent. Must be called with c.mu held.
func (c *Client) syncVADLocked() {
	td := c.sess.Config.TurnDetection
	wantVAD := td != nil && td.Type == realtime.TurnDetectionServerVAD

	switch {
	case wantVAD && c.vadSess == nil && c.vadEngine != nil:
		cfg := vad.Config{
			SampleRate:       c.sampleRate,
			SpeechThreshold:  td.Threshold,
			SilenceThreshold: td.Threshold / 2,
			HangoverFrames:   2,
		}
		sess, err := c.vadEngine.NewSession(cfg)
		if err != nil {
			slog.Warn("sim: speech-activity backend unavailable", "err", err)
			return
		}
		c.vadSess = sess

	case !wantVAD && c.vadSess != nil:
		if err := c.vadSess.Close(); err != nil {
			slog.Warn("sim: vad close", "err", err)
		}
		c.vadSess = nil
	}
}

// Close tears the session down: it stops the generation worker, releases
// the optional backends, clears the active response, and detaches the sink.
// Close is idempotent and never fails; partial teardown errors are logged
// and swallowed.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.activeResponseID = ""
	c.cancel()

	if c.vadSess != nil {
		if err := c.vadSess.Close(); err != nil {
			slog.Warn("sim: vad close", "err", err)
		}
		c.vadSess = nil
	}
	if c.trSess != nil {
		if err := c.trSess.Close(); err != nil {
			slog.Warn("sim: transcriber close", "err", err)
		}
		c.trSess = nil
	}
	sessID := c.sess.ID
	done := c.done
	c.mu.Unlock()

	<-done
	c.observer.SessionClosed()
	slog.Info("sim: session closed", "session_id", sessID)
	return nil
}

// SessionID returns the current session id, or "" when disconnected.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ""
	}
	return c.sess.ID
}

// ActiveResponseID returns the in-flight response id, or "" when idle.
func (c *Client) ActiveResponseID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeResponseID
}

// Context returns the conversation context. The caller must treat it as
// read-only; it is owned and mutated by the client.
func (c *Client) Context() *respond.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

// HandleRaw decodes one inbound JSON frame and dispatches it. A malformed
// frame produces a wire error event instead of killing the caller's read
// loop.
func (c *Client) HandleRaw(ctx context.Context, data []byte) {
	var evt realtime.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		c.sendError(ErrCodeInvalidEvent, "malformed JSON frame", err.Error())
		return
	}
	c.HandleEvent(ctx, evt)
}

// HandleEvent dispatches one inbound wire event to the matching handler.
// Unknown event types produce a wire error event; no inbound event can take
// the session down.
func (c *Client) HandleEvent(ctx context.Context, evt realtime.Event) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		slog.Debug("sim: event dropped, not connected", "type", evt.Type)
		return
	}

	switch evt.Type {
	case realtime.TypeSessionUpdate:
		c.handleSessionUpdate(evt.Session)
	case realtime.TypeAudioAppend:
		c.handleAudioAppend(evt.Audio)
	case realtime.TypeAudioCommit:
		c.handleAudioCommit()
	case realtime.TypeAudioClear:
		c.handleAudioClear()
	case realtime.TypeResponseCreate:
		c.handleResponseCreate(evt.Response)
	case realtime.TypeResponseCancel:
		c.handleResponseCancel(evt.ResponseID)
	default:
		c.sendError(ErrCodeInvalidEvent, fmt.Sprintf("unknown event type %q", evt.Type), "")
	}
}

// handleSessionUpdate merges the patch into the session configuration and
// re-syncs the speech-activity backend when the turn-detection mode flips.
func (c *Client) handleSessionUpdate(patch *realtime.SessionConfig) {
	c.mu.Lock()
	c.sess.Config.Merge(patch)
	c.syncVADLocked()
	cfg := c.sess.Config
	c.mu.Unlock()

	c.send(realtime.Event{
		Type:    realtime.TypeSessionUpdated,
		Session: &cfg,
	})
}

// handleAudioAppend decodes the base64 chunk into the session's inbound
// buffer and, with server-driven turn detection active, runs it through the
// speech-activity backend.
func (c *Client) handleAudioAppend(encoded string) {
	chunk, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		c.sendError(ErrCodeInvalidAudio, "audio chunk is not valid base64", err.Error())
		return
	}

	c.mu.Lock()
	c.sess.inputBuffer = append(c.sess.inputBuffer, chunk...)
	vadSess := c.vadSess
	c.mu.Unlock()

	if vadSess == nil {
		return
	}
	evt, err := vadSess.ProcessFrame(chunk)
	if err != nil {
		slog.Debug("sim: vad frame", "err", err)
		return
	}
	switch evt.Type {
	case vad.EventSpeechStart:
		c.send(realtime.Event{Type: realtime.TypeSpeechStarted})
	case vad.EventSpeechEnd:
		c.send(realtime.Event{Type: realtime.TypeSpeechStopped})
	}
}

// handleAudioCommit hands the buffered audio to the transcription backend
// and clears the buffer. A missing backend or an empty transcription result
// is reported as a failed transcription; the buffer is cleared regardless.
func (c *Client) handleAudioCommit() {
	c.mu.Lock()
	buffer := c.sess.inputBuffer
	c.sess.inputBuffer = nil
	trSess := c.trSess
	c.mu.Unlock()

	itemID := "item_" + uuid.NewString()
	c.send(realtime.Event{Type: realtime.TypeAudioCommitted, ItemID: itemID})

	if len(buffer) == 0 {
		return
	}
	if trSess == nil {
		c.send(realtime.Event{
			Type:   realtime.TypeInputTranscriptionFailed,
			ItemID: itemID,
			Error:  &realtime.ErrorDetail{Code: "transcription_unavailable", Message: "no transcription backend configured"},
		})
		return
	}

	// Feed the buffer chunk-wise, surfacing interim texts as deltas.
	var prev string
	for off := 0; off < len(buffer); off += ChunkSize {
		end := min(off+ChunkSize, len(buffer))
		res, err := trSess.TranscribeChunk(buffer[off:end])
		if err != nil {
			slog.Debug("sim: transcribe chunk", "err", err)
			continue
		}
		if res.Text != "" && res.Text != prev {
			delta := res.Text
			if len(prev) > 0 && len(res.Text) > len(prev) && res.Text[:len(prev)] == prev {
				delta = res.Text[len(prev):]
			}
			prev = res.Text
			c.send(realtime.Event{
				Type:   realtime.TypeInputTranscriptionDelta,
				ItemID: itemID,
				Delta:  delta,
			})
		}
	}

	final, err := trSess.Finalize()
	if err != nil || final.Text == "" {
		detail := "transcription produced no text"
		if err != nil {
			detail = err.Error()
		}
		c.send(realtime.Event{
			Type:   realtime.TypeInputTranscriptionFailed,
			ItemID: itemID,
			Error:  &realtime.ErrorDetail{Code: "transcription_failed", Message: detail},
		})
		return
	}

	c.mu.Lock()
	c.conv.ObserveUtterance(final.Text, time.Now())
	c.mu.Unlock()

	c.send(realtime.Event{
		Type:       realtime.TypeInputTranscriptionCompleted,
		ItemID:     itemID,
		Transcript: final.Text,
	})
}

// handleAudioClear drops any buffered inbound audio.
func (c *Client) handleAudioClear() {
	c.mu.Lock()
	c.sess.inputBuffer = nil
	c.mu.Unlock()
}

// handleResponseCreate records the request's preferences on the
// conversation context and queues the generation. Generations run strictly
// one at a time; queueing preserves arrival order.
func (c *Client) handleResponseCreate(opts *realtime.ResponseOptions) {
	c.mu.Lock()
	if opts != nil && len(opts.Modalities) > 0 {
		c.conv.PreferredModalities = opts.Modalities
	}
	c.conv.PendingFunctionCall = opts.WantsFunctionCall()
	c.mu.Unlock()

	select {
	case c.genCh <- genRequest{opts: opts}:
	default:
		c.sendError(ErrCodeResponseQueue, "too many pending response requests", "")
	}
}

// handleResponseCancel clears the active response id, which the generation
// loop observes between deltas and stops early. A non-matching id is
// ignored.
func (c *Client) handleResponseCancel(responseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeResponseID == "" {
		return
	}
	if responseID != "" && responseID != c.activeResponseID {
		return
	}
	c.activeResponseID = ""
}

// send stamps and emits one outbound event, notifying the observer. Sink
// failures are logged; the simulator has no way to recover a broken sink
// mid-session.
func (c *Client) send(evt realtime.Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink == nil {
		return
	}

	evt.EventID = "evt_" + uuid.NewString()
	if err := sink.Send(evt); err != nil {
		slog.Warn("sim: send failed", "type", evt.Type, "err", err)
		return
	}
	c.observer.EventSent(evt.Type)
}

// sendError emits a structured wire error event.
func (c *Client) sendError(code, message, details string) {
	c.send(realtime.Event{
		Type:  realtime.TypeError,
		Error: &realtime.ErrorDetail{Code: code, Message: message, Details: details},
	})
}
