package sim

import (
	"context"
	"errors"
	"sync"

	"github.com/parrotlabs/parrot/pkg/realtime"
)

// ErrConnClosed is returned by Conn operations after Close.
var ErrConnClosed = errors.New("sim: connection closed")

// outboundBuffer is the capacity of the facade's outbound event queue. A
// client that never drains Recv stalls generation once the queue fills,
// mirroring network backpressure.
const outboundBuffer = 256

// Conn presents a Client as an opaque bidirectional message channel with
// the same send/receive/close/iterate surface as a real transport, so
// calling code cannot tell the simulator from a genuine network connection.
//
// Outbound events from the orchestrator land in an internal queue drained
// by Recv (or the Events channel); Send feeds inbound events to the
// orchestrator's dispatch loop. All methods are safe for concurrent use.
type Conn struct {
	client *Client
	out    chan realtime.Event
	in     chan realtime.Event

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// queueSink redirects the client's outbound emission into the facade queue.
type queueSink struct {
	out chan realtime.Event
	ctx context.Context
}

// Send enqueues one outbound event, blocking under backpressure until the
// connection closes.
func (s queueSink) Send(evt realtime.Event) error {
	select {
	case s.out <- evt:
		return nil
	case <-s.ctx.Done():
		return ErrConnClosed
	}
}

// Dial connects client and returns the facade around it. The session.created
// event is already queued when Dial returns. The caller owns the Conn and
// must call Close.
func Dial(ctx context.Context, client *Client) (*Conn, error) {
	connCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		client: client,
		out:    make(chan realtime.Event, outboundBuffer),
		in:     make(chan realtime.Event, 64),
		ctx:    connCtx,
		cancel: cancel,
	}

	if err := client.Connect(ctx, queueSink{out: c.out, ctx: connCtx}); err != nil {
		cancel()
		return nil, err
	}

	// Dedicated inbound pump: messages are dispatched one at a time, in
	// arrival order, off the caller's goroutine.
	go c.receiveLoop()

	return c, nil
}

func (c *Conn) receiveLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case evt := <-c.in:
			c.client.HandleEvent(c.ctx, evt)
		}
	}
}

// Send delivers one inbound event to the simulator. It blocks while the
// inbound queue is full and fails once the connection or ctx is closed.
func (c *Conn) Send(ctx context.Context, evt realtime.Event) error {
	select {
	case c.in <- evt:
		return nil
	case <-c.ctx.Done():
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next outbound event, blocking until one is available,
// the connection closes, or ctx is cancelled.
func (c *Conn) Recv(ctx context.Context) (realtime.Event, error) {
	select {
	case evt := <-c.out:
		return evt, nil
	case <-c.ctx.Done():
		// Drain events already queued before the close.
		select {
		case evt := <-c.out:
			return evt, nil
		default:
			return realtime.Event{}, ErrConnClosed
		}
	case <-ctx.Done():
		return realtime.Event{}, ctx.Err()
	}
}

// Events exposes the outbound queue for range-based iteration. The channel
// is not closed on Close; use Recv when termination signalling matters.
func (c *Conn) Events() <-chan realtime.Event { return c.out }

// Client returns the underlying session orchestrator, for callers that need
// its introspection surface (session id, timings, conversation context).
func (c *Conn) Client() *Client { return c.client }

// Close tears the connection down: it cancels pending Send/Recv calls and
// disconnects the underlying orchestrator. Idempotent, always nil.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.client.Close()
	})
	return nil
}
