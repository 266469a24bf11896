package sim_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/parrotlabs/parrot/pkg/realtime"
	"github.com/parrotlabs/parrot/pkg/respond"
	"github.com/parrotlabs/parrot/pkg/sim"
)

func TestChunkPayload_Properties(t *testing.T) {
	lengths := []int{0, 1, 100, 3199, 3200, 3201, 6400, 7000, 64000}
	for _, n := range lengths {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i)
		}

		chunks := sim.ChunkPayload(payload, sim.ChunkSize)

		wantChunks := (n + sim.ChunkSize - 1) / sim.ChunkSize
		if len(chunks) != wantChunks {
			t.Errorf("len %d: %d chunks, want %d", n, len(chunks), wantChunks)
		}

		var rejoined []byte
		for _, chunk := range chunks {
			if len(chunk) > sim.ChunkSize {
				t.Errorf("len %d: oversized chunk of %d bytes", n, len(chunk))
			}
			rejoined = append(rejoined, chunk...)
		}
		if !bytes.Equal(rejoined, payload) {
			t.Errorf("len %d: concatenated chunks do not reproduce payload", n)
		}
	}
}

// recvT receives one event with a test deadline.
func recvT(t *testing.T, conn *sim.Conn) realtime.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	evt, err := conn.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	return evt
}

// sendT sends one event with a test deadline.
func sendT(t *testing.T, conn *sim.Conn, evt realtime.Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Send(ctx, evt); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

// newTestConn dials a client and consumes the session.created event.
func newTestConn(t *testing.T, opts ...sim.Option) (*sim.Conn, *sim.Client) {
	t.Helper()
	client := sim.NewClient(opts...)
	conn, err := sim.Dial(context.Background(), client)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	evt := recvT(t, conn)
	if evt.Type != realtime.TypeSessionCreated {
		t.Fatalf("first event = %q, want session.created", evt.Type)
	}
	if evt.Session == nil || evt.Session.ID == "" {
		t.Fatal("session.created carries no session id")
	}
	return conn, client
}

// collectResponse reads events until the rate_limits.updated that follows
// response.done.
func collectResponse(t *testing.T, conn *sim.Conn) []realtime.Event {
	t.Helper()
	var events []realtime.Event
	for {
		evt := recvT(t, conn)
		events = append(events, evt)
		if evt.Type == realtime.TypeRateLimitsUpdated {
			return events
		}
	}
}

func greetingRegistry(t *testing.T, text string, charDelay time.Duration) *respond.Registry {
	t.Helper()
	reg := respond.NewRegistry()
	err := reg.Register(respond.Template{
		Key:       "greeting",
		Text:      text,
		CharDelay: charDelay,
		Criteria:  &respond.Criteria{Priority: 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestGenerate_TextEventSequence(t *testing.T) {
	conn, _ := newTestConn(t, sim.WithRegistry(greetingRegistry(t, "Hi", 0)))

	sendT(t, conn, realtime.Event{
		Type:     realtime.TypeResponseCreate,
		Response: &realtime.ResponseOptions{Modalities: []string{"text"}},
	})
	events := collectResponse(t, conn)

	wantTypes := []string{
		realtime.TypeResponseCreated,
		realtime.TypeTextDelta,
		realtime.TypeTextDelta,
		realtime.TypeTextDone,
		realtime.TypeResponseDone,
		realtime.TypeRateLimitsUpdated,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(wantTypes), eventTypes(events))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event %d = %q, want %q", i, events[i].Type, want)
		}
	}

	if events[1].Delta != "H" || events[2].Delta != "i" {
		t.Errorf("deltas = %q, %q, want H, i", events[1].Delta, events[2].Delta)
	}
	if events[3].Text != "Hi" {
		t.Errorf("text.done text = %q, want Hi", events[3].Text)
	}
	if events[4].Status != realtime.StatusCompleted {
		t.Errorf("response.done status = %q, want completed", events[4].Status)
	}
	if events[0].ResponseID == "" || events[0].ResponseID != events[4].ResponseID {
		t.Errorf("response ids differ: created=%q done=%q", events[0].ResponseID, events[4].ResponseID)
	}
}

func TestGenerate_EmptyTextStillEmitsDone(t *testing.T) {
	conn, _ := newTestConn(t, sim.WithRegistry(greetingRegistry(t, "", 0)))

	sendT(t, conn, realtime.Event{
		Type:     realtime.TypeResponseCreate,
		Response: &realtime.ResponseOptions{Modalities: []string{"text"}},
	})
	events := collectResponse(t, conn)

	var foundDone bool
	for _, evt := range events {
		if evt.Type == realtime.TypeTextDelta {
			t.Error("unexpected text.delta for empty text")
		}
		if evt.Type == realtime.TypeTextDone {
			foundDone = true
			if evt.Text != "" {
				t.Errorf("text.done text = %q, want empty", evt.Text)
			}
		}
	}
	if !foundDone {
		t.Error("text.done missing for empty text")
	}
}

func TestGenerate_AudioChunking(t *testing.T) {
	payload := make([]byte, 7000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	reg := respond.NewRegistry()
	if err := reg.Register(respond.Template{
		Key:      "sound",
		Audio:    &respond.AudioSource{Data: payload},
		Criteria: &respond.Criteria{Priority: 10},
	}); err != nil {
		t.Fatal(err)
	}
	conn, _ := newTestConn(t, sim.WithRegistry(reg))

	sendT(t, conn, realtime.Event{
		Type:     realtime.TypeResponseCreate,
		Response: &realtime.ResponseOptions{Modalities: []string{"audio"}},
	})
	events := collectResponse(t, conn)

	var rejoined []byte
	var deltas int
	for _, evt := range events {
		if evt.Type != realtime.TypeAudioDelta {
			continue
		}
		deltas++
		chunk, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil {
			t.Fatalf("audio delta is not valid base64: %v", err)
		}
		rejoined = append(rejoined, chunk...)
	}

	if deltas != 3 { // 3200 + 3200 + 600
		t.Errorf("audio deltas = %d, want 3", deltas)
	}
	if !bytes.Equal(rejoined, payload) {
		t.Error("concatenated audio chunks do not reproduce the payload")
	}
	if eventTypes(events)[len(events)-2] != realtime.TypeResponseDone {
		t.Errorf("penultimate event = %q, want response.done", events[len(events)-2].Type)
	}
}

func TestGenerate_AudioFallsBackToSilence(t *testing.T) {
	reg := respond.NewRegistry()
	if err := reg.Register(respond.Template{
		Key:      "mute",
		Criteria: &respond.Criteria{Priority: 10},
	}); err != nil {
		t.Fatal(err)
	}
	conn, _ := newTestConn(t, sim.WithRegistry(reg))

	sendT(t, conn, realtime.Event{
		Type:     realtime.TypeResponseCreate,
		Response: &realtime.ResponseOptions{Modalities: []string{"audio"}},
	})
	events := collectResponse(t, conn)

	var total int
	for _, evt := range events {
		if evt.Type == realtime.TypeAudioDelta {
			chunk, err := base64.StdEncoding.DecodeString(evt.Delta)
			if err != nil {
				t.Fatal(err)
			}
			total += len(chunk)
		}
	}
	// 1 second of silence at 16kHz mono 16-bit.
	if total != 32000 {
		t.Errorf("silence payload = %d bytes, want 32000", total)
	}
}

func TestGenerate_FunctionCall(t *testing.T) {
	reg := respond.NewRegistry()
	if err := reg.Register(respond.Template{
		Key:  "weather",
		Text: "checking",
		FunctionCall: &respond.FunctionCall{
			Name:      "get_weather",
			Arguments: map[string]any{"city": "Berlin"},
		},
		Criteria: &respond.Criteria{Priority: 10},
	}); err != nil {
		t.Fatal(err)
	}
	conn, _ := newTestConn(t, sim.WithRegistry(reg))

	sendT(t, conn, realtime.Event{
		Type:     realtime.TypeResponseCreate,
		Response: &realtime.ResponseOptions{Modalities: []string{"text"}},
	})
	events := collectResponse(t, conn)

	var delta, done *realtime.Event
	for i := range events {
		switch events[i].Type {
		case realtime.TypeFunctionCallArgumentsDelta:
			delta = &events[i]
		case realtime.TypeFunctionCallArgumentsDone:
			done = &events[i]
		case realtime.TypeTextDelta, realtime.TypeTextDone:
			t.Errorf("unexpected %s in function-call response", events[i].Type)
		}
	}
	if delta == nil || done == nil {
		t.Fatalf("missing function call events: %v", eventTypes(events))
	}
	if done.Name != "get_weather" {
		t.Errorf("function name = %q, want get_weather", done.Name)
	}
	if delta.CallID == "" || delta.CallID != done.CallID {
		t.Errorf("call ids differ: %q vs %q", delta.CallID, done.CallID)
	}
	if done.Arguments != `{"city":"Berlin"}` {
		t.Errorf("arguments = %s", done.Arguments)
	}
}

func TestGenerate_SynthesisedPlaceholderCall(t *testing.T) {
	conn, _ := newTestConn(t, sim.WithRegistry(greetingRegistry(t, "Hi", 0)))

	sendT(t, conn, realtime.Event{
		Type: realtime.TypeResponseCreate,
		Response: &realtime.ResponseOptions{
			ToolChoice: "required",
			Tools:      []realtime.Tool{{Type: "function", Name: "lookup_order"}},
		},
	})
	events := collectResponse(t, conn)

	var done *realtime.Event
	for i := range events {
		if events[i].Type == realtime.TypeFunctionCallArgumentsDone {
			done = &events[i]
		}
	}
	if done == nil {
		t.Fatalf("no synthesised function call: %v", eventTypes(events))
	}
	if done.Name != "lookup_order" {
		t.Errorf("placeholder call name = %q, want lookup_order", done.Name)
	}
	if done.Arguments != "{}" {
		t.Errorf("placeholder arguments = %s, want {}", done.Arguments)
	}
}

func TestGenerate_SequentialResponsesDoNotInterleave(t *testing.T) {
	conn, _ := newTestConn(t, sim.WithRegistry(greetingRegistry(t, "hello world", time.Millisecond)))

	for range 2 {
		sendT(t, conn, realtime.Event{
			Type:     realtime.TypeResponseCreate,
			Response: &realtime.ResponseOptions{Modalities: []string{"text"}},
		})
	}

	first := collectResponse(t, conn)
	second := collectResponse(t, conn)

	// Every event of the first response precedes the second's
	// response.created by construction of the stream; verify ids are
	// consistent and disjoint.
	firstID := first[0].ResponseID
	secondID := second[0].ResponseID
	if firstID == secondID {
		t.Fatal("both responses share one id")
	}
	for _, evt := range first {
		if evt.ResponseID != "" && evt.ResponseID != firstID {
			t.Errorf("first response stream carries foreign id %q", evt.ResponseID)
		}
	}
	if first[len(first)-2].Type != realtime.TypeResponseDone {
		t.Errorf("first stream does not end with response.done: %v", eventTypes(first))
	}
	if second[0].Type != realtime.TypeResponseCreated {
		t.Errorf("second stream starts with %q, want response.created", second[0].Type)
	}
}

func TestGenerate_CancellationStopsDeltas(t *testing.T) {
	long := make([]byte, 0, 400)
	for range 400 {
		long = append(long, 'a')
	}
	conn, client := newTestConn(t,
		sim.WithRegistry(greetingRegistry(t, string(long), 5*time.Millisecond)))

	sendT(t, conn, realtime.Event{
		Type:     realtime.TypeResponseCreate,
		Response: &realtime.ResponseOptions{Modalities: []string{"text"}},
	})

	created := recvT(t, conn)
	if created.Type != realtime.TypeResponseCreated {
		t.Fatalf("first event = %q, want response.created", created.Type)
	}
	// Wait for the stream to start, then cancel mid-flight.
	if evt := recvT(t, conn); evt.Type != realtime.TypeTextDelta {
		t.Fatalf("second event = %q, want text.delta", evt.Type)
	}
	sendT(t, conn, realtime.Event{
		Type:       realtime.TypeResponseCancel,
		ResponseID: created.ResponseID,
	})

	events := collectResponse(t, conn)

	var deltas int
	for _, evt := range events {
		switch evt.Type {
		case realtime.TypeTextDelta:
			deltas++
		case realtime.TypeTextDone:
			t.Error("text.done emitted for a cancelled response")
		case realtime.TypeResponseDone:
			if evt.Status != realtime.StatusCancelled {
				t.Errorf("response.done status = %q, want cancelled", evt.Status)
			}
		}
	}
	if deltas >= len(long) {
		t.Errorf("all %d deltas were emitted despite cancellation", deltas)
	}
	if got := client.ActiveResponseID(); got != "" {
		t.Errorf("active response id = %q after done, want empty", got)
	}
}

func eventTypes(events []realtime.Event) []string {
	types := make([]string, len(events))
	for i, evt := range events {
		types[i] = evt.Type
	}
	return types
}
