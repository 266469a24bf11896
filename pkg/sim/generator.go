package sim

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parrotlabs/parrot/pkg/audio"
	"github.com/parrotlabs/parrot/pkg/realtime"
	"github.com/parrotlabs/parrot/pkg/respond"
)

// ChunkSize is the audio streaming chunk size in bytes: 200 ms at 16 kHz
// mono 16-bit PCM.
const ChunkSize = 3200

// silenceFallback is the duration of generated silence used when a template
// requests audio but supplies none.
const silenceFallback = time.Second

// staticRateLimits is the descriptor set carried on rate_limits.updated.
// The simulator never actually throttles.
var staticRateLimits = []realtime.RateLimit{
	{Name: "requests", Limit: 1000, Remaining: 999, ResetSeconds: 60},
	{Name: "tokens", Limit: 50000, Remaining: 49750, ResetSeconds: 60},
}

// ChunkPayload splits payload into size-byte pieces; the final piece is
// shorter when the payload length is not a multiple of size. A nil payload
// yields no chunks.
func ChunkPayload(payload []byte, size int) [][]byte {
	if size <= 0 || len(payload) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(payload)+size-1)/size)
	for off := 0; off < len(payload); off += size {
		end := min(off+size, len(payload))
		chunks = append(chunks, payload[off:end])
	}
	return chunks
}

// generateLoop is the client's single generation worker. Running requests
// strictly one at a time guarantees that a response's events never
// interleave with another's, and that a second response.created is never
// observed before the first response.done.
func (c *Client) generateLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case req := <-c.genCh:
			c.generate(req)
		}
	}
}

// generate is the central state transition: assign a fresh active response
// id, resolve the winning template, stream the requested content, and emit
// response.done. The active response id is cleared and a timing record
// appended afterwards, whatever the outcome.
func (c *Client) generate(req genRequest) {
	responseID := "resp_" + uuid.NewString()
	started := time.Now()

	c.mu.Lock()
	c.activeResponseID = responseID
	conv := c.conv
	c.mu.Unlock()

	c.send(realtime.Event{
		Type:       realtime.TypeResponseCreated,
		ResponseID: responseID,
		CreatedAt:  started.Unix(),
	})

	tmpl, selected := c.resolveTemplate(conv, req.opts)
	c.observer.TemplateSelected(tmpl.Key)

	status, genErr := c.streamContent(responseID, tmpl, req.opts)
	if genErr != nil {
		// Generation failures become wire errors; the response context is
		// still cleaned up below and the timing still recorded.
		c.sendError(ErrCodeGeneration, "response generation failed", genErr.Error())
		status = realtime.StatusFailed
	}

	completed := time.Now()
	c.send(realtime.Event{
		Type:       realtime.TypeResponseDone,
		ResponseID: responseID,
		Status:     status,
		CreatedAt:  completed.Unix(),
	})
	c.send(realtime.Event{
		Type:       realtime.TypeRateLimitsUpdated,
		RateLimits: staticRateLimits,
	})

	timing := ResponseTiming{
		ResponseID:  responseID,
		TemplateKey: tmpl.Key,
		Duration:    completed.Sub(started),
		CompletedAt: completed,
	}

	c.mu.Lock()
	if c.activeResponseID == responseID {
		c.activeResponseID = ""
	}
	c.appendTimingLocked(timing)
	if status == realtime.StatusCompleted && tmpl.Text != "" {
		c.conv.ObserveResponse(tmpl.Text, completed)
	}
	c.mu.Unlock()

	c.observer.ResponseCompleted(timing, status)
	if c.timingSink != nil {
		if err := c.timingSink.Append(c.ctx, timing); err != nil {
			slog.Warn("sim: timing sink append", "err", err)
		}
	}

	if !selected {
		slog.Debug("sim: no template matched, used fallback", "response_id", responseID)
	}
}

// resolveTemplate runs the selection engine and falls back to the default
// template when nothing scores above zero.
func (c *Client) resolveTemplate(conv *respond.Context, opts *realtime.ResponseOptions) (respond.Template, bool) {
	selOpts := respond.Options{FunctionCall: opts.WantsFunctionCall()}
	if opts != nil {
		selOpts.Modalities = opts.Modalities
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.selector.Select(conv, selOpts)
	if !ok {
		return c.fallback, false
	}
	tmpl, found := c.registry.Get(key)
	if !found {
		return c.fallback, false
	}
	return tmpl, true
}

// streamContent emits the template's content events in the requested
// modality order. A request carrying tool/function intent is answered with
// a function call only, terminating the response.
func (c *Client) streamContent(responseID string, tmpl respond.Template, opts *realtime.ResponseOptions) (string, error) {
	itemID := "item_" + uuid.NewString()

	if opts.WantsFunctionCall() || tmpl.FunctionCall != nil {
		return c.streamFunctionCall(responseID, tmpl, opts)
	}

	for _, modality := range c.requestedModalities(opts) {
		switch modality {
		case "text":
			if !c.streamText(responseID, itemID, tmpl) {
				return realtime.StatusCancelled, nil
			}
		case "audio":
			if !c.streamAudio(responseID, itemID, tmpl) {
				return realtime.StatusCancelled, nil
			}
		default:
			slog.Debug("sim: unsupported modality skipped", "modality", modality)
		}
	}
	return realtime.StatusCompleted, nil
}

// requestedModalities returns the modalities to generate, in order:
// request options, then session configuration, then plain text.
func (c *Client) requestedModalities(opts *realtime.ResponseOptions) []string {
	if opts != nil && len(opts.Modalities) > 0 {
		return opts.Modalities
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sess.Config.Modalities) > 0 {
		return c.sess.Config.Modalities
	}
	return []string{"text"}
}

// streamText emits one text.delta per character followed by text.done with
// the full text. The done event fires even for empty text. Returns false if
// the response was cancelled mid-stream.
func (c *Client) streamText(responseID, itemID string, tmpl respond.Template) bool {
	for _, r := range tmpl.Text {
		if !c.responseActive(responseID) {
			return false
		}
		c.send(realtime.Event{
			Type:       realtime.TypeTextDelta,
			ResponseID: responseID,
			ItemID:     itemID,
			Delta:      string(r),
		})
		if !c.pause(tmpl.CharDelay) {
			return false
		}
	}

	if !c.responseActive(responseID) {
		return false
	}
	c.send(realtime.Event{
		Type:       realtime.TypeTextDone,
		ResponseID: responseID,
		ItemID:     itemID,
		Text:       tmpl.Text,
	})
	return true
}

// streamAudio resolves the template's audio payload (raw bytes, then the
// audio cache, then silence), streams it as base64 chunks, and closes with
// audio.done plus the audio transcript events. Returns false on
// cancellation.
func (c *Client) streamAudio(responseID, itemID string, tmpl respond.Template) bool {
	payload := c.resolveAudio(tmpl)

	for _, chunk := range ChunkPayload(payload, ChunkSize) {
		if !c.responseActive(responseID) {
			return false
		}
		c.send(realtime.Event{
			Type:       realtime.TypeAudioDelta,
			ResponseID: responseID,
			ItemID:     itemID,
			Delta:      base64.StdEncoding.EncodeToString(chunk),
		})
		if !c.pause(tmpl.ChunkDelay) {
			return false
		}
	}

	if !c.responseActive(responseID) {
		return false
	}
	c.send(realtime.Event{
		Type:       realtime.TypeAudioDone,
		ResponseID: responseID,
		ItemID:     itemID,
	})

	if tmpl.Text != "" {
		c.send(realtime.Event{
			Type:       realtime.TypeAudioTranscriptDelta,
			ResponseID: responseID,
			ItemID:     itemID,
			Delta:      tmpl.Text,
		})
		c.send(realtime.Event{
			Type:       realtime.TypeAudioTranscriptDone,
			ResponseID: responseID,
			ItemID:     itemID,
			Transcript: tmpl.Text,
		})
	}
	return true
}

// resolveAudio returns the template's audio payload following the source
// precedence: raw bytes, cached file, generated silence.
func (c *Client) resolveAudio(tmpl respond.Template) []byte {
	if tmpl.Audio != nil && len(tmpl.Audio.Data) > 0 {
		return tmpl.Audio.Data
	}
	if tmpl.Audio != nil && tmpl.Audio.Path != "" && c.cache != nil {
		return c.cache.Load(tmpl.Audio.Path, c.sampleRate).Data
	}
	return audio.Silence(silenceFallback, c.sampleRate)
}

// streamFunctionCall emits the template's function call as one arguments
// delta plus one done event. A request that asks for a function call
// against a template without one gets a synthesised placeholder call.
func (c *Client) streamFunctionCall(responseID string, tmpl respond.Template, opts *realtime.ResponseOptions) (string, error) {
	call := tmpl.FunctionCall
	if call == nil {
		call = &respond.FunctionCall{
			Name:      placeholderFunctionName(opts),
			Arguments: map[string]any{},
		}
	}

	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return realtime.StatusFailed, err
	}

	callID := "call_" + uuid.NewString()
	if !c.responseActive(responseID) {
		return realtime.StatusCancelled, nil
	}
	c.send(realtime.Event{
		Type:       realtime.TypeFunctionCallArgumentsDelta,
		ResponseID: responseID,
		CallID:     callID,
		Delta:      string(args),
	})
	if !c.pause(tmpl.CharDelay) {
		return realtime.StatusCancelled, nil
	}
	if !c.responseActive(responseID) {
		return realtime.StatusCancelled, nil
	}
	c.send(realtime.Event{
		Type:       realtime.TypeFunctionCallArgumentsDone,
		ResponseID: responseID,
		CallID:     callID,
		Name:       call.Name,
		Arguments:  string(args),
	})
	return realtime.StatusCompleted, nil
}

// placeholderFunctionName picks the synthesised call's name from the
// request's declared tools, if any.
func placeholderFunctionName(opts *realtime.ResponseOptions) string {
	if opts != nil && len(opts.Tools) > 0 && opts.Tools[0].Name != "" {
		return opts.Tools[0].Name
	}
	return "unspecified_function"
}

// responseActive reports whether responseID is still the active response.
// Cancellation clears the active id, which every streaming loop checks
// between deltas.
func (c *Client) responseActive(responseID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeResponseID == responseID
}

// pause suspends the generation goroutine for d, waking early when the
// client shuts down. Returns false when the wait was interrupted. A
// non-positive delay only checks for shutdown.
func (c *Client) pause(d time.Duration) bool {
	if d <= 0 {
		return c.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}
