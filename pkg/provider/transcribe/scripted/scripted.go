// Package scripted implements a transcribe.Engine that replays a configured
// list of utterances. Each Finalize pops the next scripted line, wrapping
// around when the script is exhausted; interim results surface a growing
// prefix of the upcoming line so clients can exercise their delta handling.
//
// An empty script produces empty final results, which the orchestrator
// reports as failed transcriptions.
package scripted

import (
	"fmt"
	"sync"

	"github.com/parrotlabs/parrot/pkg/provider/transcribe"
)

// Compile-time interface checks.
var (
	_ transcribe.Engine        = (*Engine)(nil)
	_ transcribe.SessionHandle = (*session)(nil)
)

// Engine creates scripted transcription sessions.
type Engine struct {
	script []string
}

// New returns an engine that replays script in order, wrapping around.
func New(script []string) *Engine {
	return &Engine{script: script}
}

// NewSession returns a session positioned at the start of the script.
func (e *Engine) NewSession(cfg transcribe.Config) (transcribe.SessionHandle, error) {
	if cfg.SampleRate < 0 {
		return nil, fmt.Errorf("scripted transcriber: sample rate %d is invalid", cfg.SampleRate)
	}
	return &session{script: e.script}, nil
}

type session struct {
	mu sync.Mutex

	script []string
	next   int // index of the line Finalize will return
	chunks int // chunks received for the current utterance
	closed bool
}

// TranscribeChunk returns an interim result: a prefix of the upcoming line
// that grows with each submitted chunk.
func (s *session) TranscribeChunk(chunk []byte) (transcribe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return transcribe.Result{}, fmt.Errorf("scripted transcriber: session closed")
	}
	s.chunks++

	line := s.currentLine()
	if line == "" {
		return transcribe.Result{Confidence: 0.1}, nil
	}

	// Reveal roughly a quarter of the line per chunk.
	reveal := len(line) * s.chunks / 4
	if reveal > len(line) {
		reveal = len(line)
	}
	return transcribe.Result{
		Text:       line[:reveal],
		Confidence: 0.5,
	}, nil
}

// Finalize returns the current scripted line as the authoritative result and
// advances to the next one.
func (s *session) Finalize() (transcribe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return transcribe.Result{}, fmt.Errorf("scripted transcriber: session closed")
	}

	line := s.currentLine()
	s.chunks = 0
	if len(s.script) > 0 {
		s.next = (s.next + 1) % len(s.script)
	}

	if line == "" {
		return transcribe.Result{Final: true}, nil
	}
	return transcribe.Result{Text: line, Confidence: 0.95, Final: true}, nil
}

// Close marks the session closed. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// currentLine returns the line Finalize will emit next, or "" for an empty
// script. Must be called with s.mu held.
func (s *session) currentLine() string {
	if len(s.script) == 0 {
		return ""
	}
	return s.script[s.next]
}
