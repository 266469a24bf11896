// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config,
// and Session to script ProcessFrame results and inspect submitted frames.
package mock

import (
	"sync"

	"github.com/parrotlabs/parrot/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a fresh default Session is
	// returned instead.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// Configs records the Config of every NewSession call in order.
	Configs []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configs = append(e.Configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a mock implementation of vad.SessionHandle. Events are consumed
// from the Events queue in order; when empty, ProcessFrame returns
// vad.EventNone.
type Session struct {
	mu sync.Mutex

	// Events is the scripted queue of ProcessFrame results.
	Events []vad.Event

	// ProcessErr, if non-nil, is returned by every ProcessFrame call.
	ProcessErr error

	// Frames records every frame passed to ProcessFrame.
	Frames [][]byte

	// ResetCalls counts Reset invocations; Closed reports whether Close ran.
	ResetCalls int
	Closed     bool
}

// ProcessFrame records the frame and pops the next scripted event.
func (s *Session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Frames = append(s.Frames, frame)
	if s.ProcessErr != nil {
		return vad.Event{}, s.ProcessErr
	}
	if len(s.Events) == 0 {
		return vad.Event{Type: vad.EventNone}, nil
	}
	evt := s.Events[0]
	s.Events = s.Events[1:]
	return evt, nil
}

// Reset increments ResetCalls.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
