// Package mock provides test doubles for the transcribe package interfaces.
package mock

import (
	"sync"

	"github.com/parrotlabs/parrot/pkg/provider/transcribe"
)

// Engine is a mock implementation of transcribe.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a fresh default Session is
	// returned instead.
	Session transcribe.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// Configs records the Config of every NewSession call in order.
	Configs []transcribe.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg transcribe.Config) (transcribe.SessionHandle, error) {
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

// Session is a mock implementation of transcribe.SessionHandle.
type Session struct {
	mu sync.Mutex

	// ChunkResult is returned by every TranscribeChunk call.
	ChunkResult transcribe.Result

	// FinalResult is returned by Finalize.
	FinalResult transcribe.Result

	// ChunkErr / FinalErr, if non-nil, are returned as errors.
	ChunkErr error
	FinalErr error

	// Chunks records every chunk passed to TranscribeChunk.
	Chunks [][]byte

	// FinalizeCalls counts Finalize invocations; Closed reports Close.
	FinalizeCalls int
	Closed        bool
}

// TranscribeChunk records the chunk and returns ChunkResult, ChunkErr.
func (s *Session) TranscribeChunk(chunk []byte) (transcribe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Chunks = append(s.Chunks, chunk)
	return s.ChunkResult, s.ChunkErr
}

// Finalize records the call and returns FinalResult, FinalErr.
func (s *Session) Finalize() (transcribe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinalizeCalls++
	return s.FinalResult, s.FinalErr
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
