// Package energy implements a vad.Engine based on RMS signal energy.
//
// Each frame's root-mean-square amplitude is normalised against the int16
// range and treated as a speech pseudo-probability. The session applies
// hysteresis (separate speech/silence thresholds plus a hangover counter) so
// short dips inside an utterance do not split it into multiple segments.
//
// It has no external dependencies and deterministic behaviour, which makes
// it the default backend for offline simulation.
package energy

import (
	"fmt"
	"math"
	"sync"

	"github.com/parrotlabs/parrot/pkg/provider/vad"
)

// Compile-time interface checks.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

// Engine creates energy-threshold VAD sessions.
type Engine struct{}

// New returns an energy VAD engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg and returns a ready session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy vad: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy vad: speech threshold %v out of range [0,1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy vad: silence threshold %v exceeds speech threshold %v",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = 0.5
		cfg.SilenceThreshold = 0.35
	}
	return &session{cfg: cfg}, nil
}

type session struct {
	mu sync.Mutex

	cfg      vad.Config
	speaking bool
	quiet    int // consecutive sub-threshold frames while speaking
	closed   bool
}

// ProcessFrame computes the frame's normalised RMS energy and applies
// hysteresis to decide whether a speech segment starts or ends.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.Event{}, fmt.Errorf("energy vad: session closed")
	}
	if len(frame)%2 != 0 {
		return vad.Event{}, fmt.Errorf("energy vad: odd frame length %d", len(frame))
	}

	prob := rmsProbability(frame)
	evt := vad.Event{Type: vad.EventNone, Probability: prob}

	switch {
	case !s.speaking && prob >= s.cfg.SpeechThreshold:
		s.speaking = true
		s.quiet = 0
		evt.Type = vad.EventSpeechStart

	case s.speaking && prob < s.cfg.SilenceThreshold:
		s.quiet++
		if s.quiet > s.cfg.HangoverFrames {
			s.speaking = false
			s.quiet = 0
			evt.Type = vad.EventSpeechEnd
		}

	case s.speaking:
		s.quiet = 0
	}

	return evt, nil
}

// Reset clears the speaking state and hangover counter.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = false
	s.quiet = 0
}

// Close marks the session closed. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// rmsProbability returns the RMS amplitude of a PCM16 frame normalised to
// [0, 1]. An empty frame is silent.
func rmsProbability(frame []byte) float64 {
	samples := len(frame) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := range samples {
		v := float64(int16(frame[i*2]) | int16(frame[i*2+1])<<8)
		sum += v * v
	}
	return math.Sqrt(sum/float64(samples)) / 32768
}
