// Package vad defines the Engine interface for speech-activity detection
// backends used by the parrot simulator's server-driven turn detection.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful per-stream session. VAD is synchronous by design: ProcessFrame
// returns immediately with a detection result, making it suitable for the
// inbound audio path that gates transcription.
//
// Engines must be safe for concurrent use across sessions. A single
// SessionHandle should not be shared across goroutines unless the
// implementation documents otherwise. Backend construction failure is caught
// by the session orchestrator and degrades to "turn detection unavailable";
// it never aborts the connection.
package vad

// Event kinds returned by ProcessFrame.
const (
	// EventNone means no speech-state transition occurred on this frame.
	EventNone = "none"

	// EventSpeechStart marks the first frame of a detected speech segment.
	EventSpeechStart = "speech_start"

	// EventSpeechEnd marks the end of a detected speech segment.
	EventSpeechEnd = "speech_end"
)

// Event is the result of analysing one audio frame.
type Event struct {
	// Type is one of EventNone, EventSpeechStart, EventSpeechEnd.
	Type string

	// Probability is the engine's speech probability for this frame, in
	// [0.0, 1.0]. Engines without a probabilistic model report a derived
	// pseudo-probability.
	Probability float64
}

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the PCM sample rate in Hz of the frames passed to
	// ProcessFrame.
	SampleRate int

	// SpeechThreshold is the probability above which a frame counts as
	// speech. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which an active speech
	// segment is considered ended. Must be <= SpeechThreshold.
	SilenceThreshold float64

	// HangoverFrames is the number of consecutive sub-threshold frames
	// required before a speech segment ends. Guards against clipping short
	// pauses. Zero means end immediately.
	HangoverFrames int
}

// SessionHandle is an active VAD session for a single audio stream.
type SessionHandle interface {
	// ProcessFrame analyses one little-endian PCM16 frame and returns the
	// detection result. Must not block.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases the session's resources. Calling Close more than once
	// is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns an
	// error if the configuration is invalid or resources cannot be
	// allocated.
	NewSession(cfg Config) (SessionHandle, error)
}
