// Package transcribe defines the Engine interface for transcription backends
// used by the parrot simulator's inbound audio path.
//
// A transcription session receives committed audio chunk by chunk and
// produces interim results, then an authoritative final result when the
// buffer is finalised. Real speech recognition is explicitly out of scope
// for the simulator; backends replay configured content or synthesise
// placeholder results.
//
// Construction failure of an engine is caught by the session orchestrator
// and degrades to "transcription unavailable"; it never aborts the
// connection.
package transcribe

// Result is one transcription outcome, interim or final.
type Result struct {
	// Text is the transcribed content. May be empty for interim results.
	Text string

	// Confidence is the recognition confidence in [0.0, 1.0].
	Confidence float64

	// Final reports whether this result is authoritative.
	Final bool
}

// Config holds the parameters for a transcription session.
type Config struct {
	// SampleRate is the PCM sample rate in Hz of submitted chunks.
	SampleRate int

	// Language is a BCP-47 language hint. Backends may ignore it.
	Language string
}

// SessionHandle is an active transcription session for a single audio
// stream. A session handles one buffer at a time: chunks accumulate through
// TranscribeChunk and Finalize closes out the current utterance, after which
// the session is ready for the next one.
type SessionHandle interface {
	// TranscribeChunk submits one PCM16 chunk and returns an interim result.
	// Returns an error if the session is closed or the backend fails.
	TranscribeChunk(chunk []byte) (Result, error)

	// Finalize completes the current utterance and returns the final result.
	// The session's per-utterance state is reset afterwards.
	Finalize() (Result, error)

	// Close releases the session's resources. Calling Close more than once
	// is safe and returns nil.
	Close() error
}

// Engine is the factory for transcription sessions.
type Engine interface {
	// NewSession creates a session with the given configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
