// Package realtime defines the JSON wire protocol spoken by the parrot
// simulator: one event per frame, each carrying a "type" discriminator.
//
// The protocol mirrors the realtime conversational AI APIs used by
// voice-bot and telephony integrations. Inbound events (client → simulator)
// configure the session, stream audio input, and request responses; outbound
// events (simulator → client) stream text, audio, and function-call deltas.
//
// A single flat Event envelope is used for both directions. Fields not
// relevant to a given event type are left at their zero value and omitted
// from the encoded frame.
package realtime

// Inbound event types (client → simulator).
const (
	TypeSessionUpdate  = "session.update"
	TypeAudioAppend    = "input_audio_buffer.append"
	TypeAudioCommit    = "input_audio_buffer.commit"
	TypeAudioClear     = "input_audio_buffer.clear"
	TypeResponseCreate = "response.create"
	TypeResponseCancel = "response.cancel"
)

// Outbound event types (simulator → client).
const (
	TypeSessionCreated = "session.created"
	TypeSessionUpdated = "session.updated"

	TypeSpeechStarted  = "input_audio_buffer.speech_started"
	TypeSpeechStopped  = "input_audio_buffer.speech_stopped"
	TypeAudioCommitted = "input_audio_buffer.committed"

	TypeResponseCreated = "response.created"
	TypeResponseDone    = "response.done"

	TypeTextDelta = "response.text.delta"
	TypeTextDone  = "response.text.done"

	TypeAudioDelta = "response.audio.delta"
	TypeAudioDone  = "response.audio.done"

	TypeAudioTranscriptDelta = "response.audio_transcript.delta"
	TypeAudioTranscriptDone  = "response.audio_transcript.done"

	TypeFunctionCallArgumentsDelta = "response.function_call_arguments.delta"
	TypeFunctionCallArgumentsDone  = "response.function_call_arguments.done"

	TypeInputTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeInputTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"

	TypeRateLimitsUpdated = "rate_limits.updated"
	TypeError             = "error"
)

// Response status values carried on response.done.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// TurnDetection modes recognised in SessionConfig.
const (
	TurnDetectionServerVAD = "server_vad"
	TurnDetectionNone      = "none"
)

// Event is the wire envelope for every frame in both directions.
type Event struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`

	// session.created / session.updated / session.update
	Session *SessionConfig `json:"session,omitempty"`

	// input_audio_buffer.append: base64-encoded PCM16.
	Audio string `json:"audio,omitempty"`

	// response.create
	Response *ResponseOptions `json:"response,omitempty"`

	// Response-scoped events.
	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	Status     string `json:"status,omitempty"`

	// Incremental content: one character, one base64 audio chunk, or one
	// fragment of JSON function-call arguments.
	Delta string `json:"delta,omitempty"`

	// Full content on *.done events.
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Name       string `json:"name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`

	// Unix timestamp in seconds, set on session.created, response.created
	// and response.done.
	CreatedAt int64 `json:"created_at,omitempty"`

	Error      *ErrorDetail `json:"error,omitempty"`
	RateLimits []RateLimit  `json:"rate_limits,omitempty"`
}

// ErrorDetail is the nested error object on an error event.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// RateLimit describes one limit slot on a rate_limits.updated event.
type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

// SessionConfig is the effective session configuration. It is carried in full
// on session.created and session.updated, and partially on session.update
// where nil/empty fields mean "leave unchanged".
type SessionConfig struct {
	ID                string         `json:"id,omitempty"`
	Model             string         `json:"model,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
	Tools             []Tool         `json:"tools,omitempty"`
	ToolChoice        string         `json:"tool_choice,omitempty"`
	Temperature       float64        `json:"temperature,omitempty"`
}

// TurnDetection holds the speech-activity detection configuration.
// Type "server_vad" enables the simulator's speech-activity backend;
// "none" disables it and leaves turn taking to the client.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// Tool declares a function the simulated model may call.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ResponseOptions is the payload of a response.create event.
type ResponseOptions struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Tools        []Tool   `json:"tools,omitempty"`
	ToolChoice   string   `json:"tool_choice,omitempty"`
}

// WantsFunctionCall reports whether the request explicitly asks for a
// tool/function response: a non-"none" tool_choice or at least one declared
// tool counts as function-call intent.
func (o *ResponseOptions) WantsFunctionCall() bool {
	if o == nil {
		return false
	}
	if o.ToolChoice != "" && o.ToolChoice != "none" {
		return true
	}
	return len(o.Tools) > 0
}

// Merge applies the non-zero fields of patch onto cfg, returning cfg for
// chaining. Slices and nested structs are replaced wholesale when present.
func (cfg *SessionConfig) Merge(patch *SessionConfig) *SessionConfig {
	if patch == nil {
		return cfg
	}
	if patch.Model != "" {
		cfg.Model = patch.Model
	}
	if len(patch.Modalities) > 0 {
		cfg.Modalities = patch.Modalities
	}
	if patch.Instructions != "" {
		cfg.Instructions = patch.Instructions
	}
	if patch.Voice != "" {
		cfg.Voice = patch.Voice
	}
	if patch.InputAudioFormat != "" {
		cfg.InputAudioFormat = patch.InputAudioFormat
	}
	if patch.OutputAudioFormat != "" {
		cfg.OutputAudioFormat = patch.OutputAudioFormat
	}
	if patch.TurnDetection != nil {
		cfg.TurnDetection = patch.TurnDetection
	}
	if len(patch.Tools) > 0 {
		cfg.Tools = patch.Tools
	}
	if patch.ToolChoice != "" {
		cfg.ToolChoice = patch.ToolChoice
	}
	if patch.Temperature != 0 {
		cfg.Temperature = patch.Temperature
	}
	return cfg
}
