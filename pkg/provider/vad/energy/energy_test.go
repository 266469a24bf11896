package energy_test

import (
	"encoding/binary"
	"testing"

	"github.com/parrotlabs/parrot/pkg/provider/vad"
	"github.com/parrotlabs/parrot/pkg/provider/vad/energy"
)

// frame builds a PCM16 frame where every sample has the given amplitude.
func frame(amplitude int16, samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func newSession(t *testing.T, cfg vad.Config) vad.SessionHandle {
	t.Helper()
	sess, err := energy.New().NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

func TestNewSession_Validation(t *testing.T) {
	eng := energy.New()

	if _, err := eng.NewSession(vad.Config{SampleRate: 0}); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := eng.NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 2}); err == nil {
		t.Error("expected error for threshold above 1")
	}
	if _, err := eng.NewSession(vad.Config{
		SampleRate:       16000,
		SpeechThreshold:  0.3,
		SilenceThreshold: 0.6,
	}); err == nil {
		t.Error("expected error for silence threshold above speech threshold")
	}
}

func TestSession_SpeechStartAndEnd(t *testing.T) {
	sess := newSession(t, vad.Config{
		SampleRate:       16000,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.3,
	})

	loud := frame(25000, 160)
	quiet := frame(100, 160)

	evt, err := sess.ProcessFrame(loud)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Type != vad.EventSpeechStart {
		t.Errorf("loud frame event = %q, want speech_start", evt.Type)
	}

	// A second loud frame: ongoing speech, no transition.
	evt, _ = sess.ProcessFrame(loud)
	if evt.Type != vad.EventNone {
		t.Errorf("continued speech event = %q, want none", evt.Type)
	}

	evt, _ = sess.ProcessFrame(quiet)
	if evt.Type != vad.EventSpeechEnd {
		t.Errorf("quiet frame event = %q, want speech_end", evt.Type)
	}
}

func TestSession_HangoverBridgesShortPauses(t *testing.T) {
	sess := newSession(t, vad.Config{
		SampleRate:       16000,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.3,
		HangoverFrames:   2,
	})

	loud := frame(25000, 160)
	quiet := frame(100, 160)

	if evt, _ := sess.ProcessFrame(loud); evt.Type != vad.EventSpeechStart {
		t.Fatalf("event = %q, want speech_start", evt.Type)
	}

	// Two quiet frames stay within the hangover; the third ends the segment.
	for i := range 2 {
		if evt, _ := sess.ProcessFrame(quiet); evt.Type != vad.EventNone {
			t.Errorf("hangover frame %d event = %q, want none", i, evt.Type)
		}
	}
	if evt, _ := sess.ProcessFrame(quiet); evt.Type != vad.EventSpeechEnd {
		t.Errorf("event = %q, want speech_end after hangover", evt.Type)
	}
}

func TestSession_ResetAndClose(t *testing.T) {
	sess := newSession(t, vad.Config{
		SampleRate:       16000,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.3,
	})

	loud := frame(25000, 160)
	if evt, _ := sess.ProcessFrame(loud); evt.Type != vad.EventSpeechStart {
		t.Fatalf("event = %q, want speech_start", evt.Type)
	}

	// After Reset the same loud frame starts a fresh segment.
	sess.Reset()
	if evt, _ := sess.ProcessFrame(loud); evt.Type != vad.EventSpeechStart {
		t.Errorf("event after Reset = %q, want speech_start", evt.Type)
	}

	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.ProcessFrame(loud); err == nil {
		t.Error("expected error after Close")
	}
}

func TestSession_RejectsOddFrame(t *testing.T) {
	sess := newSession(t, vad.Config{SampleRate: 16000, SpeechThreshold: 0.5, SilenceThreshold: 0.3})
	if _, err := sess.ProcessFrame([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for odd-length frame")
	}
}
