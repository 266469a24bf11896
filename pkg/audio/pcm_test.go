package audio_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/parrotlabs/parrot/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian bytes.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestSilence(t *testing.T) {
	s := audio.Silence(time.Second, 16000)
	if len(s) != 32000 {
		t.Fatalf("1s at 16kHz = %d bytes, want 32000", len(s))
	}
	for i, b := range s {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}

	if got := audio.Silence(0, 16000); len(got) != 0 {
		t.Errorf("zero duration silence = %d bytes, want 0", len(got))
	}
	if got := audio.Silence(time.Second, 0); len(got) != 0 {
		t.Errorf("zero rate silence = %d bytes, want 0", len(got))
	}
}

func TestStereoToMono(t *testing.T) {
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	got := bytesToSamples(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{1, 2, 3})
	if out := audio.ResampleMono16(pcm, 16000, 16000); len(out) != len(pcm) {
		t.Errorf("same-rate resample changed length: %d -> %d", len(pcm), len(out))
	}
}

func TestResampleMono16_RateRatio(t *testing.T) {
	// 8 samples at 8kHz -> 16 samples at 16kHz.
	pcm := samplesToBytes(make([]int16, 8))
	out := audio.ResampleMono16(pcm, 8000, 16000)
	if len(out) != 32 {
		t.Errorf("upsample length = %d bytes, want 32", len(out))
	}

	// And back down.
	out = audio.ResampleMono16(out, 16000, 8000)
	if len(out) != 16 {
		t.Errorf("downsample length = %d bytes, want 16", len(out))
	}
}

func TestDecodeWAV_RoundTrip(t *testing.T) {
	pcm := samplesToBytes([]int16{10, 20, 30, 40})
	wav := audio.EncodeWAV(pcm, 16000, 1)

	got, rate, channels, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("rate/channels = %d/%d, want 16000/1", rate, channels)
	}
	if len(got) != len(pcm) {
		t.Fatalf("payload length = %d, want %d", len(got), len(pcm))
	}
	for i := range pcm {
		if got[i] != pcm[i] {
			t.Fatalf("payload byte %d differs", i)
		}
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("this is definitely not a wav file")},
		{"truncated header", []byte("RIFF")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := audio.DecodeWAV(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}
