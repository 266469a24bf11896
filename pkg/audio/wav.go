package audio

import (
	"encoding/binary"
	"fmt"
)

// wavFormatPCM is the format tag for uncompressed PCM in a WAV "fmt " chunk.
const wavFormatPCM = 1

// DecodeWAV parses a RIFF/WAVE file and returns its raw 16-bit PCM payload
// together with the sample rate and channel count. Only uncompressed 16-bit
// PCM is supported; anything else returns an error.
func DecodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("audio: not a RIFF/WAVE file")
	}

	var (
		haveFmt  bool
		bitDepth int
	)

	// Walk the chunk list. Chunks are word-aligned; a chunk with an odd size
	// is followed by one padding byte.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return nil, 0, 0, fmt.Errorf("audio: truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("audio: short fmt chunk (%d bytes)", size)
			}
			format := int(binary.LittleEndian.Uint16(data[body : body+2]))
			if format != wavFormatPCM {
				return nil, 0, 0, fmt.Errorf("audio: unsupported WAV format tag %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, 0, 0, fmt.Errorf("audio: data chunk before fmt chunk")
			}
			if bitDepth != 16 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bitDepth)
			}
			if channels < 1 || channels > 2 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported channel count %d", channels)
			}
			pcm = make([]byte, size)
			copy(pcm, data[body:body+size])
			return pcm, sampleRate, channels, nil
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	return nil, 0, 0, fmt.Errorf("audio: no data chunk found")
}

// EncodeWAV wraps raw 16-bit PCM in a minimal RIFF/WAVE container. Intended
// for tests and tooling that need to materialise cacheable fixtures.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	blockAlign := channels * 2
	byteRate := sampleRate * blockAlign

	out := make([]byte, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}
