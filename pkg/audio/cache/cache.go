// Package cache provides the audio-caching layer backing the simulator's
// audio responses. Decoded payloads are cached by (source path, target sample
// rate) so repeated responses avoid file I/O and format conversion.
//
// Load never fails: a missing or undecodable file degrades to generated
// silence at the requested rate. Entries are immutable once inserted and are
// evicted only by explicit Clear/Remove calls. The cache is shared
// read-mostly across all sessions in a process and is safe for concurrent
// use.
package cache

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parrotlabs/parrot/pkg/audio"
)

// silenceDuration is the length of the silence payload returned when a
// source file cannot be loaded or decoded.
const silenceDuration = time.Second

// rawPCMAssumedRate is the sample rate assumed for headerless .pcm/.raw
// files, which carry no format metadata.
const rawPCMAssumedRate = 16000

// Key identifies one cache entry.
type Key struct {
	Path string
	Rate int
}

// Entry is one immutable cached payload.
type Entry struct {
	// Data is the decoded 16-bit mono PCM payload at Key.Rate.
	Data []byte

	// SampleRate and Channels describe the payload after conversion.
	// Channels is always 1; stereo sources are downmixed on load.
	SampleRate int
	Channels   int
}

// Stats summarises cache contents.
type Stats struct {
	Entries    int
	TotalBytes int
	AvgBytes   int
}

// Cache is the audio payload cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]Entry)}
}

// Load returns the audio payload for path converted to targetRate, caching
// the result. On any failure it returns generated silence at targetRate and
// never propagates the error; the failure is logged once per (path, rate).
// Silence fallbacks are cached like any other entry so repeated lookups are
// byte-identical and decode at most once.
func (c *Cache) Load(path string, targetRate int) Entry {
	key := Key{Path: path, Rate: targetRate}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry
	}

	entry = c.decode(path, targetRate)

	c.mu.Lock()
	// Another goroutine may have raced us here; keep the first insert so
	// lookups stay byte-identical.
	if existing, ok := c.entries[key]; ok {
		entry = existing
	} else {
		c.entries[key] = entry
	}
	c.mu.Unlock()

	return entry
}

// decode reads and converts the source file, falling back to silence.
func (c *Cache) decode(path string, targetRate int) Entry {
	fallback := Entry{
		Data:       audio.Silence(silenceDuration, targetRate),
		SampleRate: targetRate,
		Channels:   1,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("audio cache: read failed, using silence", "path", path, "err", err)
		return fallback
	}

	var (
		pcm      []byte
		srcRate  int
		channels int
	)
	switch filepath.Ext(path) {
	case ".pcm", ".raw":
		pcm, srcRate, channels = data, rawPCMAssumedRate, 1
	default:
		pcm, srcRate, channels, err = audio.DecodeWAV(data)
		if err != nil {
			slog.Warn("audio cache: decode failed, using silence", "path", path, "err", err)
			return fallback
		}
	}

	if channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if srcRate != targetRate {
		pcm = audio.ResampleMono16(pcm, srcRate, targetRate)
	}
	if len(pcm) == 0 {
		slog.Warn("audio cache: empty payload after conversion, using silence", "path", path)
		return fallback
	}

	return Entry{Data: pcm, SampleRate: targetRate, Channels: 1}
}

// Remove evicts the entry for (path, rate). Unknown keys are a no-op.
func (c *Cache) Remove(path string, rate int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Key{Path: path, Rate: rate})
}

// Clear evicts all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]Entry)
}

// Stats reports entry count, total payload bytes, and average bytes per
// entry.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		s.TotalBytes += len(e.Data)
	}
	if s.Entries > 0 {
		s.AvgBytes = s.TotalBytes / s.Entries
	}
	return s
}
