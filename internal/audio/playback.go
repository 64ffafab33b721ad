package audio

import (
	"sync"

	"github.com/voicekiosk/voicekiosk/internal/config"
)

type scheduledChunk struct {
	start int64 // absolute sample index where this chunk begins
	pcm   []int16
	off   int
}

// Scheduler is the device-independent core of the playback engine.
// Inbound fragments accumulate in a jitter buffer; playback start is
// deferred until a minimum buffered duration is reached, with a
// maximum cap forcing a flush to bound latency. Flushed chunks are
// scheduled on a monotonic cursor measured in samples of the device
// clock: each chunk starts at max(clock, cursor) and advances the
// cursor by its own duration, so chunks never overlap and never leave
// a gap regardless of flush timing jitter.
//
// The clock advances only through Render, which the output device
// drives, making scheduling immune to wall-clock jitter.
type Scheduler struct {
	rate     int
	minBytes int
	maxBytes int

	mu           sync.Mutex
	pending      [][]byte
	pendingBytes int
	started      bool
	clock        int64
	cursor       int64
	queue        []*scheduledChunk
	speaking     bool
	onSpeaking   func(bool)
}

// NewScheduler builds a scheduler for the given playback rate. The
// optional onSpeaking callback observes the speaking flag; it runs
// under the scheduler's lock and must not call back in.
func NewScheduler(t config.Tuning, onSpeaking func(bool)) *Scheduler {
	bytesForMs := func(ms int) int {
		return (t.PlaybackRate*2*ms + 999) / 1000
	}
	return &Scheduler{
		rate:       t.PlaybackRate,
		minBytes:   bytesForMs(t.MinBufferMs),
		maxBytes:   bytesForMs(t.MaxBufferMs),
		onSpeaking: onSpeaking,
	}
}

// Submit appends a transport fragment to the jitter buffer and flushes
// if a threshold is met. Fragments arrive in order and may have been
// concatenated upstream; segmentation is by sample count, so an odd
// trailing byte stays buffered until its other half arrives.
func (s *Scheduler) Submit(fragment []byte) {
	if len(fragment) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, fragment)
	s.pendingBytes += len(fragment)
	s.flushLocked()
}

// Flush is the periodic tick that drains the jitter buffer once
// playback has started, or once enough audio has accumulated.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Scheduler) flushLocked() {
	if s.pendingBytes < 2 {
		return
	}
	if !s.started && s.pendingBytes < s.minBytes && s.pendingBytes < s.maxBytes {
		return
	}
	s.started = true

	merged := make([]byte, 0, s.pendingBytes)
	for _, c := range s.pending {
		merged = append(merged, c...)
	}
	s.pending = s.pending[:0]
	s.pendingBytes = 0

	if len(merged)%2 == 1 {
		tail := merged[len(merged)-1:]
		merged = merged[:len(merged)-1]
		s.pending = append(s.pending, tail)
		s.pendingBytes = 1
	}
	if len(merged) == 0 {
		return
	}

	start := s.clock
	if s.cursor > start {
		start = s.cursor
	}
	pcm := BytesToInt16(merged)
	s.cursor = start + int64(len(pcm))
	s.queue = append(s.queue, &scheduledChunk{start: start, pcm: pcm})
	s.setSpeakingLocked(true)
}

// Render fills out with scheduled audio and advances the device clock
// by len(out) samples. Unscheduled stretches render as silence. Called
// from the output device's data callback.
func (s *Scheduler) Render(out []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := 0
	for i < len(out) {
		if len(s.queue) == 0 {
			for ; i < len(out); i++ {
				out[i] = 0
			}
			break
		}
		c := s.queue[0]
		pos := s.clock + int64(i)
		if pos < c.start {
			gap := c.start - pos
			for n := int64(0); n < gap && i < len(out); n++ {
				out[i] = 0
				i++
			}
			continue
		}
		for c.off < len(c.pcm) && i < len(out) {
			out[i] = c.pcm[c.off]
			c.off++
			i++
		}
		if c.off == len(c.pcm) {
			s.queue = s.queue[1:]
			if len(s.queue) == 0 {
				// Drained: reset the cursor to the device clock so
				// the next turn starts without accumulated drift.
				s.cursor = s.clock + int64(i)
				s.started = false
				s.setSpeakingLocked(false)
			}
		}
	}
	s.clock += int64(len(out))
}

// Stop halts playback immediately: scheduled chunks and the jitter
// buffer are discarded and the cursor resets to the device clock.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.pending = s.pending[:0]
	s.pendingBytes = 0
	s.started = false
	s.cursor = s.clock
	s.setSpeakingLocked(false)
}

// Speaking reports whether any chunk is scheduled or playing.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

func (s *Scheduler) setSpeakingLocked(v bool) {
	if s.speaking == v {
		return
	}
	s.speaking = v
	if s.onSpeaking != nil {
		s.onSpeaking(v)
	}
}
