package live

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicekiosk/voicekiosk/internal/order"
)

// ScreenTracker turns order-state snapshots into compact bracketed
// context tags and rate-limits their delivery. Identical consecutive
// payloads are never re-sent; bursts coalesce to the latest state
// rather than dropping it. Nothing goes out until Arm, so text context
// cannot race ahead of the audio channel during connection warm-up.
type ScreenTracker struct {
	logger zerolog.Logger
	minGap time.Duration
	send   func(text string)

	mu       sync.Mutex
	armed    bool
	last     string
	lastSent time.Time
	pending  string
	timer    *time.Timer
}

func NewScreenTracker(minGap time.Duration, send func(text string), logger zerolog.Logger) *ScreenTracker {
	return &ScreenTracker{
		logger: logger.With().Str("component", "screen").Logger(),
		minGap: minGap,
		send:   send,
	}
}

// Observe queues the snapshot's tag payload for delivery.
func (s *ScreenTracker) Observe(snap order.Snapshot) {
	payload := formatSnapshot(snap)
	s.mu.Lock()
	defer s.mu.Unlock()
	if payload == s.last {
		return
	}
	s.pending = payload
	if !s.armed {
		return
	}
	s.scheduleLocked()
}

// Arm enables delivery once the first audio frame of the connection
// has been sent, flushing anything queued while warming up.
func (s *ScreenTracker) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		return
	}
	s.armed = true
	if s.pending != "" && s.pending != s.last {
		s.scheduleLocked()
	}
}

// Reset clears all delivery state for a fresh connection.
func (s *ScreenTracker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	s.last = ""
	s.lastSent = time.Time{}
	s.pending = ""
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *ScreenTracker) scheduleLocked() {
	since := time.Since(s.lastSent)
	if since >= s.minGap {
		s.deliverLocked()
		return
	}
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.minGap-since, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.timer = nil
		if !s.armed || s.pending == "" || s.pending == s.last {
			return
		}
		s.deliverLocked()
	})
}

func (s *ScreenTracker) deliverLocked() {
	payload := s.pending
	s.last = payload
	s.lastSent = time.Now()
	s.pending = ""
	s.logger.Debug().Str("tags", payload).Msg("screen delta")
	s.send(payload)
}

func formatSnapshot(snap order.Snapshot) string {
	var tags []string
	if snap.Category != "" {
		tags = append(tags, "[C:"+snap.Category+"]")
	}
	if snap.ActiveItem != "" {
		tags = append(tags, "[I:"+snap.ActiveItem+"|S:"+string(snap.Step)+"]")
	}
	if snap.ActiveVariant != "" {
		tags = append(tags, "[V:"+snap.ActiveVariant+"]")
	}
	tags = append(tags, fmt.Sprintf("[CART:%d]", snap.CartCount))
	if snap.CardStatus != order.CardIdle && snap.CardStatus != "" {
		tags = append(tags, "[PAY:"+string(snap.CardStatus)+"]")
	} else if snap.PaymentMethod != "" {
		tags = append(tags, "[PAY:"+string(snap.PaymentMethod)+"]")
	}
	return strings.Join(tags, " ")
}
