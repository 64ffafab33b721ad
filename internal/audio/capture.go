package audio

import (
	"github.com/voicekiosk/voicekiosk/internal/config"
)

// CaptureSink receives the capture pipeline's output. SendBatch gets
// 16 kHz PCM16 ready for transport; TurnEnd fires exactly once per
// sustained-silence run; Interrupt fires when confirmed speech should
// cut off in-progress playback; Activity marks user speech for latency
// measurement and fires only for batches above the speech gate, never
// for a silent but running device.
type CaptureSink interface {
	SendBatch(pcm []int16)
	TurnEnd()
	Interrupt()
	Activity()
}

// capturePipeline is the device-independent core of the capture
// engine: ring buffer accumulation at the device rate, linear
// resampling to the target rate with a carry so no remainder is ever
// dropped, fixed 20 ms framing coalesced into batches, and energy
// gating for silence commit and barge-in. Not safe for concurrent
// use; the owning Capture serializes access.
type capturePipeline struct {
	inRate  int
	outRate int

	frameSamples int
	batchSamples int
	batchMs      int

	silenceSq  float64
	speechSq   float64
	commitMs   int
	confirmMin int

	ring  []float32
	wp    int
	avail int
	carry []float32

	batch []int16
	fill  int

	silentMs int
	ended    bool
	confirm  int

	sink           CaptureSink
	playbackActive func() bool
	interruptLatch bool
}

func newCapturePipeline(inRate int, t config.Tuning, sink CaptureSink, playbackActive func() bool) *capturePipeline {
	frame := t.CaptureRate * t.FrameMs / 1000
	return &capturePipeline{
		inRate:         inRate,
		outRate:        t.CaptureRate,
		frameSamples:   frame,
		batchSamples:   frame * t.BatchFrames,
		batchMs:        t.FrameMs * t.BatchFrames,
		silenceSq:      float64(t.SilenceRMS) * float64(t.SilenceRMS),
		speechSq:       float64(t.SpeechRMS) * float64(t.SpeechRMS),
		commitMs:       t.SilenceCommitMs,
		confirmMin:     t.SpeechConfirm,
		ring:           make([]float32, inRate), // one second of headroom
		batch:          make([]int16, frame*t.BatchFrames),
		sink:           sink,
		playbackActive: playbackActive,
	}
}

// push writes device samples into the ring, overwriting the oldest
// data if the drain has fallen a full ring behind.
func (p *capturePipeline) push(chunk []float32) {
	n := len(p.ring)
	if len(chunk) >= n {
		copy(p.ring, chunk[len(chunk)-n:])
		p.wp = 0
		p.avail = n
		return
	}
	first := n - p.wp
	if first > len(chunk) {
		first = len(chunk)
	}
	copy(p.ring[p.wp:], chunk[:first])
	copy(p.ring, chunk[first:])
	p.wp = (p.wp + len(chunk)) % n
	p.avail += len(chunk)
	if p.avail > n {
		p.avail = n
	}
}

// neededInput is the device-rate sample count that resamples to one
// output frame.
func (p *capturePipeline) neededInput() int {
	return (p.frameSamples*p.inRate + p.outRate - 1) / p.outRate
}

// drain consumes ring data frame by frame until less than one frame's
// worth remains.
func (p *capturePipeline) drain() {
	for p.emitOneFrame() {
	}
	p.checkInterrupt()
}

func (p *capturePipeline) emitOneFrame() bool {
	needed := p.neededInput()
	if p.avail < needed {
		return false
	}

	n := len(p.ring)
	temp := make([]float32, needed)
	rp := (p.wp - p.avail + n) % n
	first := n - rp
	if first > needed {
		first = needed
	}
	copy(temp, p.ring[rp:rp+first])
	copy(temp[first:], p.ring[:needed-first])
	p.avail -= needed

	resampled := ResampleLinear(temp, p.inRate, p.outRate)
	merged := resampled
	if len(p.carry) > 0 {
		merged = append(append(make([]float32, 0, len(p.carry)+len(resampled)), p.carry...), resampled...)
	}

	offset := 0
	for offset+p.frameSamples <= len(merged) {
		p.appendToBatch(Float32ToInt16(merged[offset : offset+p.frameSamples]))
		offset += p.frameSamples
	}
	p.carry = append(p.carry[:0], merged[offset:]...)
	return true
}

func (p *capturePipeline) appendToBatch(frame []int16) {
	offset := 0
	for offset < len(frame) {
		space := p.batchSamples - p.fill
		take := len(frame) - offset
		if take > space {
			take = space
		}
		copy(p.batch[p.fill:], frame[offset:offset+take])
		p.fill += take
		offset += take
		if p.fill >= p.batchSamples {
			p.flushBatch(false)
		}
	}
}

// flushBatch evaluates energy gates and forwards the batch. Partial
// batches only go out when forced by the flush timer or a stop.
func (p *capturePipeline) flushBatch(force bool) {
	if p.fill == 0 {
		return
	}
	if !force && p.fill < p.batchSamples {
		return
	}
	payload := make([]int16, p.fill)
	copy(payload, p.batch[:p.fill])
	p.fill = 0

	meanSq := MeanSquare(payload)

	if meanSq > p.speechSq {
		p.confirm++
		p.sink.Activity()
	} else {
		p.confirm = 0
	}

	if meanSq <= p.silenceSq {
		p.silentMs += p.batchMs
		if p.silentMs >= p.commitMs {
			if !p.ended {
				p.ended = true
				p.sink.TurnEnd()
			}
			return
		}
	} else {
		p.silentMs = 0
		p.ended = false
	}

	// After the turn committed, silence batches stay local.
	if p.ended {
		return
	}
	p.sink.SendBatch(payload)
}

// checkInterrupt fires the barge-in signal once per confirmed speech
// run while playback is active. The stricter speech threshold plus the
// confirmation count keeps background noise from cutting the
// assistant off.
func (p *capturePipeline) checkInterrupt() {
	if p.confirm >= p.confirmMin && p.playbackActive != nil && p.playbackActive() {
		if !p.interruptLatch {
			p.interruptLatch = true
			p.sink.Interrupt()
		}
		return
	}
	if p.confirm == 0 {
		p.interruptLatch = false
	}
}

func (p *capturePipeline) reset() {
	p.wp = 0
	p.avail = 0
	p.carry = p.carry[:0]
	p.fill = 0
	p.silentMs = 0
	p.ended = false
	p.confirm = 0
	p.interruptLatch = false
}
