package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/voicekiosk/voicekiosk/internal/config"
)

// Capture owns the microphone device and drives the capture pipeline.
// The device data callback runs on miniaudio's thread and must never
// block: it only writes the ring buffer and wakes the drain goroutine.
type Capture struct {
	logger         zerolog.Logger
	tuning         config.Tuning
	sink           CaptureSink
	playbackActive func() bool

	// pmu guards the pipeline; it is taken by the device callback and
	// the drain goroutine, never while mu is held during device
	// teardown.
	pmu  sync.Mutex
	pipe *capturePipeline

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	wake    chan struct{}
	done    chan struct{}
	running bool
}

func NewCapture(t config.Tuning, sink CaptureSink, playbackActive func() bool, logger zerolog.Logger) *Capture {
	return &Capture{
		logger:         logger.With().Str("component", "capture").Logger(),
		tuning:         t,
		sink:           sink,
		playbackActive: playbackActive,
	}
}

// Start opens the microphone and begins feeding the pipeline. Device
// initialization failure (no device, permission denied) is returned as
// a recoverable error; the caller may retry with a fresh Start.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	c.pmu.Lock()
	c.pipe = newCapturePipeline(c.tuning.DeviceRate, c.tuning, c.sink, c.playbackActive)
	c.pmu.Unlock()
	c.wake = make(chan struct{}, 1)
	c.done = make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.tuning.DeviceRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			pcm := BytesToInt16(input)
			chunk := make([]float32, len(pcm))
			for i, s := range pcm {
				chunk[i] = float32(s) / 32768.0
			}
			c.pmu.Lock()
			if c.pipe != nil {
				c.pipe.push(chunk)
			}
			c.pmu.Unlock()
			select {
			case c.wake <- struct{}{}:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start capture device: %w", err)
	}

	c.ctx = ctx
	c.device = device
	c.running = true
	go c.drainLoop(c.wake, c.done)
	c.logger.Info().Int("device_rate", c.tuning.DeviceRate).Int("target_rate", c.tuning.CaptureRate).Msg("capture started")
	return nil
}

// drainLoop resamples and batches off the callback thread. The ticker
// force-flushes partial batches so trailing silence reaches the
// session promptly.
func (c *Capture) drainLoop(wake <-chan struct{}, done <-chan struct{}) {
	ticker := time.NewTicker(time.Duration(c.tuning.PartialFlushMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-wake:
			c.pmu.Lock()
			if c.pipe != nil {
				c.pipe.drain()
			}
			c.pmu.Unlock()
		case <-ticker.C:
			c.pmu.Lock()
			if c.pipe != nil {
				c.pipe.flushBatch(true)
				c.pipe.checkInterrupt()
			}
			c.pmu.Unlock()
		}
	}
}

// Stop releases the microphone and resets pipeline state. Idempotent.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.done)
	c.device.Uninit()
	c.ctx.Uninit()
	c.ctx.Free()
	c.device = nil
	c.ctx = nil

	c.pmu.Lock()
	c.pipe.reset()
	c.pipe = nil
	c.pmu.Unlock()
	c.logger.Info().Msg("capture stopped")
}

// Playback owns the output device and drives the Scheduler. The device
// pulls rendered samples on its own thread; the flush ticker drains
// the jitter buffer between pulls.
type Playback struct {
	logger zerolog.Logger
	tuning config.Tuning

	Scheduler *Scheduler

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	done    chan struct{}
	running bool
}

func NewPlayback(t config.Tuning, onSpeaking func(bool), logger zerolog.Logger) *Playback {
	return &Playback{
		logger:    logger.With().Str("component", "playback").Logger(),
		tuning:    t,
		Scheduler: NewScheduler(t, onSpeaking),
	}
}

// Start opens the output device at the playback rate.
func (p *Playback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(p.tuning.PlaybackRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			samples := make([]int16, frameCount)
			p.Scheduler.Render(samples)
			copy(output, Int16ToBytes(samples))
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start playback device: %w", err)
	}

	p.ctx = ctx
	p.device = device
	p.done = make(chan struct{})
	p.running = true

	go p.flushLoop(p.done)
	p.logger.Info().Int("rate", p.tuning.PlaybackRate).Msg("playback started")
	return nil
}

func (p *Playback) flushLoop(done <-chan struct{}) {
	ticker := time.NewTicker(time.Duration(p.tuning.FlushMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.Scheduler.Flush()
		}
	}
}

// Enqueue hands a decoded PCM fragment to the jitter buffer.
func (p *Playback) Enqueue(pcm []byte) {
	p.Scheduler.Submit(pcm)
}

// DropQueued discards buffered and scheduled audio without touching
// the device. Used on model interruption.
func (p *Playback) DropQueued() {
	p.Scheduler.Stop()
}

func (p *Playback) Speaking() bool {
	return p.Scheduler.Speaking()
}

// Stop discards all buffered and scheduled audio and releases the
// device. Idempotent.
func (p *Playback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Scheduler.Stop()
	if !p.running {
		return
	}
	p.running = false
	close(p.done)
	p.device.Uninit()
	p.ctx.Uninit()
	p.ctx.Free()
	p.device = nil
	p.ctx = nil
	p.logger.Info().Msg("playback stopped")
}
