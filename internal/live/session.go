package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicekiosk/voicekiosk/internal/audio"
	"github.com/voicekiosk/voicekiosk/internal/catalog"
	"github.com/voicekiosk/voicekiosk/internal/config"
	"github.com/voicekiosk/voicekiosk/internal/dispatch"
	"github.com/voicekiosk/voicekiosk/internal/order"
)

// State is the session lifecycle position.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

type captureEngine interface {
	Start() error
	Stop()
}

type playbackEngine interface {
	Start() error
	Stop()
	Enqueue(pcm []byte)
	DropQueued()
	Speaking() bool
}

const systemPrompt = `You are the voice of a food ordering kiosk. Greet the customer,
take their order using the provided tools, and keep replies short and
spoken-friendly. Always act through tools; never invent menu items or
prices. React to the machine-readable result tokens the tools return.`

// Session owns one live connection to the hosted voice model. It
// bridges microphone batches out, plays returned audio, and routes
// tool invocations to the dispatcher. Audio forwarding never waits on
// tool handling.
type Session struct {
	logger zerolog.Logger
	cfg    *config.Config
	orders *order.Manager
	disp   *dispatch.Dispatcher
	screen *ScreenTracker
	dial   func() Transport

	capture  captureEngine
	playback playbackEngine

	watchdogTick time.Duration

	mu            sync.Mutex
	state         State
	gen           int
	transport     Transport
	sendCh        chan clientMessage
	done          chan struct{}
	lastActivity  time.Time
	audioSent     bool
	turnStartedAt time.Time
}

func NewSession(cfg *config.Config, orders *order.Manager, disp *dispatch.Dispatcher, dial func() Transport, logger zerolog.Logger) *Session {
	s := &Session{
		logger:       logger.With().Str("component", "session").Logger(),
		cfg:          cfg,
		orders:       orders,
		disp:         disp,
		dial:         dial,
		state:        StateDisconnected,
		watchdogTick: 5 * time.Second,
	}
	gap := time.Duration(cfg.Tuning.ScreenMinGapMs) * time.Millisecond
	s.screen = NewScreenTracker(gap, s.sendScreenText, logger)
	orders.Subscribe(func(snap order.Snapshot) { s.screen.Observe(snap) })
	disp.SetStopFunc(s.Disconnect)
	return s
}

// AttachAudio wires the device engines. Must be called before Connect;
// split from the constructor because the capture engine needs the
// session as its sink.
func (s *Session) AttachAudio(c captureEngine, p playbackEngine) {
	s.capture = c
	s.playback = p
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) active(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.state == StateConnected
}

// Connect opens the transport and starts the audio engines. A call
// while connecting or connected is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	t := s.dial()
	if err := t.Connect(ctx); err != nil {
		s.abortConnect(gen)
		return err
	}

	model := s.cfg.LiveModel
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := clientMessage{Setup: &setupPayload{
		Model:             model,
		GenerationConfig:  &generationConfig{ResponseModalities: []string{"AUDIO"}},
		SystemInstruction: &content{Parts: []part{{Text: systemPrompt}}},
		Tools:             kioskTools(),
	}}
	if err := t.Send(setup); err != nil {
		t.Close()
		s.abortConnect(gen)
		return fmt.Errorf("send setup: %w", err)
	}

	done := make(chan struct{})
	sendCh := make(chan clientMessage, 128)
	toolCh := make(chan dispatch.Invocation, 32)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		t.Close()
		return nil
	}
	s.transport = t
	s.done = done
	s.sendCh = sendCh
	s.lastActivity = time.Now()
	s.audioSent = false
	s.turnStartedAt = time.Time{}
	s.state = StateConnected
	s.mu.Unlock()

	s.screen.Reset()
	go s.sendLoop(gen, t, sendCh, done)
	go s.readLoop(gen, t, toolCh)
	go s.toolLoop(gen, toolCh, done)
	go s.watchdog(gen, done)

	if err := s.playback.Start(); err != nil {
		s.Disconnect()
		return fmt.Errorf("start playback: %w", err)
	}
	if err := s.capture.Start(); err != nil {
		s.Disconnect()
		return fmt.Errorf("start capture: %w", err)
	}

	if menu := s.orders.Catalog(); menu != nil {
		s.enqueue(clientMessage{ClientContent: &clientContent{
			Turns: []content{{Role: "user", Parts: []part{{Text: menuContext(menu)}}}},
		}})
	}
	s.screen.Observe(s.orders.Snapshot())

	s.logger.Info().Str("model", model).Msg("session connected")
	return nil
}

func (s *Session) abortConnect(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.state == StateConnecting {
		s.state = StateDisconnected
	}
}

// Disconnect tears everything down: capture, playback, transport,
// dedup history and screen state. Idempotent, and safe to call from
// error paths and tool handlers.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.gen++
	t := s.transport
	done := s.done
	s.transport = nil
	s.done = nil
	s.sendCh = nil
	s.mu.Unlock()

	if s.capture != nil {
		s.capture.Stop()
	}
	if s.playback != nil {
		s.playback.Stop()
	}
	if done != nil {
		close(done)
	}
	if t != nil {
		t.Close()
	}
	s.disp.Reset()
	s.screen.Reset()
	s.logger.Info().Msg("session disconnected")
}

func (s *Session) enqueue(msg clientMessage) {
	s.mu.Lock()
	ch := s.sendCh
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || ch == nil {
		return
	}
	select {
	case ch <- msg:
	default:
		s.logger.Warn().Msg("outbound queue full, dropping message")
	}
}

func (s *Session) sendLoop(gen int, t Transport, sendCh <-chan clientMessage, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-sendCh:
			if err := t.Send(msg); err != nil {
				if s.active(gen) {
					s.logger.Warn().Err(err).Msg("live send failed")
					s.Disconnect()
				}
				return
			}
		}
	}
}

func (s *Session) readLoop(gen int, t Transport, toolCh chan<- dispatch.Invocation) {
	for raw := range t.Receive() {
		if !s.active(gen) {
			return
		}
		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("undecodable server message")
			continue
		}
		s.handleServer(gen, &msg, toolCh)
	}
	if s.active(gen) {
		s.logger.Warn().Msg("live connection lost")
		s.Disconnect()
	}
}

func (s *Session) handleServer(gen int, msg *serverMessage, toolCh chan<- dispatch.Invocation) {
	if msg.SetupComplete != nil {
		s.logger.Debug().Msg("live setup complete")
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			s.playback.DropQueued()
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MimeType, "audio/pcm") {
					continue
				}
				pcm, err := audio.DecodeBase64(p.InlineData.Data)
				if err != nil {
					s.logger.Warn().Err(err).Msg("bad audio fragment")
					continue
				}
				s.playback.Enqueue(pcm)
				s.markActivity()
				s.noteResponseLatency()
			}
		}
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			inv := dispatch.Invocation{ID: fc.ID, Name: fc.Name, Args: fc.Args}
			// Never block the audio path on a slow handler.
			select {
			case toolCh <- inv:
			default:
				s.logger.Warn().Str("tool", fc.Name).Msg("tool queue full, dropping invocation")
			}
		}
	}
}

// toolLoop runs invocations strictly in arrival order, off the audio
// path.
func (s *Session) toolLoop(gen int, toolCh <-chan dispatch.Invocation, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case inv := <-toolCh:
			// An invocation queued just before teardown must not touch
			// order state once the generation is stale.
			if !s.active(gen) {
				return
			}
			res, ok := s.disp.Handle(inv)
			if !ok || !s.active(gen) {
				continue
			}
			s.enqueue(clientMessage{ToolResponse: &toolResponse{
				FunctionResponses: []functionResponse{{
					ID:       res.ID,
					Name:     res.Name,
					Response: map[string]string{"result": res.Output},
				}},
			}})
		}
	}
}

// watchdog closes an idle session. lastActivity is fed by inbound
// playback audio only; a silent but running microphone never defers
// the timeout.
func (s *Session) watchdog(gen int, done <-chan struct{}) {
	ticker := time.NewTicker(s.watchdogTick)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !s.active(gen) {
				return
			}
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			s.mu.Unlock()
			if idle > s.cfg.Tuning.SilenceTimeout() && !s.playback.Speaking() {
				s.logger.Warn().Dur("idle", idle).Msg("silence timeout, closing session")
				s.Disconnect()
				return
			}
		}
	}
}

func (s *Session) markActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) noteResponseLatency() {
	s.mu.Lock()
	if s.turnStartedAt.IsZero() {
		s.mu.Unlock()
		return
	}
	dur := time.Since(s.turnStartedAt)
	s.turnStartedAt = time.Time{}
	s.mu.Unlock()
	s.logger.Debug().Dur("latency", dur).Msg("first audio after user speech")
}

func (s *Session) sendScreenText(text string) {
	s.enqueue(clientMessage{RealtimeInput: &realtimeInput{Text: text}})
}

// SendBatch forwards one capture batch. Runs on the capture drain path
// and must not block; a full queue drops the batch.
func (s *Session) SendBatch(samples []int16) {
	b64 := audio.EncodeBase64(samples)
	s.enqueue(clientMessage{RealtimeInput: &realtimeInput{
		MediaChunks: []mediaChunk{{MimeType: "audio/pcm;rate=16000", Data: b64}},
	}})
	s.mu.Lock()
	first := !s.audioSent && s.state == StateConnected
	if first {
		s.audioSent = true
	}
	s.mu.Unlock()
	if first {
		s.screen.Arm()
	}
}

// TurnEnd signals end of the user's utterance.
func (s *Session) TurnEnd() {
	s.enqueue(clientMessage{RealtimeInput: &realtimeInput{AudioStreamEnd: true}})
}

// Interrupt discards scheduled playback when the user talks over the
// model.
func (s *Session) Interrupt() {
	s.playback.DropQueued()
}

// Activity marks the first confirmed user speech of a turn; response
// latency is measured from here to the first audio fragment back.
// Deliberately not routed into the idle watchdog, which keys off
// playback alone.
func (s *Session) Activity() {
	s.mu.Lock()
	if s.turnStartedAt.IsZero() {
		s.turnStartedAt = time.Now()
	}
	s.mu.Unlock()
}

func menuContext(menu *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("Here is today's menu. Use exact item names when calling tools.\n")
	for _, cat := range menu.Categories {
		b.WriteString(cat.Name)
		b.WriteString(": ")
		for i := range cat.Items {
			it := &cat.Items[i]
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(it.Name)
			if len(it.Variants) == 1 {
				fmt.Fprintf(&b, " £%.2f", float64(it.Variants[0].Price)/100)
			} else if len(it.Variants) > 1 {
				names := make([]string, len(it.Variants))
				for vi := range it.Variants {
					names[vi] = it.Variants[vi].Name
				}
				b.WriteString(" (" + strings.Join(names, "/") + ")")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
