package live

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultEndpoint is the hosted model's bidirectional streaming URL.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Transport is the message pipe to the hosted model. Receive's channel
// closes when the connection drops, however it drops.
type Transport interface {
	Connect(ctx context.Context) error
	Send(v any) error
	Receive() <-chan []byte
	Close() error
}

type wsTransport struct {
	logger   zerolog.Logger
	endpoint string
	apiKey   string

	mu     sync.Mutex
	conn   *websocket.Conn
	in     chan []byte
	done   chan struct{}
	closed bool
}

// NewTransport dials the live endpoint with the API key as a query
// parameter, the scheme the service expects. An empty endpoint uses
// DefaultEndpoint.
func NewTransport(endpoint, apiKey string, logger zerolog.Logger) Transport {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &wsTransport{
		logger:   logger.With().Str("component", "transport").Logger(),
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

func (t *wsTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	if t.apiKey == "" {
		return fmt.Errorf("live api key is empty")
	}

	u, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Errorf("live endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", t.apiKey)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			t.logger.Error().Int("status", resp.StatusCode).Msg("live handshake rejected")
		}
		return fmt.Errorf("dial live endpoint: %w", err)
	}

	t.conn = conn
	t.in = make(chan []byte, 64)
	t.done = make(chan struct{})
	go t.readLoop(conn, t.in, t.done)
	t.logger.Info().Str("host", u.Host).Msg("live transport connected")
	return nil
}

func (t *wsTransport) readLoop(conn *websocket.Conn, in chan<- []byte, done <-chan struct{}) {
	defer close(in)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			wasClosed := t.closed
			t.mu.Unlock()
			if !wasClosed {
				t.logger.Warn().Err(err).Msg("live read failed")
			}
			return
		}
		// The session-side reader may stop consuming before Close
		// lands; a full channel must not strand this goroutine.
		select {
		case in <- message:
		case <-done:
			return
		}
	}
}

func (t *wsTransport) Send(v any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport not connected")
	}
	return conn.WriteJSON(v)
}

func (t *wsTransport) Receive() <-chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.in
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	err := t.conn.Close()
	t.conn = nil
	return err
}
