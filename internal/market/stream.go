package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 30 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// WSStream subscribes to an OpenAlgo WebSocket quote feed and delivers each
// event through a handler callback. The connection is kept alive with pings
// and re-established with exponential backoff, re-subscribing on reconnect.
type WSStream struct {
	wsURL  string
	apiKey string

	mu      sync.Mutex
	conn    *websocket.Conn
	keys    []Key
	handler QuoteHandler
	closed  bool
}

type wsCommand struct {
	Action  string     `json:"action"`
	APIKey  string     `json:"api_key,omitempty"`
	Mode    string     `json:"mode,omitempty"`
	Symbols []wsSymbol `json:"symbols,omitempty"`
}

type wsSymbol struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

type wsEvent struct {
	Type     string         `json:"type"`
	Exchange string         `json:"exchange"`
	Symbol   string         `json:"symbol"`
	Data     map[string]any `json:"data"`
}

func NewWSStream(wsURL, apiKey string) *WSStream {
	return &WSStream{wsURL: wsURL, apiKey: apiKey}
}

func (s *WSStream) Subscribe(ctx context.Context, keys []Key, h QuoteHandler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openalgo/ws: stream is closed")
	}
	s.keys = keys
	s.handler = h
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return err
	}
	go s.run(ctx)
	return nil
}

func (s *WSStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("openalgo/ws: connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.mu.Lock()
	s.conn = conn
	keys := s.keys
	s.mu.Unlock()

	if err := s.send(wsCommand{Action: "authenticate", APIKey: s.apiKey}); err != nil {
		conn.Close()
		return fmt.Errorf("openalgo/ws: authenticate: %w", err)
	}

	symbols := make([]wsSymbol, 0, len(keys))
	for _, k := range keys {
		symbols = append(symbols, wsSymbol{Exchange: k.Exchange, Symbol: k.Symbol})
	}
	if err := s.send(wsCommand{Action: "subscribe", Mode: "quote", Symbols: symbols}); err != nil {
		conn.Close()
		return fmt.Errorf("openalgo/ws: subscribe: %w", err)
	}
	return nil
}

// run owns the connection: it reads until failure, then reconnects with
// backoff until ctx is done or the stream is closed.
func (s *WSStream) run(ctx context.Context) {
	pingDone := make(chan struct{})
	go s.pingLoop(ctx, pingDone)
	defer close(pingDone)

	delay := reconnectDelay
	for {
		err := s.readLoop(ctx)
		if ctx.Err() != nil || s.isClosed() {
			return
		}
		log.Printf("openalgo/ws: connection lost: %v (reconnecting in %s)", err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := s.connect(ctx); err != nil {
			log.Printf("openalgo/ws: reconnect failed: %v", err)
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}
		delay = reconnectDelay
	}
}

func (s *WSStream) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn := s.current()
		if conn == nil {
			return fmt.Errorf("not connected")
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var evt wsEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Printf("openalgo/ws: malformed event: %v", err)
			continue
		}
		s.dispatch(evt)
	}
}

func (s *WSStream) dispatch(evt wsEvent) {
	key := NewKey(evt.Exchange, evt.Symbol)
	if !key.Valid() || evt.Data == nil {
		return
	}
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(key, quoteFromFields(evt.Data))
	}
}

func (s *WSStream) pingLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			conn := s.current()
			if conn == nil {
				continue
			}
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
	}
}

func (s *WSStream) send(cmd wsCommand) error {
	conn := s.current()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(cmd)
}

func (s *WSStream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *WSStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *WSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
