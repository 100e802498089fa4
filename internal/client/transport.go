package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/signaling/internal/core"
)

// Transport is the signaling connection a session speaks over. The
// session never references a concrete transport type; any backend that
// can deliver frames both ways fits here.
type Transport interface {
	Connect(ctx context.Context) error
	Send(v any) error
	// Frames delivers inbound frames in arrival order. The channel is
	// closed when the connection drops.
	Frames() <-chan core.Frame
	Close() error
}

// WSTransport implements Transport over a gorilla websocket.
type WSTransport struct {
	url    string
	header http.Header

	mu     sync.Mutex
	conn   *websocket.Conn
	frames chan core.Frame
}

func NewWSTransport(url string, header http.Header) *WSTransport {
	return &WSTransport{
		url:    url,
		header: header,
		frames: make(chan core.Frame, 32),
	}
}

func (t *WSTransport) Connect(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	defer close(t.frames)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "client").Msg("transport read ended")
			return
		}
		t.frames <- core.Frame(data)
	}
}

func (t *WSTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	return t.conn.WriteJSON(v)
}

func (t *WSTransport) Frames() <-chan core.Frame { return t.frames }

func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
