package live

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// wsConn abstracts the WebSocket connection so the client can be driven by
// a fake in tests. *websocket.Conn satisfies it.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// Dialer opens a connection to url. The response is returned when the
// server answered the handshake, even on failure.
type Dialer func(ctx context.Context, url string) (wsConn, *http.Response, error)

func dialWebSocket(ctx context.Context, url string) (wsConn, *http.Response, error) {
	conn, resp, err := websocket.Dial(ctx, url, nil) //nolint:bodyclose // websocket.Dial closes the response body internally
	if err != nil {
		return nil, resp, err
	}
	return conn, resp, nil
}
