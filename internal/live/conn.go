package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/five82/mochiyoru/internal/gateway"
)

// ErrClosed reports that the peer closed the feed cleanly.
var ErrClosed = errors.New("feed closed")

// Conn is one subscription to a change feed.
type Conn interface {
	// Read blocks for the next frame.
	Read() ([]byte, error)
	Close() error
}

// Dialer opens feed connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

const (
	defaultReadTimeout  = 45 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// WebsocketDialer dials the feed over gorilla/websocket.
type WebsocketDialer struct {
	dialer       *websocket.Dialer
	header       http.Header
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewWebsocketDialer returns a dialer whose connections fail with a timeout
// when neither a frame nor a ping arrives within readTimeout. The origin id,
// when set, is sent so the server can tag the subscriber.
func NewWebsocketDialer(readTimeout time.Duration, origin string) *WebsocketDialer {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	header := http.Header{}
	if origin != "" {
		header.Set(gateway.OriginHeader, origin)
	}
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		header:       header,
		readTimeout:  readTimeout,
		writeTimeout: defaultWriteTimeout,
	}
}

// Dial connects to url.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial feed: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	c := &wsConn{ws: ws, readTimeout: d.readTimeout, writeTimeout: d.writeTimeout}
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return c, nil
}

type wsConn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrClosed
			}
			return nil, err
		}
		if messageType != websocket.TextMessage || len(data) == 0 {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Close() error {
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}
