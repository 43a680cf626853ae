package cdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"
	"github.com/oxtoacart/bpool"

	"github.com/editorqa/uidriver/log"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsBufferSize       = 1 << 20
	wsWriteTimeout     = 10 * time.Second
	sendBufferPoolSize = 32
)

// wsIOError wraps errors coming from the WebSocket connection itself, as
// opposed to errors reported by the browser in a CDP response.
type wsIOError struct {
	err error
}

func (e wsIOError) Error() string { return "websocket I/O: " + e.err.Error() }

func (e wsIOError) Unwrap() error { return e.err }

// connection is a CDP WebSocket connection. Only one goroutine may read
// and only one may write at a time.
type connection struct {
	ws      *websocket.Conn
	bufPool *bpool.BufferPool
	logger  *log.Logger
	wsURL   string
}

func newConnection(ctx context.Context, wsURL string, logger *log.Logger) (*connection, error) {
	wd := &websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
		// CDP responses, such as screenshots, can be large.
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		Proxy:           http.ProxyFromEnvironment,
	}
	conn, _, err := wd.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", wsURL, err)
	}
	return &connection{
		ws:      conn,
		bufPool: bpool.NewBufferPool(sendBufferPoolSize),
		logger:  logger,
		wsURL:   wsURL,
	}, nil
}

func (c *connection) readMessage() (*cdproto.Message, error) {
	_, buf, err := c.ws.ReadMessage()
	if err != nil {
		return nil, wsIOError{err}
	}

	var msg cdproto.Message
	if err := easyjson.Unmarshal(buf, &msg); err != nil {
		return nil, fmt.Errorf("unmarshalling CDP message: %w", err)
	}

	return &msg, nil
}

func (c *connection) writeMessage(msg *cdproto.Message) error {
	var encoder jwriter.Writer
	msg.MarshalEasyJSON(&encoder)
	if err := encoder.Error; err != nil {
		return fmt.Errorf("marshalling CDP message %q: %w", msg.Method, err)
	}

	buf := c.bufPool.Get()
	defer c.bufPool.Put(buf)
	if _, err := encoder.DumpTo(buf); err != nil {
		return fmt.Errorf("encoding CDP message %q: %w", msg.Method, err)
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, buf.Bytes()); err != nil {
		return wsIOError{err}
	}

	return nil
}

// isExpectedClose reports whether err is the result of closing the
// connection on purpose, which needs no logging.
func isExpectedClose(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func (c *connection) Close() error {
	c.logger.Debugf("connection:Close", "wsURL:%q", c.wsURL)

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err := c.ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing websocket connection: %w", err)
	}
	return nil
}
