// Package cdp implements a Chrome DevTools Protocol client over WebSocket.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"

	"github.com/editorqa/uidriver/cdp/domains"
	"github.com/editorqa/uidriver/log"
)

// ErrConnectionClosed is returned for commands issued on, or pending
// when, the connection to the browser is closed.
var ErrConnectionClosed = errors.New("CDP connection closed")

var _ cdp.Executor = &Client{}

// Client manages CDP communication with the browser.
type Client struct {
	ctx    context.Context
	logger *log.Logger

	Browser domains.Browser
	Input   domains.Input
	Log     domains.Log
	Page    domains.Page
	Runtime domains.Runtime
	Target  domains.Target

	conn      *connection
	msgID     int64
	sendCh    chan *cdproto.Message
	pendingMu sync.Mutex
	pending   map[int64]chan *cdproto.Message

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	watcher *eventWatcher
	wsURL   string
}

// NewClient returns a new Client that is unusable until a CDP connection is
// established with Connect().
func NewClient(ctx context.Context, logger *log.Logger) *Client {
	c := &Client{
		ctx:     ctx,
		logger:  logger,
		sendCh:  make(chan *cdproto.Message, 32),
		pending: make(map[int64]chan *cdproto.Message),
		done:    make(chan struct{}),
		watcher: newEventWatcher(logger),
	}

	c.Browser = domains.NewBrowser(c)
	c.Input = domains.NewInput(c)
	c.Log = domains.NewLog(c)
	c.Page = domains.NewPage(c)
	c.Runtime = domains.NewRuntime(c)
	c.Target = domains.NewTarget(c)

	return c
}

// Connect to the browser that exposes a CDP API at wsURL.
func (c *Client) Connect(wsURL string) (err error) {
	if c.wsURL != "" {
		return fmt.Errorf("CDP connection already established to %q", c.wsURL)
	}

	if c.conn, err = newConnection(c.ctx, wsURL, c.logger); err != nil {
		return err
	}
	c.logger.Infof("cdp", "established CDP connection to %q", wsURL)
	c.wsURL = wsURL

	go c.recvLoop()
	go c.sendLoop()

	return nil
}

// Disconnect from the browser's CDP API. Pending and later commands fail
// with ErrConnectionClosed.
func (c *Client) Disconnect() {
	c.closeWithError(ErrConnectionClosed)
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection was closed, or nil while it is open.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) closeWithError(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()

		close(c.done)
		c.watcher.close()
		if c.conn != nil {
			if cerr := c.conn.Close(); cerr != nil {
				c.logger.Debugf("cdp", "wsURL:%q closing: %v", c.wsURL, cerr)
			}
		}
	})
}

// Execute implements cdp.Executor. It sends method with params to the
// target of the session in ctx and decodes the reply into res.
func (c *Client) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	sid := GetSessionID(ctx)
	c.logger.Debugf("cdp", "wsURL:%q sid:%q method:%q", c.wsURL, sid, method)

	msg := &cdproto.Message{
		ID:        atomic.AddInt64(&c.msgID, 1),
		Method:    cdproto.MethodType(method),
		SessionID: target.SessionID(sid),
	}
	if params != nil {
		buf, err := easyjson.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshalling %q params: %w", method, err)
		}
		msg.Params = buf
	}

	reply, err := c.roundTrip(ctx, msg)
	if err != nil {
		return err
	}
	if reply.Error != nil {
		return reply.Error
	}
	if res == nil {
		return nil
	}
	return easyjson.Unmarshal(reply.Result, res)
}

// Subscribe returns a channel that will be notified when the provided CDP
// events are received for the session in ctx, and a cancellation function
// that will unsubscribe and close the channel.
func (c *Client) Subscribe(ctx context.Context, events ...cdproto.MethodType) (<-chan *Event, func()) {
	return c.watcher.subscribe(GetSessionID(ctx), events...)
}

// roundTrip queues msg and waits for the reply with the same ID.
func (c *Client) roundTrip(ctx context.Context, msg *cdproto.Message) (*cdproto.Message, error) {
	reply := make(chan *cdproto.Message, 1)
	c.pendingMu.Lock()
	c.pending[msg.ID] = reply
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msg.ID)
		c.pendingMu.Unlock()
	}()

	stage := "sending"
	for out := c.sendCh; ; out = nil {
		select {
		case out <- msg:
			stage = "waiting for reply to"
			continue
		case r := <-reply:
			return r, nil
		case <-c.done:
			return nil, c.closedErr(msg)
		case <-ctx.Done():
			return nil, fmt.Errorf("%s %q: %w", stage, msg.Method, ctx.Err())
		case <-c.ctx.Done():
			select {
			case <-c.done:
				return nil, c.closedErr(msg)
			default:
			}
			return nil, fmt.Errorf("%s %q: %w", stage, msg.Method, c.ctx.Err())
		}
	}
}

func (c *Client) closedErr(msg *cdproto.Message) error {
	err := c.Err()
	if err == nil || errors.Is(err, ErrConnectionClosed) {
		return fmt.Errorf("executing %q: %w", msg.Method, ErrConnectionClosed)
	}
	return fmt.Errorf("executing %q: %w: %v", msg.Method, ErrConnectionClosed, err)
}

// recvLoop reads messages until the connection fails.
func (c *Client) recvLoop() {
	for {
		msg, err := c.conn.readMessage()
		var ioErr wsIOError
		switch {
		case errors.As(err, &ioErr):
			if !isExpectedClose(err) {
				c.logger.Errorf("cdp", "wsURL:%q reading: %v", c.wsURL, err)
			}
			c.closeWithError(err)
			return
		case err != nil:
			c.logger.Errorf("cdp", "wsURL:%q decoding: %v", c.wsURL, err)
		default:
			c.dispatch(msg)
		}
	}
}

// dispatch hands an event to its subscribers and a reply to its caller.
func (c *Client) dispatch(msg *cdproto.Message) {
	if msg.Method != "" {
		data, err := cdproto.UnmarshalMessage(msg)
		if err != nil {
			c.logger.Debugf("cdp", "unmarshalling event %q: %v", msg.Method, err)
			return
		}
		c.watcher.notify(&Event{Name: msg.Method, Data: data, SessionID: string(msg.SessionID)})
		return
	}
	if msg.ID <= 0 {
		c.logger.Errorf("cdp", "dropping message without id or method: %#v", msg)
		return
	}

	c.pendingMu.Lock()
	reply, ok := c.pending[msg.ID]
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debugf("cdp", "no caller waits for message %d", msg.ID)
		return
	}
	select {
	case reply <- msg:
	default:
	}
}

func (c *Client) sendLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.conn.writeMessage(msg); err != nil {
				c.logger.Errorf("cdp", "wsURL:%q writing %q: %v", c.wsURL, msg.Method, err)
				c.closeWithError(err)
				return
			}
		case <-c.done:
			return
		case <-c.ctx.Done():
			c.closeWithError(c.ctx.Err())
			return
		}
	}
}
