package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nostrsync/relay/log"
	"github.com/nostrsync/relay/metrics/public"
	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/sync2/negsync"
)

var (
	// ErrClientClosed is returned when the connection to the relay is closed.
	ErrClientClosed = errors.New("relay: connection closed")
	// ErrHandlerExists is returned when a handler is already registered for the
	// subscription id.
	ErrHandlerExists = errors.New("relay: subscription handler already registered")
)

// connectionLost is delivered to the registered handlers when the connection drops.
const connectionLost = "error: connection lost"

// ClientOption is a type to configure a client.
type ClientOption func(c *Client)

// WithClientLogger configures logger for the client.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithWriteTimeout sets the write timeout used when the context has no deadline.
func WithWriteTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.writeTimeout = d
	}
}

// Client is a websocket connection to a relay. It routes the incoming frames to the
// handlers by subscription id and implements negsync.Transport.
type Client struct {
	logger       *zap.Logger
	conn         *websocket.Conn
	writeTimeout time.Duration
	eg           errgroup.Group

	wmu sync.Mutex

	mu       sync.Mutex
	handlers map[string]negsync.FrameHandler
	closed   bool
}

var _ negsync.Transport = (*Client)(nil)

// Dial connects to the relay at the websocket url.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		logger:       zap.NewNop(),
		writeTimeout: DefaultConfig().WriteTimeout,
		handlers:     make(map[string]negsync.FrameHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c.conn = conn
	c.logger = c.logger.With(log.ZRemote(url))
	public.Connections.WithLabelValues("outbound").Inc()
	c.eg.Go(func() error {
		c.readLoop()
		return nil
	})
	return c, nil
}

// RegisterHandler implements negsync.Transport.
func (c *Client) RegisterHandler(subID string, h negsync.FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if _, found := c.handlers[subID]; found {
		return fmt.Errorf("%w: %q", ErrHandlerExists, subID)
	}
	c.handlers[subID] = h
	return nil
}

// UnregisterHandler implements negsync.Transport.
func (c *Client) UnregisterHandler(subID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, subID)
}

// Send implements negsync.Transport.
func (c *Client) Send(ctx context.Context, f nip77.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", f.Type, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", f.Type, err)
	}
	return nil
}

// Close closes the connection and waits for the reader to exit.
func (c *Client) Close() error {
	c.wmu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout))
	c.wmu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("failed to send close message", zap.Error(err))
	}
	c.conn.Close()
	c.eg.Wait()
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		public.Connections.WithLabelValues("outbound").Dec()
		c.drop()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		switch nip77.PeekType(data) {
		case nip77.TypeNegMsg, nip77.TypeNegErr, nip77.TypeClosed, nip77.TypeNotice:
		default:
			// frames of the regular subscriptions, such as EVENT and EOSE
			continue
		}
		f, err := nip77.ParseFrame(data)
		if err != nil {
			c.logger.Debug("ignoring bad frame", zap.Error(err))
			continue
		}
		if f.Type == nip77.TypeNotice {
			c.logger.Info("relay notice", zap.String("reason", f.Reason))
			continue
		}
		c.mu.Lock()
		h := c.handlers[f.SubscriptionID]
		c.mu.Unlock()
		if h == nil {
			c.logger.Debug("frame for unknown subscription", zap.Stringer("frame", f))
			continue
		}
		h(f)
	}
}

// drop marks the client closed and notifies the handlers that are still registered.
func (c *Client) drop() {
	c.mu.Lock()
	c.closed = true
	handlers := c.handlers
	c.handlers = make(map[string]negsync.FrameHandler)
	c.mu.Unlock()
	for subID, h := range handlers {
		h(nip77.Closed(subID, connectionLost))
	}
}
