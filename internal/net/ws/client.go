package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"netsync/internal/net/proto"
	"netsync/logging"
	"netsync/logging/network"
	"netsync/replication"
)

// Client is the peer side of the websocket transport. It implements
// replication.PeerTransport; every inbound envelope is stamped as coming
// from the authority.
type Client struct {
	opts  Options
	inbox *inbox

	mu   sync.RWMutex
	link *link

	closed chan struct{}
	once   sync.Once
}

var _ replication.PeerTransport = (*Client)(nil)

// NewClient constructs an unconnected peer transport. Send fails with
// ErrClosed until Connect succeeds.
func NewClient(opts Options) *Client {
	opts = opts.normalized()
	return &Client{
		opts:   opts,
		inbox:  newInbox(opts.InboxLimit),
		closed: make(chan struct{}),
	}
}

// Dial connects to the authority at url.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	c := NewClient(opts)
	if err := c.Connect(ctx, url); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect dials the authority at url. A client connects at most once.
func (c *Client) Connect(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != nil {
		return fmt.Errorf("dial %s: already connected", url)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	c.link = newLink(ws, c.opts.SendQueue, c.opts.RateLimit, c.opts.RateBurst)
	go c.link.writeLoop()
	go c.readLoop(c.link)
	return nil
}

func (c *Client) current() *link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.link
}

func (c *Client) readLoop(l *link) {
	defer c.once.Do(func() { close(c.closed) })
	ctx := context.Background()
	authority := logging.EntityRef{ID: "authority", Kind: logging.EntityKindAuthority}
	l.prepareRead()
	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			l.close(err.Error())
			return
		}
		c.opts.Metrics.Add(metricFramesIn, 1)
		msg, env, err := proto.DecodeFrame(data)
		if err != nil {
			c.opts.Metrics.Add(metricFramesDropped, 1)
			network.FrameDropped(ctx, c.opts.Publisher, authority, network.FrameDroppedPayload{Reason: network.DropMalformed, Detail: err.Error()}, nil)
			continue
		}
		if !accepts(c.opts.Messages, msg) {
			c.opts.Metrics.Add(metricFramesDropped, 1)
			network.FrameDropped(ctx, c.opts.Publisher, authority, network.FrameDroppedPayload{Reason: network.DropUnregistered, Message: string(msg)}, nil)
			continue
		}
		env.Sender = replication.AuthorityConn
		if !c.inbox.push(msg, env) {
			c.opts.Metrics.Add(metricFramesDropped, 1)
			network.FrameDropped(ctx, c.opts.Publisher, authority, network.FrameDroppedPayload{Reason: network.DropBacklog, Message: string(msg)}, nil)
		}
	}
}

// Send queues the envelope for the authority without blocking.
func (c *Client) Send(msg replication.MessageType, env replication.Envelope) error {
	l := c.current()
	if l == nil {
		return ErrClosed
	}
	if !accepts(c.opts.Messages, msg) {
		return &replication.RegistrationError{Message: msg, Err: replication.ErrUnregisteredMessage}
	}
	data, err := proto.EncodeFrame(msg, env)
	if err != nil {
		return err
	}
	if err := l.enqueue(data); err != nil {
		if errors.Is(err, ErrBackpressure) {
			c.opts.Metrics.Add(metricBackpressure, 1)
		}
		return err
	}
	c.opts.Metrics.Add(metricBytesSent, uint64(len(data)))
	return nil
}

// Drain returns and clears the envelopes buffered for msg.
func (c *Client) Drain(msg replication.MessageType) []replication.Envelope {
	return c.inbox.drain(msg)
}

// Done is closed once the connection to the authority is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Reason reports why the connection closed, if it has.
func (c *Client) Reason() string {
	if l := c.current(); l != nil {
		return l.closeReason()
	}
	return ""
}

// Close ends the connection.
func (c *Client) Close() error {
	if l := c.current(); l != nil {
		l.close("client closed")
	}
	return nil
}
