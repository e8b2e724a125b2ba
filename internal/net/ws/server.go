package ws

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"netsync/internal/net/proto"
	"netsync/internal/telemetry"
	"netsync/logging"
	"netsync/logging/lifecycle"
	"netsync/logging/network"
	"netsync/replication"
)

const (
	// DefaultSendQueue is the per-connection outbound frame buffer.
	DefaultSendQueue = 256
	// DefaultInboxLimit bounds the buffered envelopes per message type.
	DefaultInboxLimit = 4096

	metricConnections   = "transport_connections"
	metricFramesIn      = "transport_frames_received_total"
	metricFramesDropped = "transport_frames_dropped_total"
	metricBackpressure  = "transport_backpressure_total"
	metricBytesSent     = "transport_bytes_sent_total"
)

// Options configures the websocket transports.
type Options struct {
	// Messages lists the accepted message types. Frames of other types are
	// dropped. A nil table accepts everything.
	Messages   *replication.MessageTable
	Publisher  logging.Publisher
	Metrics    telemetry.Metrics
	Logger     telemetry.Logger
	SendQueue  int
	InboxLimit int
	// RateLimit caps inbound frames per second per connection. Zero
	// disables the limit.
	RateLimit rate.Limit
	RateBurst int

	OnConnect    func(replication.ConnID)
	OnDisconnect func(replication.ConnID)
}

func (o Options) normalized() Options {
	if o.Publisher == nil {
		o.Publisher = logging.NopPublisher()
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.NopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if o.SendQueue <= 0 {
		o.SendQueue = DefaultSendQueue
	}
	if o.InboxLimit <= 0 {
		o.InboxLimit = DefaultInboxLimit
	}
	return o
}

// SessionInfo describes an open connection for diagnostics.
type SessionInfo struct {
	Conn       replication.ConnID `json:"conn"`
	Session    string             `json:"session"`
	RemoteAddr string             `json:"remoteAddr"`
	Connected  time.Time          `json:"connected"`
	Pending    int                `json:"pending"`
}

type serverConn struct {
	id         replication.ConnID
	session    string
	remoteAddr string
	connected  time.Time
	link       *link
}

// Server is the authority side of the websocket transport. It upgrades
// incoming HTTP requests and implements replication.AuthorityTransport.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	inbox    *inbox

	mu     sync.RWMutex
	conns  map[replication.ConnID]*serverConn
	nextID replication.ConnID
	closed bool
	wg     sync.WaitGroup
}

var _ replication.AuthorityTransport = (*Server)(nil)

// NewServer constructs an authority transport.
func NewServer(opts Options) *Server {
	opts = opts.normalized()
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		inbox: newInbox(opts.InboxLimit),
		conns: make(map[replication.ConnID]*serverConn),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Printf("[transport] upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	conn, ok := s.register(ws, r.RemoteAddr)
	if !ok {
		_ = ws.Close()
		return
	}
	defer s.wg.Done()

	go conn.link.writeLoop()
	lifecycle.PeerConnected(r.Context(), s.opts.Publisher, 0, peerRef(conn.id), lifecycle.PeerConnectedPayload{
		Session:    conn.session,
		RemoteAddr: conn.remoteAddr,
	}, nil)
	if s.opts.OnConnect != nil {
		s.opts.OnConnect(conn.id)
	}

	s.readLoop(r.Context(), conn)
	s.unregister(conn)

	lifecycle.PeerDisconnected(context.WithoutCancel(r.Context()), s.opts.Publisher, 0, peerRef(conn.id), lifecycle.PeerDisconnectedPayload{
		Session: conn.session,
		Reason:  conn.link.closeReason(),
	}, nil)
	if s.opts.OnDisconnect != nil {
		s.opts.OnDisconnect(conn.id)
	}
}

func (s *Server) register(ws *websocket.Conn, remoteAddr string) (*serverConn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.nextID++
	conn := &serverConn{
		id:         s.nextID,
		session:    uuid.NewString(),
		remoteAddr: remoteAddr,
		connected:  time.Now(),
		link:       newLink(ws, s.opts.SendQueue, s.opts.RateLimit, s.opts.RateBurst),
	}
	s.conns[conn.id] = conn
	s.wg.Add(1)
	s.opts.Metrics.Store(metricConnections, uint64(len(s.conns)))
	return conn, true
}

func (s *Server) unregister(conn *serverConn) {
	s.mu.Lock()
	delete(s.conns, conn.id)
	count := len(s.conns)
	s.mu.Unlock()
	s.opts.Metrics.Store(metricConnections, uint64(count))
}

func (s *Server) readLoop(ctx context.Context, conn *serverConn) {
	conn.link.prepareRead()
	for {
		_, data, err := conn.link.ws.ReadMessage()
		if err != nil {
			reason := "closed"
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = err.Error()
			}
			conn.link.close(reason)
			return
		}
		s.opts.Metrics.Add(metricFramesIn, 1)
		if !conn.link.allow() {
			s.drop(ctx, conn.id, network.DropRateLimited, "", "")
			continue
		}
		msg, env, err := proto.DecodeFrame(data)
		if err != nil {
			s.drop(ctx, conn.id, network.DropMalformed, "", err.Error())
			continue
		}
		if !accepts(s.opts.Messages, msg) {
			s.drop(ctx, conn.id, network.DropUnregistered, string(msg), "")
			continue
		}
		env.Sender = conn.id
		if !s.inbox.push(msg, env) {
			s.drop(ctx, conn.id, network.DropBacklog, string(msg), "")
		}
	}
}

func (s *Server) drop(ctx context.Context, id replication.ConnID, reason, msg, detail string) {
	s.opts.Metrics.Add(metricFramesDropped, 1)
	network.FrameDropped(ctx, s.opts.Publisher, peerRef(id), network.FrameDroppedPayload{
		Reason:  reason,
		Message: msg,
		Detail:  detail,
	}, nil)
}

// Connections lists the open connections.
func (s *Server) Connections() []replication.ConnID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]replication.ConnID, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SendTo queues the envelope for conn. It never blocks; a full queue
// returns ErrBackpressure. Message types missing from Options.Messages are
// refused with replication.ErrUnregisteredMessage.
func (s *Server) SendTo(id replication.ConnID, msg replication.MessageType, env replication.Envelope) error {
	s.mu.RLock()
	conn, ok := s.conns[id]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("send to %d: %w", id, ErrUnknownConnection)
	}
	if !accepts(s.opts.Messages, msg) {
		return &replication.RegistrationError{Message: msg, Err: replication.ErrUnregisteredMessage}
	}
	data, err := proto.EncodeFrame(msg, env)
	if err != nil {
		return err
	}
	if err := conn.link.enqueue(data); err != nil {
		if errors.Is(err, ErrBackpressure) {
			s.opts.Metrics.Add(metricBackpressure, 1)
		}
		return fmt.Errorf("send to %d: %w", id, err)
	}
	s.opts.Metrics.Add(metricBytesSent, uint64(len(data)))
	return nil
}

// Drain returns and clears the envelopes buffered for msg.
func (s *Server) Drain(msg replication.MessageType) []replication.Envelope {
	return s.inbox.drain(msg)
}

// Disconnect closes one connection.
func (s *Server) Disconnect(id replication.ConnID, reason string) bool {
	s.mu.RLock()
	conn, ok := s.conns[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	conn.link.close(reason)
	return true
}

// Sessions describes the open connections in ConnID order.
func (s *Server) Sessions() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]SessionInfo, 0, len(s.conns))
	for _, conn := range s.conns {
		sessions = append(sessions, SessionInfo{
			Conn:       conn.id,
			Session:    conn.session,
			RemoteAddr: conn.remoteAddr,
			Connected:  conn.connected,
			Pending:    len(conn.link.send),
		})
	}
	slices.SortFunc(sessions, func(a, b SessionInfo) int {
		return cmp.Compare(a.Conn, b.Conn)
	})
	return sessions
}

// Close disconnects every peer and waits for their handlers to return.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*serverConn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.link.close("server shutdown")
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func accepts(table *replication.MessageTable, msg replication.MessageType) bool {
	if table == nil {
		return true
	}
	_, ok := table.Lookup(msg)
	return ok
}

func peerRef(id replication.ConnID) logging.EntityRef {
	return logging.EntityRef{ID: strconv.FormatUint(uint64(id), 10), Kind: logging.EntityKindPeer}
}
