package replication

import (
	"context"
	"fmt"
	"sync/atomic"

	"netsync/internal/telemetry"
	"netsync/logging"
	replicationlog "netsync/logging/replication"
)

// Options carries the ambient dependencies of a Replicator.
type Options struct {
	Publisher      logging.Publisher
	Metrics        telemetry.Metrics
	ResyncCapacity int
}

// ChannelSummary describes a wired channel for diagnostics.
type ChannelSummary struct {
	Message       MessageType `json:"message"`
	Reliability   string      `json:"reliability"`
	Tracked       int         `json:"tracked"`
	PendingResync int         `json:"pendingResync"`
}

type pipeline interface {
	messageType() MessageType
	receive(ctx context.Context, tick uint32)
	send(ctx context.Context, tick uint32)
	forget(id EntityID)
	requestResync(req ResyncRequest)
	summary() ChannelSummary
}

// Replicator drives every attribute channel through the two phases of a tick.
// BeginTick runs the Inbound Pipelines and EndTick the Outbound Pipelines;
// host logic that mutates attributes runs in between. All methods except
// Tick and ResyncAll must be called from the tick goroutine.
type Replicator struct {
	role      Role
	authority AuthorityTransport
	peer      PeerTransport
	ids       *IdentityMap
	channels  []pipeline
	tick      atomic.Uint32

	publisher      logging.Publisher
	metrics        metricSink
	resyncCapacity int
}

// NewAuthority builds the replicator for the authority role.
func NewAuthority(transport AuthorityTransport, opts Options) *Replicator {
	r := newReplicator(RoleAuthority, opts)
	r.authority = transport
	return r
}

// NewPeer builds the replicator for a peer.
func NewPeer(transport PeerTransport, opts Options) *Replicator {
	r := newReplicator(RolePeer, opts)
	r.peer = transport
	return r
}

func newReplicator(role Role, opts Options) *Replicator {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	var metrics metricSink = telemetry.NopMetrics{}
	if opts.Metrics != nil {
		metrics = opts.Metrics
	}
	capacity := opts.ResyncCapacity
	if capacity <= 0 {
		capacity = DefaultResyncCapacity
	}
	return &Replicator{
		role:           role,
		ids:            NewIdentityMap(),
		publisher:      logging.WithFields(publisher, map[string]any{"role": role.String()}),
		metrics:        metrics,
		resyncCapacity: capacity,
	}
}

// Role reports which direction of each Record this replicator honours.
func (r *Replicator) Role() Role {
	return r.role
}

// Identities exposes the entity identity map shared by all channels.
func (r *Replicator) Identities() *IdentityMap {
	if r == nil {
		return nil
	}
	return r.ids
}

// Tick reports the current logical send time.
func (r *Replicator) Tick() uint32 {
	if r == nil {
		return 0
	}
	return r.tick.Load()
}

// BeginTick advances the logical clock and applies the updates buffered by the
// transport since the previous tick.
func (r *Replicator) BeginTick(ctx context.Context) {
	if r == nil {
		return
	}
	tick := r.tick.Add(1)
	r.metrics.Store(metricTick, uint64(tick))
	for _, ch := range r.channels {
		ch.receive(ctx, tick)
	}
}

// EndTick sends every attribute that changed or was flagged for resync since
// the previous EndTick.
func (r *Replicator) EndTick(ctx context.Context) {
	if r == nil {
		return
	}
	tick := r.tick.Load()
	for _, ch := range r.channels {
		ch.send(ctx, tick)
	}
}

// Forget drops the entity from the identity map and every channel.
func (r *Replicator) Forget(id EntityID) {
	if r == nil {
		return
	}
	r.ids.Unbind(id)
	for _, ch := range r.channels {
		ch.forget(id)
	}
}

// ResyncAll forces every channel to resend all tracked entities on the next
// EndTick. It is safe to call from any goroutine once registration is done.
func (r *Replicator) ResyncAll() {
	if r == nil {
		return
	}
	for _, ch := range r.channels {
		ch.requestResync(ResyncRequest{All: true})
	}
}

// Channels summarises every wired channel in registration order.
func (r *Replicator) Channels() []ChannelSummary {
	if r == nil {
		return nil
	}
	summaries := make([]ChannelSummary, 0, len(r.channels))
	for _, ch := range r.channels {
		summaries = append(summaries, ch.summary())
	}
	return summaries
}

// Binding pairs an attribute store with its codec and message type.
type Binding[T any] struct {
	Message     MessageType
	Reliability Reliability
	Codec       Codec[T]
	Store       Store[T]
}

// TrySync registers b.Message in table and wires a channel for attribute T.
// Configuration problems are returned as *RegistrationError.
func TrySync[T any](r *Replicator, table *MessageTable, b Binding[T]) (*Channel[T], error) {
	if r == nil {
		return nil, &RegistrationError{Message: b.Message, Err: fmt.Errorf("nil replicator")}
	}
	if b.Message == "" {
		return nil, &RegistrationError{Message: b.Message, Err: fmt.Errorf("empty message type")}
	}
	if b.Codec == nil || b.Store == nil {
		return nil, &RegistrationError{Message: b.Message, Err: fmt.Errorf("binding needs a codec and a store")}
	}
	for _, ch := range r.channels {
		if ch.messageType() == b.Message {
			return nil, &RegistrationError{Message: b.Message, Err: ErrDuplicateRegistration}
		}
	}
	if err := table.Register(b.Message, b.Reliability); err != nil {
		return nil, err
	}

	ch := newChannel(r, b)
	r.channels = append(r.channels, ch)
	replicationlog.ChannelRegistered(context.Background(), r.publisher, uint64(r.tick.Load()), ch.actor, replicationlog.ChannelRegisteredPayload{
		Message:     string(b.Message),
		Reliability: b.Reliability.String(),
		Role:        r.role.String(),
	}, nil)
	return ch, nil
}

// MustSync is TrySync for callers that guarantee each message type is wired
// once; it panics on a configuration error.
func MustSync[T any](r *Replicator, table *MessageTable, b Binding[T]) *Channel[T] {
	ch, err := TrySync(r, table, b)
	if err != nil {
		panic(err)
	}
	return ch
}
