package replication

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"netsync/logging"
	replicationlog "netsync/logging/replication"
)

// Channel replicates one attribute type. It owns the Replication Records of
// every entity carrying the attribute and runs that attribute's Inbound and
// Outbound Pipelines.
type Channel[T any] struct {
	r       *Replicator
	binding Binding[T]
	records map[EntityID]*Record
	order   []EntityID
	resync  *ResyncQueue
	actor   logging.EntityRef
}

func newChannel[T any](r *Replicator, b Binding[T]) *Channel[T] {
	return &Channel[T]{
		r:       r,
		binding: b,
		records: make(map[EntityID]*Record),
		resync:  NewResyncQueue(r.resyncCapacity, r.metrics),
		actor:   logging.EntityRef{ID: string(b.Message), Kind: logging.EntityKindChannel},
	}
}

// Message reports the channel's message type.
func (c *Channel[T]) Message() MessageType {
	return c.binding.Message
}

// Track attaches a Replication Record for the attribute to entity id.
func (c *Channel[T]) Track(id EntityID, rec Record) error {
	if c == nil {
		return fmt.Errorf("track entity %d: nil channel", id)
	}
	if _, exists := c.records[id]; exists {
		return fmt.Errorf("track entity %d on %s: %w", id, c.binding.Message, ErrDuplicateEntity)
	}
	rec.hazardReported = false
	stored := rec
	c.records[id] = &stored
	idx, _ := slices.BinarySearch(c.order, id)
	c.order = slices.Insert(c.order, idx, id)
	return nil
}

// Untrack removes the entity's record. Unknown ids are ignored.
func (c *Channel[T]) Untrack(id EntityID) {
	if c == nil {
		return
	}
	c.forget(id)
}

// Record returns a copy of the entity's record.
func (c *Channel[T]) Record(id EntityID) (Record, bool) {
	if c == nil {
		return Record{}, false
	}
	rec, ok := c.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Tracked lists the entities carrying a record, in ascending order.
func (c *Channel[T]) Tracked() []EntityID {
	if c == nil {
		return nil
	}
	return slices.Clone(c.order)
}

// Resync flags the entities for a forced send on the next EndTick.
func (c *Channel[T]) Resync(ids ...EntityID) {
	if c == nil {
		return
	}
	for _, id := range ids {
		c.resync.Push(ResyncRequest{Entity: id})
	}
}

// ResyncAll flags every tracked entity for a forced send on the next EndTick.
func (c *Channel[T]) ResyncAll() {
	if c == nil {
		return
	}
	c.resync.Push(ResyncRequest{All: true})
}

func (c *Channel[T]) messageType() MessageType {
	return c.binding.Message
}

func (c *Channel[T]) requestResync(req ResyncRequest) {
	c.resync.Push(req)
}

func (c *Channel[T]) forget(id EntityID) {
	if _, ok := c.records[id]; !ok {
		return
	}
	delete(c.records, id)
	if idx, found := slices.BinarySearch(c.order, id); found {
		c.order = slices.Delete(c.order, idx, idx+1)
	}
}

func (c *Channel[T]) summary() ChannelSummary {
	return ChannelSummary{
		Message:       c.binding.Message,
		Reliability:   c.binding.Reliability.String(),
		Tracked:       len(c.records),
		PendingResync: c.resync.Len(),
	}
}

func (c *Channel[T]) drain() []Envelope {
	if c.r.role == RoleAuthority {
		if c.r.authority == nil {
			return nil
		}
		return c.r.authority.Drain(c.binding.Message)
	}
	if c.r.peer == nil {
		return nil
	}
	return c.r.peer.Drain(c.binding.Message)
}

// receive is the Inbound Pipeline. The drained batch is consumed entirely;
// entries that are not applied this tick are gone.
func (c *Channel[T]) receive(ctx context.Context, tick uint32) {
	batch := c.drain()
	c.countUnapplicable(batch)

	ids := c.r.ids
	for _, id := range c.order {
		rec := c.records[id]
		if c.r.role == RoleAuthority && !rec.hazardReported && rec.Authority.Hazard() {
			c.reportHazard(ctx, tick, id, rec)
		}
		if len(batch) == 0 {
			continue
		}
		accept := rec.acceptor(c.r.role)
		if accept == nil {
			continue
		}
		handle, ok := ids.Resolve(id)
		if !ok {
			continue
		}
		envs, values := c.decodeCandidates(ctx, tick, batch, id, accept)
		res, ok := Resolve(envs, id, rec.LastApplied, nil)
		if !ok {
			continue
		}
		value := values[res.Index]
		if !c.binding.Store.Set(handle, value) {
			continue
		}
		rec.LastApplied = res.LastApplied
		c.r.metrics.Add(metricUpdatesApplied, 1)
		if res.Candidates > 1 {
			c.r.metrics.Add(metricUpdatesSuperseded, uint64(res.Candidates-1))
		}
		replicationlog.UpdateApplied(ctx, c.r.publisher, uint64(tick), entityRef(id), replicationlog.UpdateAppliedPayload{
			Message:    string(c.binding.Message),
			Sender:     uint64(res.Winner.Sender),
			SendTime:   res.Winner.Time.Pointer(),
			Candidates: res.Candidates,
		}, nil)
	}
}

// decodeCandidates returns the entries for id from accepted senders whose
// payload decodes, with their values. Entries that fail to decode are
// reported and take no part in resolution.
func (c *Channel[T]) decodeCandidates(ctx context.Context, tick uint32, batch []Envelope, id EntityID, accept func(ConnID) bool) ([]Envelope, []T) {
	var (
		envs   []Envelope
		values []T
	)
	for _, env := range batch {
		if env.Entity != id || !accept(env.Sender) {
			continue
		}
		value, err := c.binding.Codec.Decode(env.Payload)
		if err != nil {
			c.r.metrics.Add(metricDecodeFailures, 1)
			replicationlog.DecodeFailed(ctx, c.r.publisher, uint64(tick), entityRef(id), replicationlog.DecodeFailedPayload{
				Message: string(c.binding.Message),
				Sender:  uint64(env.Sender),
				Error:   err.Error(),
			}, nil)
			continue
		}
		envs = append(envs, env)
		values = append(values, value)
	}
	return envs, values
}

// countUnapplicable records entries that can never be applied: unknown
// entities are expected under join and leave races and are only counted.
func (c *Channel[T]) countUnapplicable(batch []Envelope) {
	var unmatched, filtered uint64
	for _, env := range batch {
		rec, tracked := c.records[env.Entity]
		if !tracked {
			unmatched++
			continue
		}
		if _, bound := c.r.ids.Resolve(env.Entity); !bound {
			unmatched++
			continue
		}
		if accept := rec.acceptor(c.r.role); accept == nil || !accept(env.Sender) {
			filtered++
		}
	}
	if unmatched > 0 {
		c.r.metrics.Add(metricUpdatesUnmatched, unmatched)
	}
	if filtered > 0 {
		c.r.metrics.Add(metricUpdatesFiltered, filtered)
	}
}

func (c *Channel[T]) reportHazard(ctx context.Context, tick uint32, id EntityID, rec *Record) {
	rec.hazardReported = true
	to, _ := rec.Authority.To()
	from, _ := rec.Authority.From()
	c.r.metrics.Add(metricOverlapHazards, 1)
	replicationlog.OverlapHazard(ctx, c.r.publisher, uint64(tick), entityRef(id), replicationlog.OverlapPayload{
		Message: string(c.binding.Message),
		To:      to.String(),
		From:    from.String(),
	}, nil)
}

// send is the Outbound Pipeline. It consumes the store's change set and the
// resync queue, so an entity is sent at most once per call.
func (c *Channel[T]) send(ctx context.Context, tick uint32) {
	triggered := c.triggered(ctx, tick)
	if len(triggered) == 0 {
		return
	}

	var conns []ConnID
	if c.r.role == RoleAuthority {
		if c.r.authority == nil {
			return
		}
		conns = slices.Clone(c.r.authority.Connections())
		slices.Sort(conns)
	} else if c.r.peer == nil {
		return
	}

	for _, id := range triggered {
		rec := c.records[id]
		if !rec.sends(c.r.role) {
			continue
		}
		handle, ok := c.r.ids.Resolve(id)
		if !ok {
			continue
		}
		value, ok := c.binding.Store.Get(handle)
		if !ok {
			continue
		}
		payload, err := c.binding.Codec.Encode(value)
		if err != nil {
			c.r.metrics.Add(metricEncodeFailures, 1)
			c.reportSendFailure(ctx, tick, id, AuthorityConn, fmt.Errorf("encode: %w", err))
			continue
		}
		env := Envelope{Entity: id, Payload: payload, Time: At(tick)}

		if c.r.role == RolePeer {
			c.deliver(ctx, tick, id, AuthorityConn, env, c.r.peer.Send)
			continue
		}
		to, _ := rec.Authority.To()
		for _, conn := range conns {
			if !to.Matches(conn) {
				continue
			}
			c.deliver(ctx, tick, id, conn, env, func(msg MessageType, env Envelope) error {
				return c.r.authority.SendTo(conn, msg, env)
			})
		}
	}
}

func (c *Channel[T]) deliver(ctx context.Context, tick uint32, id EntityID, conn ConnID, env Envelope, send func(MessageType, Envelope) error) {
	if err := send(c.binding.Message, env); err != nil {
		c.r.metrics.Add(metricSendFailures, 1)
		c.reportSendFailure(ctx, tick, id, conn, err)
		return
	}
	c.r.metrics.Add(metricEnvelopesSent, 1)
}

func (c *Channel[T]) reportSendFailure(ctx context.Context, tick uint32, id EntityID, conn ConnID, err error) {
	replicationlog.SendFailed(ctx, c.r.publisher, uint64(tick), entityRef(id), replicationlog.SendFailedPayload{
		Message:   string(c.binding.Message),
		Recipient: uint64(conn),
		Error:     err.Error(),
	}, nil)
}

// triggered returns the tracked entities that changed or were flagged for
// resync, deduplicated and sorted.
func (c *Channel[T]) triggered(ctx context.Context, tick uint32) []EntityID {
	set := make(map[EntityID]struct{})
	for _, handle := range c.binding.Store.Changed() {
		id, ok := c.r.ids.Lookup(handle)
		if !ok {
			continue
		}
		if _, tracked := c.records[id]; tracked {
			set[id] = struct{}{}
		}
	}

	if requests := c.resync.Drain(); len(requests) > 0 {
		all := false
		forced := 0
		for _, req := range requests {
			if req.All {
				all = true
				break
			}
			if _, tracked := c.records[req.Entity]; tracked {
				set[req.Entity] = struct{}{}
				forced++
			}
		}
		if all {
			for _, id := range c.order {
				set[id] = struct{}{}
			}
			forced = len(c.order)
		}
		c.r.metrics.Add(metricForcedResyncs, uint64(len(requests)))
		replicationlog.ForcedResync(ctx, c.r.publisher, uint64(tick), c.actor, replicationlog.ForcedResyncPayload{
			Message:  string(c.binding.Message),
			All:      all,
			Entities: forced,
		}, nil)
	}

	if len(set) == 0 {
		return nil
	}
	ids := make([]EntityID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func entityRef(id EntityID) logging.EntityRef {
	return logging.EntityRef{ID: strconv.FormatUint(uint64(id), 10), Kind: logging.EntityKindEntity}
}
