package app

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"netsync/internal/attrs"
	"netsync/internal/config"
	"netsync/internal/net/intake"
	"netsync/internal/sim"
	"netsync/internal/telemetry"
	"netsync/internal/world"
	"netsync/replication"
)

// host is the demo runtime: a set of entities carrying the demo attributes,
// replicated in one role.
type host struct {
	cfg      config.Config
	repl     *replication.Replicator
	messages *replication.MessageTable
	entities *world.Entities
	tables   attrs.Tables
	chans    attrs.Channels
	loop     *sim.Loop
	logger   telemetry.Logger

	// channels is refreshed on the tick goroutine for readers on other goroutines.
	channels    atomic.Pointer[[]replication.ChannelSummary]
	diagnostics func() map[string]any
}

func newHost(cfg config.Config, repl *replication.Replicator, messages *replication.MessageTable, logger telemetry.Logger) (*host, error) {
	h := &host{
		cfg:      cfg,
		repl:     repl,
		messages: messages,
		entities: world.NewEntities(),
		tables:   attrs.NewTables(),
		logger:   logger,
	}
	chans, err := attrs.Sync(repl, messages, h.tables)
	if err != nil {
		return nil, fmt.Errorf("wire attributes: %w", err)
	}
	h.chans = chans
	return h, nil
}

// defaultRecord gives every demo attribute to the authority.
func defaultRecord() replication.Record {
	return replication.NewRecord(replication.AuthorityTo(replication.All()), replication.PeerFrom)
}

func (h *host) record(msg replication.MessageType) (replication.Record, error) {
	ch, ok := h.cfg.Channel(msg)
	if !ok {
		return defaultRecord(), nil
	}
	return ch.Record()
}

// spawn creates entity id with initial attribute values and tracks it on
// every channel. A failed spawn leaves no binding, attributes or tracking.
func (h *host) spawn(id replication.EntityID, pos attrs.Position, name attrs.Name, vis attrs.Visibility) error {
	records := make(map[replication.MessageType]replication.Record, 3)
	for _, msg := range []replication.MessageType{attrs.PositionMessage, attrs.NameMessage, attrs.VisibilityMessage} {
		rec, err := h.record(msg)
		if err != nil {
			return err
		}
		records[msg] = rec
	}

	handle := h.entities.Spawn()
	if err := h.repl.Identities().Bind(id, handle); err != nil {
		h.entities.Despawn(handle)
		return err
	}
	h.tables.Positions.Insert(handle, pos)
	h.tables.Names.Insert(handle, name)
	h.tables.Visibility.Insert(handle, vis)

	err := h.chans.Position.Track(id, records[attrs.PositionMessage])
	if err == nil {
		err = h.chans.Name.Track(id, records[attrs.NameMessage])
	}
	if err == nil {
		err = h.chans.Visibility.Track(id, records[attrs.VisibilityMessage])
	}
	if err != nil {
		h.repl.Forget(id)
		h.tables.Remove(handle)
		h.entities.Despawn(handle)
		return err
	}
	return nil
}

// seed spawns the configured number of entities. The authority places them
// on a circle; peers start from zero values and wait for updates.
func (h *host) seed(authority bool) error {
	for i := 0; i < h.cfg.Entities; i++ {
		id := replication.EntityID(i + 1)
		var (
			pos  attrs.Position
			name attrs.Name
			vis  = attrs.Hidden
		)
		if authority {
			angle := 2 * math.Pi * float64(i) / float64(max(h.cfg.Entities, 1))
			pos = attrs.Position{X: 10 * math.Cos(angle), Y: 10 * math.Sin(angle)}
			name = attrs.Name(fmt.Sprintf("entity-%d", id))
			vis = attrs.Visible
		}
		if err := h.spawn(id, pos, name, vis); err != nil {
			return fmt.Errorf("spawn entity %d: %w", id, err)
		}
	}
	h.refresh()
	return nil
}

func (h *host) refresh() {
	summaries := h.repl.Channels()
	h.channels.Store(&summaries)
}

func (h *host) despawn(id replication.EntityID) bool {
	handle, ok := h.repl.Identities().Resolve(id)
	if !ok {
		return false
	}
	h.repl.Forget(id)
	h.tables.Remove(handle)
	return h.entities.Despawn(handle)
}

// step applies the staged commands. It runs between BeginTick and EndTick.
func (h *host) step(_ context.Context, tick sim.LoopTickContext) {
	for _, cmd := range tick.Commands {
		if err := h.apply(cmd); err != nil {
			h.logger.Printf("[host] tick=%d dropping %s for entity %d: %v", tick.Tick, cmd.Type, cmd.Entity, err)
		}
	}
	h.refresh()
}

func (h *host) apply(cmd sim.Command) error {
	if cmd.Type == sim.CommandResync {
		if cmd.Entity == 0 {
			h.repl.ResyncAll()
			return nil
		}
		h.chans.Position.Resync(cmd.Entity)
		h.chans.Name.Resync(cmd.Entity)
		h.chans.Visibility.Resync(cmd.Entity)
		return nil
	}

	handle, ok := h.repl.Identities().Resolve(cmd.Entity)
	if !ok {
		return fmt.Errorf("unknown entity")
	}
	switch cmd.Type {
	case sim.CommandMove:
		if cmd.Move == nil {
			return fmt.Errorf("missing move payload")
		}
		h.tables.Positions.Update(handle, func(p *attrs.Position) {
			p.X += cmd.Move.DX
			p.Y += cmd.Move.DY
		})
	case sim.CommandRename:
		if cmd.Rename == nil {
			return fmt.Errorf("missing rename payload")
		}
		h.tables.Names.Set(handle, attrs.Name(cmd.Rename.Name))
	case sim.CommandSetVisibility:
		if cmd.Visibility == nil {
			return fmt.Errorf("missing visibility payload")
		}
		mode, err := attrs.ParseVisibility(cmd.Visibility.Mode)
		if err != nil {
			return err
		}
		h.tables.Visibility.Set(handle, mode)
	case sim.CommandDespawn:
		h.despawn(cmd.Entity)
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
	return nil
}

// The methods below back the HTTP surface.

func (h *host) Role() string {
	return h.repl.Role().String()
}

func (h *host) Tick() uint32 {
	return h.repl.Tick()
}

func (h *host) ResyncAll() {
	h.repl.ResyncAll()
}

func (h *host) Submit(cmd sim.Command) (bool, string) {
	_, ok, reason := intake.StageCommand(intake.CommandContext{
		Queue: h.loop,
		Tick:  h.Tick,
		Now:   time.Now,
	}, cmd)
	return ok, reason
}

func (h *host) Diagnostics() any {
	payload := map[string]any{
		"channels": h.channelSummaries(),
		"entities": h.entities.Len(),
		"messages": h.messageList(),
		"pending":  h.loop.Pending(),
	}
	if h.diagnostics != nil {
		for k, v := range h.diagnostics() {
			payload[k] = v
		}
	}
	return payload
}

func (h *host) channelSummaries() []replication.ChannelSummary {
	if summaries := h.channels.Load(); summaries != nil {
		return *summaries
	}
	return nil
}

func (h *host) messageList() []string {
	types := h.messages.Types()
	names := make([]string, 0, len(types))
	for _, msg := range types {
		class, _ := h.messages.Lookup(msg)
		names = append(names, string(msg)+"/"+class.String())
	}
	slices.Sort(names)
	return names
}
