package sim

import (
	"sync"

	"netsync/internal/telemetry"
	"netsync/replication"
)

const (
	commandBufferOccupancyMetricKey = "sim_command_buffer_occupancy"
	commandBufferOverflowMetricKey  = "sim_command_buffer_overflow_total"
	commandBufferCoalescedMetricKey = "sim_command_buffer_coalesced_total"
)

// CommandBuffer stages commands for the next tick in a fixed-size ring. It
// caps the commands staged per entity and folds repeated resync requests
// into the first one. Safe for concurrent producers and a single consumer.
type CommandBuffer struct {
	mu        sync.Mutex
	data      []Command
	head      int
	tail      int
	count     int
	perEntity int
	staged    map[replication.EntityID]int
	resyncs   map[replication.EntityID]struct{}
	metrics   telemetry.Metrics
}

// NewCommandBuffer constructs a ring with the given capacity. A non-positive
// perEntity disables the per-entity cap.
func NewCommandBuffer(capacity, perEntity int, metrics telemetry.Metrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics{}
	}
	return &CommandBuffer{
		data:      make([]Command, capacity),
		perEntity: perEntity,
		staged:    make(map[replication.EntityID]int),
		resyncs:   make(map[replication.EntityID]struct{}),
		metrics:   metrics,
	}
}

// Capacity reports the maximum number of commands the buffer can hold.
func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Push stages cmd. A resync already covered by a staged one is accepted
// without taking a slot. The reason is empty on success.
func (b *CommandBuffer) Push(cmd Command) (bool, string) {
	if b == nil {
		return false, CommandRejectQueueFull
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if cmd.Type == CommandResync && b.resyncCoveredLocked(cmd.Entity) {
		b.metrics.Add(commandBufferCoalescedMetricKey, 1)
		return true, ""
	}
	if b.perEntity > 0 && cmd.Entity != 0 && b.staged[cmd.Entity] >= b.perEntity {
		return false, CommandRejectQueueLimit
	}
	if b.count == len(b.data) {
		b.metrics.Add(commandBufferOverflowMetricKey, 1)
		return false, CommandRejectQueueFull
	}

	b.data[b.tail] = cmd
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	if cmd.Entity != 0 {
		b.staged[cmd.Entity]++
	}
	if cmd.Type == CommandResync {
		b.resyncs[cmd.Entity] = struct{}{}
	}
	b.metrics.Store(commandBufferOccupancyMetricKey, uint64(b.count))
	return true, ""
}

// Entity 0 is a resync of every entity.
func (b *CommandBuffer) resyncCoveredLocked(entity replication.EntityID) bool {
	if _, all := b.resyncs[0]; all {
		return true
	}
	_, staged := b.resyncs[entity]
	return staged
}

// Drain returns all staged commands in FIFO order and clears the buffer.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	commands := make([]Command, b.count)
	for i := range commands {
		idx := (b.head + i) % len(b.data)
		commands[i] = b.data[idx]
		b.data[idx] = Command{}
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	clear(b.staged)
	clear(b.resyncs)
	b.metrics.Store(commandBufferOccupancyMetricKey, 0)
	return commands
}

// Len reports the number of staged commands.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Staged reports the commands staged for entity.
func (b *CommandBuffer) Staged(entity replication.EntityID) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.staged[entity]
}
