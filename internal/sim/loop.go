package sim

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"netsync/internal/telemetry"
	"netsync/logging"
	"netsync/replication"
)

const (
	// CommandRejectQueueLimit indicates a command was dropped due to per-entity
	// queue throttling.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull indicates the global command buffer is saturated.
	CommandRejectQueueFull = "queue_full"

	tickDurationMetricKey = "sim_tick_duration_microseconds"
	tickClampedMetricKey  = "sim_tick_clamped_total"
)

// Replicator is the part of replication.Replicator the loop drives.
type Replicator interface {
	BeginTick(ctx context.Context)
	EndTick(ctx context.Context)
	Tick() uint32
}

var _ Replicator = (*replication.Replicator)(nil)

// LoopConfig tunes the command buffer and tick loop orchestration.
type LoopConfig struct {
	TickRate        int
	CatchupMaxTicks int
	CommandCapacity int
	PerEntityLimit  int
	WarningStep     int
}

// LoopTickContext is handed to the Step hook between the inbound and
// outbound replication phases.
type LoopTickContext struct {
	Tick     uint32
	Now      time.Time
	Delta    float64
	Commands []Command
}

// LoopStepResult summarises one executed tick.
type LoopStepResult struct {
	Tick         uint32
	Now          time.Time
	Delta        float64
	Commands     int
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
}

// LoopHooks lets the host run its logic inside the tick and observe it.
type LoopHooks struct {
	Step           func(ctx context.Context, tick LoopTickContext)
	AfterStep      func(LoopStepResult)
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
}

// Loop coordinates command ingestion and the fixed-timestep tick runner.
// Each tick runs BeginTick, the Step hook, then EndTick.
type Loop struct {
	repl    Replicator
	buffer  *CommandBuffer
	hooks   LoopHooks
	config  LoopConfig
	logger  telemetry.Logger
	metrics telemetry.Metrics
	clock   logging.Clock
	tracer  trace.Tracer

	dropMu     sync.Mutex
	dropCounts map[replication.EntityID]uint64
}

// NewLoop wraps the replicator with a ring-buffer command queue.
func NewLoop(repl Replicator, cfg LoopConfig, hooks LoopHooks, deps Deps) *Loop {
	if repl == nil {
		return nil
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("netsync/internal/sim")
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = 1024
	}
	return &Loop{
		repl:       repl,
		buffer:     NewCommandBuffer(cfg.CommandCapacity, cfg.PerEntityLimit, deps.Metrics),
		hooks:      hooks,
		config:     cfg,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		tracer:     deps.Tracer,
		dropCounts: make(map[replication.EntityID]uint64),
	}
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.buffer.Len()
}

// Enqueue stages a command, enforcing per-entity throttling and capacity
// limits. It is safe to call from any goroutine.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	ok, reason := l.buffer.Push(cmd)
	if !ok {
		l.reportDrop(reason, cmd, l.incrementDrop(cmd.Entity))
		return false, reason
	}
	if step := l.config.WarningStep; step > 0 {
		if length := l.buffer.Len(); length >= step && length%step == 0 {
			l.warnQueue(length)
		}
	}
	return true, ""
}

// Advance executes a single tick: inbound replication, the staged commands
// and the Step hook, then outbound replication.
func (l *Loop) Advance(ctx context.Context, now time.Time, delta float64) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	ctx, span := l.tracer.Start(ctx, "netsync.tick")
	defer span.End()

	l.repl.BeginTick(ctx)
	tick := l.repl.Tick()
	commands := l.drainCommands()
	if l.hooks.Step != nil {
		l.hooks.Step(ctx, LoopTickContext{Tick: tick, Now: now, Delta: delta, Commands: commands})
	}
	l.repl.EndTick(ctx)

	span.SetAttributes(
		attribute.Int64("netsync.tick", int64(tick)),
		attribute.Int("netsync.commands", len(commands)),
	)
	return LoopStepResult{
		Tick:     tick,
		Now:      now,
		Delta:    delta,
		Commands: len(commands),
	}
}

// Run drives the fixed-timestep loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return nil
	}
	tickRate := l.config.TickRate
	if tickRate <= 0 {
		tickRate = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	last := l.clock.Now()
	budgetSeconds := 1.0 / float64(tickRate)
	maxDt := budgetSeconds
	if l.config.CatchupMaxTicks > 1 {
		maxDt = budgetSeconds * float64(l.config.CatchupMaxTicks)
	}
	budgetDuration := time.Second / time.Duration(tickRate)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := l.clock.Now()
			dt := now.Sub(last).Seconds()
			clamped := false
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now

			start := l.clock.Now()
			result := l.Advance(ctx, now, dt)
			result.Duration = l.clock.Now().Sub(start)
			result.Budget = budgetDuration
			result.ClampedDelta = clamped
			result.MaxDelta = maxDt

			l.metrics.Store(tickDurationMetricKey, uint64(result.Duration.Microseconds()))
			if clamped {
				l.metrics.Add(tickClampedMetricKey, 1)
			}
			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

func (l *Loop) drainCommands() []Command {
	return l.buffer.Drain()
}

func (l *Loop) incrementDrop(entity replication.EntityID) uint64 {
	if entity == 0 {
		return 0
	}
	l.dropMu.Lock()
	defer l.dropMu.Unlock()
	count := l.dropCounts[entity] + 1
	l.dropCounts[entity] = count
	return count
}

func (l *Loop) warnQueue(length int) {
	if l.hooks.OnQueueWarning != nil {
		l.hooks.OnQueueWarning(length)
	}
}

func (l *Loop) reportDrop(reason string, cmd Command, count uint64) {
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	if reason == CommandRejectQueueLimit && count > 0 && count&(count-1) == 0 {
		if l.logger != nil {
			l.logger.Printf(
				"[backpressure] dropping command entity=%d type=%s count=%d limit=%d",
				cmd.Entity,
				cmd.Type,
				count,
				l.config.PerEntityLimit,
			)
		}
	}
}
