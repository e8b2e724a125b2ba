package intake

import (
	"time"

	"netsync/internal/attrs"
	"netsync/internal/sim"
)

const (
	// CommandRejectInvalid marks a command whose payload does not match its type.
	CommandRejectInvalid = "invalid_command"
	// CommandRejectMissingEntity marks an entity-scoped command without an entity.
	CommandRejectMissingEntity = "missing_entity"
)

// Queue accepts staged commands for the next tick.
type Queue interface {
	Enqueue(cmd sim.Command) (bool, string)
}

type CommandContext struct {
	Queue Queue
	Tick  func() uint32
	Now   func() time.Time
}

// StageCommand validates cmd, stamps its origin tick and issue time, and
// enqueues it. The returned reason is empty when the command was accepted.
func StageCommand(ctx CommandContext, cmd sim.Command) (sim.Command, bool, string) {
	var zero sim.Command

	switch cmd.Type {
	case sim.CommandMove:
		if cmd.Move == nil {
			return zero, false, CommandRejectInvalid
		}
	case sim.CommandRename:
		if cmd.Rename == nil {
			return zero, false, CommandRejectInvalid
		}
	case sim.CommandSetVisibility:
		if cmd.Visibility == nil {
			return zero, false, CommandRejectInvalid
		}
		if _, err := attrs.ParseVisibility(cmd.Visibility.Mode); err != nil {
			return zero, false, CommandRejectInvalid
		}
	case sim.CommandDespawn:
	case sim.CommandResync:
	default:
		return zero, false, CommandRejectInvalid
	}

	// Resync with entity 0 targets every entity.
	if cmd.Entity == 0 && cmd.Type != sim.CommandResync {
		return zero, false, CommandRejectMissingEntity
	}

	if ctx.Tick != nil {
		cmd.OriginTick = ctx.Tick()
	}
	if ctx.Now != nil {
		cmd.IssuedAt = ctx.Now()
	} else {
		cmd.IssuedAt = time.Now()
	}

	if ctx.Queue == nil {
		return zero, false, sim.CommandRejectQueueFull
	}
	if ok, reason := ctx.Queue.Enqueue(cmd); !ok {
		return zero, false, reason
	}

	return cmd, true, ""
}
