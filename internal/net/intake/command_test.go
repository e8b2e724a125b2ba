package intake

import (
	"testing"
	"time"

	"netsync/internal/sim"
)

type fakeQueue struct {
	enqueueOK     bool
	enqueueReason string
	commands      []sim.Command
}

func (f *fakeQueue) Enqueue(cmd sim.Command) (bool, string) {
	f.commands = append(f.commands, cmd)
	if f.enqueueOK {
		return true, ""
	}
	if f.enqueueReason == "" {
		f.enqueueReason = sim.CommandRejectQueueLimit
	}
	return false, f.enqueueReason
}

func fixedContext(queue Queue) CommandContext {
	return CommandContext{
		Queue: queue,
		Tick:  func() uint32 { return 42 },
		Now:   func() time.Time { return time.Unix(100, 0) },
	}
}

func TestStageCommandAcceptsMove(t *testing.T) {
	queue := &fakeQueue{enqueueOK: true}
	cmd, ok, reason := StageCommand(fixedContext(queue), sim.Command{
		Entity: 7,
		Type:   sim.CommandMove,
		Move:   &sim.MoveCommand{DX: 1},
	})
	if !ok {
		t.Fatalf("expected command to be accepted, got reason %q", reason)
	}
	if cmd.OriginTick != 42 {
		t.Fatalf("expected OriginTick to be 42, got %d", cmd.OriginTick)
	}
	if !cmd.IssuedAt.Equal(time.Unix(100, 0)) {
		t.Fatalf("expected IssuedAt to be stamped, got %v", cmd.IssuedAt)
	}
	if len(queue.commands) != 1 || queue.commands[0].OriginTick != 42 {
		t.Fatalf("expected queue to record the stamped command, got %+v", queue.commands)
	}
}

func TestStageCommandRejectsMismatchedPayload(t *testing.T) {
	cases := map[string]sim.Command{
		"move without payload":   {Entity: 1, Type: sim.CommandMove},
		"rename without payload": {Entity: 1, Type: sim.CommandRename, Move: &sim.MoveCommand{}},
		"unknown visibility":     {Entity: 1, Type: sim.CommandSetVisibility, Visibility: &sim.VisibilityCommand{Mode: "blurry"}},
		"unknown type":           {Entity: 1, Type: "Teleport"},
	}
	for name, cmd := range cases {
		queue := &fakeQueue{enqueueOK: true}
		_, ok, reason := StageCommand(fixedContext(queue), cmd)
		if ok || reason != CommandRejectInvalid {
			t.Fatalf("%s: expected %q, got ok=%v reason=%q", name, CommandRejectInvalid, ok, reason)
		}
		if len(queue.commands) != 0 {
			t.Fatalf("%s: rejected command reached the queue", name)
		}
	}
}

func TestStageCommandRequiresEntity(t *testing.T) {
	queue := &fakeQueue{enqueueOK: true}
	_, ok, reason := StageCommand(fixedContext(queue), sim.Command{Type: sim.CommandDespawn})
	if ok || reason != CommandRejectMissingEntity {
		t.Fatalf("expected %q, got ok=%v reason=%q", CommandRejectMissingEntity, ok, reason)
	}

	if _, ok, reason := StageCommand(fixedContext(queue), sim.Command{Type: sim.CommandResync}); !ok {
		t.Fatalf("expected resync without entity to target everything, got %q", reason)
	}
}

func TestStageCommandPropagatesQueueReason(t *testing.T) {
	queue := &fakeQueue{enqueueReason: sim.CommandRejectQueueLimit}
	_, ok, reason := StageCommand(fixedContext(queue), sim.Command{
		Entity: 1,
		Type:   sim.CommandRename,
		Rename: &sim.RenameCommand{Name: "ada"},
	})
	if ok {
		t.Fatalf("expected rejection from queue")
	}
	if reason != sim.CommandRejectQueueLimit {
		t.Fatalf("expected queue reason %q, got %q", sim.CommandRejectQueueLimit, reason)
	}
}

func TestStageCommandHandlesNilQueue(t *testing.T) {
	_, ok, reason := StageCommand(fixedContext(nil), sim.Command{Type: sim.CommandResync})
	if ok {
		t.Fatalf("expected rejection when queue is nil")
	}
	if reason != sim.CommandRejectQueueFull {
		t.Fatalf("expected reason %q, got %q", sim.CommandRejectQueueFull, reason)
	}
}
