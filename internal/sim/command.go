package sim

import (
	"time"

	"netsync/replication"
)

// CommandType enumerates the host mutations staged for the next tick.
type CommandType string

const (
	CommandMove          CommandType = "Move"
	CommandRename        CommandType = "Rename"
	CommandSetVisibility CommandType = "SetVisibility"
	CommandResync        CommandType = "Resync"
	CommandDespawn       CommandType = "Despawn"
)

// MoveCommand displaces an entity.
type MoveCommand struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// RenameCommand replaces an entity's display name.
type RenameCommand struct {
	Name string `json:"name"`
}

// VisibilityCommand switches an entity's visibility mode.
type VisibilityCommand struct {
	Mode string `json:"mode"`
}

// Command represents an intent captured for processing on the next tick.
// Commands are produced on any goroutine and applied on the tick goroutine.
type Command struct {
	OriginTick uint32               `json:"originTick"`
	Entity     replication.EntityID `json:"entity"`
	Type       CommandType          `json:"type"`
	IssuedAt   time.Time            `json:"issuedAt"`
	Move       *MoveCommand         `json:"move,omitempty"`
	Rename     *RenameCommand       `json:"rename,omitempty"`
	Visibility *VisibilityCommand   `json:"visibility,omitempty"`
}
