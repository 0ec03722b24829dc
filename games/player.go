package games

import (
	"time"

	"github.com/microcosm-game/microcosm-server/client"
	"github.com/microcosm-game/microcosm-server/messages"
)

// Slot is one participant within a match. A match owns its slots; a slot
// never outlives its match. The connection handle is non-owning: the
// transport owns and closes it.
type Slot struct {
	// ID is the stable player identifier.
	ID messages.PlayerID
	// Name is the display name.
	Name string
	// IsHost determines whether this slot hosts the match.
	IsHost bool
	// IsReady is the lobby readiness flag.
	IsReady bool
	// Client is the connection handle. Nil while the player is disconnected.
	Client *client.Client
	// DisconnectedAt is set when Client was dropped. Used for the
	// reconnection grace window.
	DisconnectedAt time.Time
}

// Connected reports whether the slot currently has a live connection.
func (slot *Slot) Connected() bool {
	return slot.Client != nil
}

// Info converts the slot to its wire representation.
func (slot *Slot) Info() messages.PlayerInfo {
	return messages.PlayerInfo{
		ID:        slot.ID,
		Name:      slot.Name,
		IsHost:    slot.IsHost,
		IsReady:   slot.IsReady,
		Connected: slot.Connected(),
	}
}
