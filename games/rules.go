package games

import (
	"encoding/json"

	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/messages"
)

// PlayerBundle is the set of actions one player submitted for one turn, as
// handed to the rules engine. Bundles within a turn are passed in ascending
// player id order so that outcomes are reproducible.
type PlayerBundle struct {
	// Player is the submitting player.
	Player messages.PlayerID
	// Turn is the turn number the bundle targets.
	Turn int
	// Actions is the ordered sequence of opaque action payloads.
	Actions []json.RawMessage
}

// Engine is the game-rules collaborator. The coordinator treats snapshots and
// deltas as opaque blobs; their format is owned by the engine.
type Engine interface {
	// InitialSnapshot creates the authoritative state for a starting match.
	InitialSnapshot(players []messages.PlayerInfo) ([]byte, error)
	// ApplyTurn applies the given bundles to the snapshot and returns the new
	// snapshot together with the delta to broadcast. A rejected bundle is
	// reported as an error with code errors.ErrRuleViolation carrying the
	// offending player, which is fatal to the bundle but never to the match.
	ApplyTurn(snapshot []byte, bundles []PlayerBundle) (newSnapshot []byte, delta []byte, err error)
}

// NewRuleViolationError creates an errors.ErrRuleViolation error blaming the
// given player.
func NewRuleViolationError(player messages.PlayerID, message string) error {
	return errors.Error{
		Code:    errors.ErrRuleViolation,
		Message: message,
		Details: errors.Details{"player_id": string(player)},
	}
}

// OffendingPlayer extracts the player blamed by a rule violation error.
func OffendingPlayer(err error) (messages.PlayerID, bool) {
	e, _ := errors.Cast(err)
	if e.Code != errors.ErrRuleViolation {
		return "", false
	}
	playerID, ok := e.Details["player_id"].(string)
	if !ok {
		return "", false
	}
	return messages.PlayerID(playerID), true
}

// PassthroughEngine is the baseline Engine used until a real rules engine is
// plugged in. It keeps the snapshot unchanged and broadcasts it as the delta,
// which keeps all replicas trivially consistent.
type PassthroughEngine struct{}

// snapshotSeed is the initial state produced by PassthroughEngine.
type snapshotSeed struct {
	Players []messages.PlayerInfo `json:"players"`
}

func (PassthroughEngine) InitialSnapshot(players []messages.PlayerInfo) ([]byte, error) {
	snapshot, err := json.Marshal(snapshotSeed{Players: players})
	if err != nil {
		return nil, errors.NewInternalError("marshal initial snapshot", nil)
	}
	return snapshot, nil
}

func (PassthroughEngine) ApplyTurn(snapshot []byte, _ []PlayerBundle) ([]byte, []byte, error) {
	return snapshot, snapshot, nil
}
