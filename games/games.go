// Package games contains the per-match turn coordinator that owns the
// authoritative game state and keeps all clients of a match in sync.

package games

import "github.com/microcosm-game/microcosm-server/messages"

// MatchPhase is a fixed phase type for being used in matches.
type MatchPhase string

const (
	// MatchPhaseLobby is used while players join, leave and toggle readiness.
	MatchPhaseLobby MatchPhase = "lobby"
	// MatchPhaseAwaitingActions is used while the coordinator collects one
	// turn action bundle per connected player for the current turn.
	MatchPhaseAwaitingActions MatchPhase = "awaiting-actions"
	// MatchPhaseResolving is used while the collected bundles are applied to
	// the authoritative state and the resulting delta is broadcast.
	MatchPhaseResolving MatchPhase = "resolving"
	// MatchPhaseEnded is the terminal phase. Reachable from any other phase.
	MatchPhaseEnded MatchPhase = "ended"
)

// LifecycleEventType is the type of LifecycleEvent.
type LifecycleEventType string

const (
	// LifecycleEventCreated is emitted when a match was created.
	LifecycleEventCreated LifecycleEventType = "created"
	// LifecycleEventStarted is emitted when the host started the match.
	LifecycleEventStarted LifecycleEventType = "started"
	// LifecycleEventTurnResolved is emitted after each resolved turn.
	LifecycleEventTurnResolved LifecycleEventType = "turn-resolved"
	// LifecycleEventEnded is emitted when the match ended.
	LifecycleEventEnded LifecycleEventType = "ended"
)

// LifecycleEvent describes a state change of a match for observers like the
// MQTT event bridge. Purely informational: dropping events never affects
// match processing.
type LifecycleEvent struct {
	// Type is the kind of event.
	Type LifecycleEventType `json:"type"`
	// JoinCode identifies the match.
	JoinCode messages.MatchID `json:"join_code"`
	// Turn is the current turn number.
	Turn int `json:"turn"`
	// PlayerCount is the count of occupied player slots.
	PlayerCount int `json:"player_count"`
}
