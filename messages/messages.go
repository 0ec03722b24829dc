// Package messages provides the versioned wire codec for all traffic between
// game clients and the server.

package messages

import (
	"encoding/json"

	"github.com/microcosm-game/microcosm-server/errors"
)

// ProtocolVersion is the version all exchanged messages carry. A container
// with any other version fails to decode with errors.KindVersionMismatch.
const ProtocolVersion = 1

// MessageType is the type of message and serves for using the correct parsing
// method.
type MessageType string

// MatchID is the join code that is used in order to identify a hosted match.
type MatchID string

// PlayerID is a UUID that is used to identify a player slot within a match.
type PlayerID string

// MessageContainer is a container for all messages that are sent and received.
// It holds some meta information as well as the actual payload.
type MessageContainer struct {
	// Version is the protocol version. Always ProtocolVersion for messages
	// created by this codec.
	Version int `json:"v"`
	// MessageType is the type of the message.
	MessageType MessageType `json:"message_type"`
	// MatchID is the optional id of the match the message belongs to.
	MatchID MatchID `json:"match_id,omitempty"`
	// PlayerID is the optional id of the player the message belongs to.
	PlayerID PlayerID `json:"player_id,omitempty"`
	// Content is the actual message content.
	Content json.RawMessage `json:"content,omitempty"`
}

// All message types.
const (
	// MessageTypeCreateMatch is received with MessageCreateMatch when a client
	// wants to host a new match. The client becomes the host player.
	MessageTypeCreateMatch MessageType = "create-match"
	// MessageTypeDisconnect is sent by a client that is going away on purpose.
	MessageTypeDisconnect MessageType = "disconnect"
	// MessageTypeEndMatch is received with MessageEndMatch when the host ends
	// the match for all players.
	MessageTypeEndMatch MessageType = "end-match"
	// MessageTypeError is used for error messages. The content is being set to
	// the detailed error.
	MessageTypeError MessageType = "error"
	// MessageTypeFullSnapshotRequest is received with
	// MessageFullSnapshotRequest when a client detected divergence and needs
	// the authoritative state.
	MessageTypeFullSnapshotRequest MessageType = "full-snapshot-request"
	// MessageTypeFullSnapshotResponse is sent with MessageFullSnapshotResponse
	// as answer to MessageTypeFullSnapshotRequest.
	MessageTypeFullSnapshotResponse MessageType = "full-snapshot-response"
	// MessageTypeHeartbeat is used with MessageHeartbeat for application-level
	// keepalive. The server echoes it back unchanged.
	MessageTypeHeartbeat MessageType = "heartbeat"
	// MessageTypeJoinAccepted is sent with MessageJoinAccepted to a client
	// whose join request was admitted.
	MessageTypeJoinAccepted MessageType = "join-accepted"
	// MessageTypeJoinRejected is sent with MessageJoinRejected to a client
	// whose join request was refused.
	MessageTypeJoinRejected MessageType = "join-rejected"
	// MessageTypeJoinRequest is received with MessageJoinRequest when a client
	// wants to join a match via join code.
	MessageTypeJoinRequest MessageType = "join-request"
	// MessageTypeLeaveMatch is received when a player leaves its match on
	// purpose.
	MessageTypeLeaveMatch MessageType = "leave-match"
	// MessageTypeLobbyList is sent with MessageLobbyList as answer to
	// MessageTypeQueryLobbies.
	MessageTypeLobbyList MessageType = "lobby-list"
	// MessageTypeMatchCreated is sent with MessageMatchCreated to the host
	// after its match was created.
	MessageTypeMatchCreated MessageType = "match-created"
	// MessageTypeMatchStarted is sent with MessageMatchStarted to all players
	// when the host started the match.
	MessageTypeMatchStarted MessageType = "match-started"
	// MessageTypePlayerJoined is sent with MessagePlayerJoined to all players
	// of a match when a new player joined.
	MessageTypePlayerJoined MessageType = "player-joined"
	// MessageTypePlayerLeft is sent with MessagePlayerLeft to the remaining
	// players of a match when a player left or was dropped.
	MessageTypePlayerLeft MessageType = "player-left"
	// MessageTypeQueryLobbies is received with MessageQueryLobbies when a
	// client wants the list of live matches.
	MessageTypeQueryLobbies MessageType = "query-lobbies"
	// MessageTypeReady is received with MessageReady when a player toggles its
	// readiness in the lobby.
	MessageTypeReady MessageType = "ready"
	// MessageTypeStartMatch is received when the host starts the match.
	MessageTypeStartMatch MessageType = "start-match"
	// MessageTypeStateDelta is sent with MessageStateDelta to all players of a
	// match after a turn resolved.
	MessageTypeStateDelta MessageType = "state-delta"
	// MessageTypeTurnBundle is received with MessageTurnBundle when a player
	// submits its actions for the current turn.
	MessageTypeTurnBundle MessageType = "turn-action-bundle"
)

// PlayerInfo describes a player slot of a match.
type PlayerInfo struct {
	// ID identifies the player.
	ID PlayerID `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// IsHost determines whether the player hosts the match.
	IsHost bool `json:"is_host"`
	// IsReady is the lobby readiness flag.
	IsReady bool `json:"is_ready"`
	// Connected determines whether the slot currently has a live connection.
	Connected bool `json:"connected"`
}

// MatchSettings is the configuration a match is created with.
type MatchSettings struct {
	// Name is the human readable lobby name.
	Name string `json:"name"`
	// MaxPlayers is the player capacity.
	MaxPlayers int `json:"max_players"`
	// TurnTimeoutSec is the turn timeout in seconds after which a turn
	// resolves with missing bundles treated as empty.
	TurnTimeoutSec int `json:"turn_timeout_sec"`
	// AllowLateJoin determines whether players may join a running match.
	AllowLateJoin bool `json:"allow_late_join"`
}

// LobbyDetails describes a live match for lobby discovery.
type LobbyDetails struct {
	// JoinCode addresses the match in MessageJoinRequest.
	JoinCode MatchID `json:"join_code"`
	// Name is the lobby name from MatchSettings.
	Name string `json:"name"`
	// Phase is the current match phase.
	Phase string `json:"phase"`
	// PlayerCount is the count of occupied player slots.
	PlayerCount int `json:"player_count"`
	// MaxPlayers is the player capacity.
	MaxPlayers int `json:"max_players"`
}

// MessageCreateMatch is used with MessageTypeCreateMatch.
type MessageCreateMatch struct {
	// PlayerName is the display name of the host player.
	PlayerName string `json:"player_name"`
	// Settings configures the match.
	Settings MatchSettings `json:"settings"`
}

// MessageMatchCreated is used with MessageTypeMatchCreated.
type MessageMatchCreated struct {
	// JoinCode is the code other players join with.
	JoinCode MatchID `json:"join_code"`
	// Player is the admitted host slot.
	Player PlayerInfo `json:"player"`
}

// MessageJoinRequest is used with MessageTypeJoinRequest.
type MessageJoinRequest struct {
	// JoinCode addresses the match to join.
	JoinCode MatchID `json:"join_code"`
	// PlayerName is the display name of the joining player.
	PlayerName string `json:"player_name"`
	// ResumePlayerID is set when the client reconnects and wants to reclaim
	// its previous slot within the reconnection grace period.
	ResumePlayerID PlayerID `json:"resume_player_id,omitempty"`
}

// MessageJoinAccepted is used with MessageTypeJoinAccepted.
type MessageJoinAccepted struct {
	// JoinCode of the joined match.
	JoinCode MatchID `json:"join_code"`
	// Player is the admitted slot.
	Player PlayerInfo `json:"player"`
	// Players is the full roster including the admitted player.
	Players []PlayerInfo `json:"players"`
	// Turn is the current turn number. Zero while in lobby.
	Turn int `json:"turn"`
	// Resumed determines whether a previous slot was reclaimed. A resumed
	// client must await a full snapshot before applying deltas.
	Resumed bool `json:"resumed"`
}

// MessageJoinRejected is used with MessageTypeJoinRejected.
type MessageJoinRejected struct {
	// Reason is the stable reason identifier from errors.Kind.
	Reason string `json:"reason"`
	// Message is a human readable description.
	Message string `json:"message"`
}

// MessageQueryLobbies is used with MessageTypeQueryLobbies.
type MessageQueryLobbies struct{}

// MessageLobbyList is used with MessageTypeLobbyList.
type MessageLobbyList struct {
	// Lobbies are the live matches.
	Lobbies []LobbyDetails `json:"lobbies"`
}

// MessageLeaveMatch is used with MessageTypeLeaveMatch.
type MessageLeaveMatch struct{}

// MessageEndMatch is used with MessageTypeEndMatch.
type MessageEndMatch struct{}

// MessageReady is used with MessageTypeReady.
type MessageReady struct {
	// IsReady is the new readiness.
	IsReady bool `json:"is_ready"`
}

// MessageStartMatch is used with MessageTypeStartMatch.
type MessageStartMatch struct{}

// MessageMatchStarted is used with MessageTypeMatchStarted.
type MessageMatchStarted struct {
	// Turn is the first turn number.
	Turn int `json:"turn"`
	// Players is the final roster.
	Players []PlayerInfo `json:"players"`
	// Snapshot is the initial authoritative state.
	Snapshot []byte `json:"snapshot"`
	// StateHash is the StateHash of Snapshot.
	StateHash uint64 `json:"state_hash"`
}

// MessagePlayerJoined is used with MessageTypePlayerJoined.
type MessagePlayerJoined struct {
	// Player is the slot that joined.
	Player PlayerInfo `json:"player"`
}

// MessagePlayerLeft is used with MessageTypePlayerLeft.
type MessagePlayerLeft struct {
	// Player is the slot that left.
	Player PlayerInfo `json:"player"`
	// Reason describes why the player left.
	Reason string `json:"reason"`
}

// MessageTurnBundle is used with MessageTypeTurnBundle. Resubmission for the
// same turn replaces the previous bundle.
type MessageTurnBundle struct {
	// Turn is the turn number the bundle targets.
	Turn int `json:"turn"`
	// Actions is the ordered sequence of opaque action payloads. The format is
	// owned by the game rules engine.
	Actions []json.RawMessage `json:"actions"`
}

// MessageStateDelta is used with MessageTypeStateDelta.
type MessageStateDelta struct {
	// Turn is the turn number the delta resolves.
	Turn int `json:"turn"`
	// Seq is the broadcast sequence number. Gap-free and monotonic per match.
	Seq uint64 `json:"seq"`
	// Payload is the opaque delta produced by the rules engine.
	Payload []byte `json:"payload"`
	// StateHash is the StateHash of the authoritative snapshot after applying
	// the delta. Used by clients to verify their replica.
	StateHash uint64 `json:"state_hash"`
}

// MessageFullSnapshotRequest is used with MessageTypeFullSnapshotRequest.
type MessageFullSnapshotRequest struct {
	// LastSeq is the last broadcast sequence number the client applied.
	LastSeq uint64 `json:"last_seq"`
}

// MessageFullSnapshotResponse is used with MessageTypeFullSnapshotResponse.
type MessageFullSnapshotResponse struct {
	// Turn is the current turn number.
	Turn int `json:"turn"`
	// Seq is the broadcast sequence number the snapshot corresponds to.
	Seq uint64 `json:"seq"`
	// Snapshot is the full authoritative state.
	Snapshot []byte `json:"snapshot"`
	// StateHash is the StateHash of Snapshot.
	StateHash uint64 `json:"state_hash"`
}

// MessageHeartbeat is used with MessageTypeHeartbeat.
type MessageHeartbeat struct{}

// MessageDisconnect is used with MessageTypeDisconnect.
type MessageDisconnect struct {
	// Reason describes why the client is going away.
	Reason string `json:"reason"`
}

// MessageError is used with MessageTypeError for errors that need to be sent
// to clients.
type MessageError struct {
	// Code is the error code from errors.Error.
	Code string `json:"code"`
	// Kind is the reason kind from errors.Error.
	Kind string `json:"kind,omitempty"`
	// Err is the error from errors.Error.
	Err string `json:"err,omitempty"`
	// Message is the message from errors.Error.
	Message string `json:"message"`
	// Details are error details from errors.Error.
	Details map[string]interface{} `json:"details,omitempty"`
}

// MessageErrorFromError creates a MessageError from the given error.
func MessageErrorFromError(err error) MessageError {
	e, _ := errors.Cast(err)
	if !errors.BlameUser(err) {
		return MessageError{
			Code:    string(e.Code),
			Message: "internal server error",
		}
	}
	return MessageError{
		Code:    string(e.Code),
		Kind:    string(e.Kind),
		Err:     e.Error(),
		Message: e.Message,
		Details: e.Details,
	}
}
