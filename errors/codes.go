package errors

// Code is the general category of an Error. It determines how an error is
// logged and whether it may be surfaced to clients.
type Code string

const (
	// ErrAborted is used when an operation was cancelled via context.
	ErrAborted Code = "aborted"
	// ErrBadRequest is used for invalid requests from clients.
	ErrBadRequest Code = "bad-request"
	// ErrConnection is used for transport failures. Transient; triggers
	// disconnect handling for the affected connection only.
	ErrConnection Code = "connection"
	// ErrDecode is used when an inbound frame cannot be decoded. Per-message;
	// the offending frame is discarded.
	ErrDecode Code = "decode"
	// ErrFatal is used for unrecoverable conditions. Logged as fatal.
	ErrFatal Code = "fatal"
	// ErrInternal is used for internal server errors.
	ErrInternal Code = "internal"
	// ErrJoinRejected is used when a client may not join a match. Always
	// surfaced to the requesting client with a Kind as reason.
	ErrJoinRejected Code = "join-rejected"
	// ErrMapping is used when port mapping on the gateway fails. Non-fatal;
	// the host proceeds LAN-only.
	ErrMapping Code = "mapping"
	// ErrNotFound is used when a requested entity does not exist.
	ErrNotFound Code = "not-found"
	// ErrProtocolViolation is used when a client sends messages that are
	// forbidden in the current state.
	ErrProtocolViolation Code = "protocol-violation"
	// ErrRuleViolation is used when the rules engine rejects a turn bundle.
	// Turn-scoped; surfaced to the offending player only.
	ErrRuleViolation Code = "rule-violation"
	// ErrStaleTurn is used when a bundle targets a turn that is not the
	// current one. Expected under network jitter and dropped silently.
	ErrStaleTurn Code = "stale-turn"
	// ErrUnexpected is used for unknown errors.
	ErrUnexpected Code = "unexpected"
)

// Kind is the detailed reason for an Error. Kinds are stable identifiers that
// are sent to clients, so do not change them lightly.
type Kind string

const (
	// KindContextAborted is used when we were currently performing an operation
	// but the context got aborted.
	KindContextAborted Kind = "context-aborted"
	// KindDecodeJSON is used when a frame payload is not valid JSON.
	KindDecodeJSON Kind = "decode-json"
	// KindEncodeJSON is used when a message cannot be encoded.
	KindEncodeJSON Kind = "encode-json"
	// KindGatewayNotFound is used when no UPnP-capable gateway answered
	// discovery.
	KindGatewayNotFound Kind = "gateway-not-found"
	// KindLeaseRejected is used when the gateway refused the port mapping
	// request.
	KindLeaseRejected Kind = "lease-rejected"
	// KindMatchAtCapacity is used when a join is rejected because the match is
	// full.
	KindMatchAtCapacity Kind = "match-at-capacity"
	// KindMatchEnded is used for operations on a match that has already ended.
	KindMatchEnded Kind = "match-ended"
	// KindMatchInProgress is used when a join is rejected because the match is
	// already running and does not accept late joiners.
	KindMatchInProgress Kind = "match-in-progress"
	// KindMatchPhaseViolation is used for operations that were performed
	// although not allowed in the current match phase.
	KindMatchPhaseViolation Kind = "match-phase-violation"
	// KindNotHost is used when a non-host player performs a host-only
	// operation.
	KindNotHost Kind = "not-host"
	// KindPlayerAlreadyJoined is used when a player wants to join a match but
	// has already joined.
	KindPlayerAlreadyJoined Kind = "player-already-joined"
	// KindPlayerNotJoined is used when a player has not joined the match yet.
	KindPlayerNotJoined Kind = "player-not-joined"
	// KindUnknownJoinCode is used when a join addresses a join code without a
	// live match.
	KindUnknownJoinCode Kind = "unknown-join-code"
	// KindUnknownMessageType is used when a message with unknown type is
	// received.
	KindUnknownMessageType Kind = "unknown-message-type"
	// KindUnexpected is used for different unknown reasons that are too special
	// for creating separate error kinds.
	KindUnexpected Kind = "unexpected"
	// KindVersionMismatch is used when a frame or join advertises an
	// incompatible protocol version.
	KindVersionMismatch Kind = "version-mismatch"
)
