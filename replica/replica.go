// Package replica keeps a client-side copy of the authoritative match state
// consistent with the server. It tracks broadcast sequence numbers, requests
// full snapshots on gaps and verifies replica integrity via state hashes.
package replica

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/microcosm-game/microcosm-server/client"
	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/logging"
	"github.com/microcosm-game/microcosm-server/messages"
	"go.uber.org/zap"
)

// defaultHeartbeatInterval is how often the adapter pings the server while
// running.
const defaultHeartbeatInterval = 20 * time.Second

// requestTimeout bounds request-reply exchanges like joining.
const requestTimeout = 10 * time.Second

// RosterUpdateType describes what happened to a player slot.
type RosterUpdateType string

const (
	// RosterUpdateJoined is used when a player joined.
	RosterUpdateJoined RosterUpdateType = "joined"
	// RosterUpdateLeft is used when a player left or disconnected.
	RosterUpdateLeft RosterUpdateType = "left"
)

// RosterUpdate notifies about a player joining or leaving the match.
type RosterUpdate struct {
	// Type describes what happened.
	Type RosterUpdateType
	// Player is the affected slot.
	Player messages.PlayerInfo
	// Reason is set for RosterUpdateLeft.
	Reason string
}

// Adapter synchronizes the local replica with the server. Create it with
// NewAdapter, start Run in a goroutine and then join or create a match. The
// adapter is meant for a single consumer reading StateDeltas and
// FullSnapshots.
type Adapter struct {
	client *client.Client
	logger *zap.Logger

	// heartbeatInterval is how often heartbeats are sent. Zero disables them.
	heartbeatInterval time.Duration

	deltas    chan messages.MessageStateDelta
	snapshots chan messages.MessageFullSnapshotResponse
	roster    chan RosterUpdate
	faults    chan messages.MessageError
	done      chan struct{}

	// m guards the sync state below.
	m sync.Mutex
	// matchID and playerID are set once joined.
	matchID  messages.MatchID
	playerID messages.PlayerID
	// turn is the current turn number as last announced by the server.
	turn int
	// lastSeq is the last broadcast sequence number applied to the replica.
	lastSeq uint64
	// lastStateHash is the server-side state hash after the last applied
	// delta or snapshot.
	lastStateHash uint64
	// synced determines whether deltas may be applied. False until the
	// initial state arrived and after a detected gap or reconnect, until a
	// full snapshot restores consistency.
	synced bool
	// resyncRequested suppresses duplicate snapshot requests while one is in
	// flight.
	resyncRequested bool

	pendingJoin    chan joinOutcome
	pendingLobbies chan []messages.LobbyDetails
}

type joinOutcome struct {
	accepted messages.MessageJoinAccepted
	err      error
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithHeartbeatInterval overrides the heartbeat interval. Zero disables
// heartbeats.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(a *Adapter) {
		a.heartbeatInterval = interval
	}
}

// NewAdapter creates an Adapter on top of the given connected client, usually
// obtained from ws.Connect.
func NewAdapter(c *client.Client, options ...Option) *Adapter {
	a := &Adapter{
		client:            c,
		logger:            logging.ReplicaLogger,
		heartbeatInterval: defaultHeartbeatInterval,
		deltas:            make(chan messages.MessageStateDelta, 16),
		snapshots:         make(chan messages.MessageFullSnapshotResponse, 4),
		roster:            make(chan RosterUpdate, 16),
		faults:            make(chan messages.MessageError, 4),
		done:              make(chan struct{}),
		pendingJoin:       make(chan joinOutcome, 1),
		pendingLobbies:    make(chan []messages.LobbyDetails, 1),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// StateDeltas are the in-order deltas to apply to the replica.
func (a *Adapter) StateDeltas() <-chan messages.MessageStateDelta {
	return a.deltas
}

// FullSnapshots are authoritative states that replace the replica entirely.
func (a *Adapter) FullSnapshots() <-chan messages.MessageFullSnapshotResponse {
	return a.snapshots
}

// RosterUpdates notify about players joining and leaving.
func (a *Adapter) RosterUpdates() <-chan RosterUpdate {
	return a.roster
}

// Faults are error messages the server sent for this client.
func (a *Adapter) Faults() <-chan messages.MessageError {
	return a.faults
}

// Done receives when the connection is gone and the adapter stopped.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// PlayerID returns the own player id once joined.
func (a *Adapter) PlayerID() messages.PlayerID {
	a.m.Lock()
	defer a.m.Unlock()
	return a.playerID
}

// Turn returns the current turn number as last announced by the server.
func (a *Adapter) Turn() int {
	a.m.Lock()
	defer a.m.Unlock()
	return a.turn
}

// Synced reports whether deltas are currently being applied to the replica.
func (a *Adapter) Synced() bool {
	a.m.Lock()
	defer a.m.Unlock()
	return a.synced
}

// Run reads and dispatches server frames until the connection is gone or the
// given context is done. It blocks so you need to start a goroutine.
func (a *Adapter) Run(ctx context.Context) {
	defer close(a.done)
	var heartbeats <-chan time.Time
	if a.heartbeatInterval > 0 {
		ticker := time.NewTicker(a.heartbeatInterval)
		defer ticker.Stop()
		heartbeats = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeats:
			_ = a.send(ctx, messages.MessageTypeHeartbeat, messages.MessageHeartbeat{})
		case frame, ok := <-a.client.Receive:
			if !ok {
				// Connection gone. The next join must present the player id to
				// reclaim the slot, and deltas stay refused until a snapshot
				// restores consistency.
				a.m.Lock()
				a.synced = false
				a.m.Unlock()
				return
			}
			a.handleFrame(ctx, frame)
		}
	}
}

func (a *Adapter) handleFrame(ctx context.Context, frame []byte) {
	container, payload, err := messages.ParseMessage(frame)
	if err != nil {
		errors.Log(a.logger, errors.Wrap(err, "parse server frame", nil))
		return
	}
	switch typedPayload := payload.(type) {
	case *messages.MessageHeartbeat:
	case *messages.MessageJoinAccepted:
		a.handleJoinAccepted(*typedPayload)
	case *messages.MessageJoinRejected:
		a.deliverJoinOutcome(joinOutcome{err: errors.Error{
			Code:    errors.ErrJoinRejected,
			Kind:    errors.Kind(typedPayload.Reason),
			Message: typedPayload.Message,
		}})
	case *messages.MessageMatchCreated:
		a.handleMatchCreated(*typedPayload)
	case *messages.MessageLobbyList:
		select {
		case a.pendingLobbies <- typedPayload.Lobbies:
		default:
		}
	case *messages.MessageMatchStarted:
		a.handleMatchStarted(*typedPayload)
	case *messages.MessageStateDelta:
		a.handleStateDelta(ctx, *typedPayload)
	case *messages.MessageFullSnapshotResponse:
		a.handleFullSnapshot(*typedPayload)
	case *messages.MessagePlayerJoined:
		a.notifyRoster(RosterUpdate{Type: RosterUpdateJoined, Player: typedPayload.Player})
	case *messages.MessagePlayerLeft:
		a.notifyRoster(RosterUpdate{
			Type:   RosterUpdateLeft,
			Player: typedPayload.Player,
			Reason: typedPayload.Reason,
		})
	case *messages.MessageError:
		select {
		case a.faults <- *typedPayload:
		default:
			a.logger.Warn("dropping fault, consumer not keeping up",
				zap.String("code", typedPayload.Code))
		}
	case *messages.MessageDisconnect:
		a.logger.Info("server said goodbye", zap.String("reason", typedPayload.Reason))
	default:
		a.logger.Debug("ignoring unexpected server message",
			zap.String("message_type", string(container.MessageType)))
	}
}

func (a *Adapter) handleJoinAccepted(accepted messages.MessageJoinAccepted) {
	a.m.Lock()
	a.matchID = accepted.JoinCode
	a.playerID = accepted.Player.ID
	a.turn = accepted.Turn
	// In lobby there is no state to sync yet; the initial snapshot arrives
	// with the match start. A resumed or late join must await a full
	// snapshot before applying deltas.
	a.synced = accepted.Turn == 0
	a.resyncRequested = false
	a.m.Unlock()
	a.deliverJoinOutcome(joinOutcome{accepted: accepted})
}

func (a *Adapter) handleMatchCreated(created messages.MessageMatchCreated) {
	a.m.Lock()
	a.matchID = created.JoinCode
	a.playerID = created.Player.ID
	a.synced = true
	a.m.Unlock()
	a.deliverJoinOutcome(joinOutcome{accepted: messages.MessageJoinAccepted{
		JoinCode: created.JoinCode,
		Player:   created.Player,
		Players:  []messages.PlayerInfo{created.Player},
	}})
}

func (a *Adapter) handleMatchStarted(started messages.MessageMatchStarted) {
	if messages.StateHash(started.Snapshot) != started.StateHash {
		a.logger.Error("initial snapshot failed hash verification")
		return
	}
	a.m.Lock()
	a.turn = started.Turn
	a.lastSeq = 0
	a.lastStateHash = started.StateHash
	a.synced = true
	a.resyncRequested = false
	a.m.Unlock()
	a.forwardSnapshot(messages.MessageFullSnapshotResponse{
		Turn:      started.Turn,
		Seq:       0,
		Snapshot:  started.Snapshot,
		StateHash: started.StateHash,
	})
}

func (a *Adapter) handleStateDelta(ctx context.Context, delta messages.MessageStateDelta) {
	a.m.Lock()
	if !a.synced {
		a.m.Unlock()
		a.logger.Debug("refusing delta while out of sync", zap.Uint64("seq", delta.Seq))
		a.requestResync(ctx)
		return
	}
	if delta.Seq != a.lastSeq+1 {
		lastSeq := a.lastSeq
		a.synced = false
		a.m.Unlock()
		a.logger.Warn("sequence gap detected",
			zap.Uint64("last_seq", lastSeq), zap.Uint64("got_seq", delta.Seq))
		a.requestResync(ctx)
		return
	}
	a.lastSeq = delta.Seq
	a.turn = delta.Turn + 1
	a.lastStateHash = delta.StateHash
	a.m.Unlock()
	select {
	case a.deltas <- delta:
	default:
		// A consumer that lost a delta is out of sync like after a dropped
		// frame on the wire.
		a.logger.Warn("dropping delta, consumer not keeping up", zap.Uint64("seq", delta.Seq))
		a.m.Lock()
		a.synced = false
		a.m.Unlock()
		a.requestResync(ctx)
	}
}

func (a *Adapter) handleFullSnapshot(snapshot messages.MessageFullSnapshotResponse) {
	if messages.StateHash(snapshot.Snapshot) != snapshot.StateHash {
		a.logger.Error("snapshot failed hash verification", zap.Uint64("seq", snapshot.Seq))
		return
	}
	a.m.Lock()
	a.lastSeq = snapshot.Seq
	a.turn = snapshot.Turn
	a.lastStateHash = snapshot.StateHash
	a.synced = true
	a.resyncRequested = false
	a.m.Unlock()
	a.forwardSnapshot(snapshot)
}

func (a *Adapter) forwardSnapshot(snapshot messages.MessageFullSnapshotResponse) {
	select {
	case a.snapshots <- snapshot:
	default:
		a.logger.Warn("dropping snapshot, consumer not keeping up",
			zap.Uint64("seq", snapshot.Seq))
	}
}

func (a *Adapter) notifyRoster(update RosterUpdate) {
	select {
	case a.roster <- update:
	default:
		a.logger.Debug("dropping roster update, consumer not keeping up")
	}
}

func (a *Adapter) deliverJoinOutcome(outcome joinOutcome) {
	select {
	case a.pendingJoin <- outcome:
	default:
	}
}

func (a *Adapter) requestResync(ctx context.Context) {
	a.m.Lock()
	if a.resyncRequested {
		a.m.Unlock()
		return
	}
	a.resyncRequested = true
	lastSeq := a.lastSeq
	a.m.Unlock()
	if err := a.send(ctx, messages.MessageTypeFullSnapshotRequest,
		messages.MessageFullSnapshotRequest{LastSeq: lastSeq}); err != nil {
		errors.Log(a.logger, errors.Wrap(err, "request full snapshot", nil))
		a.m.Lock()
		a.resyncRequested = false
		a.m.Unlock()
	}
}

// CreateMatch creates a match and joins as its host.
func (a *Adapter) CreateMatch(ctx context.Context, playerName string,
	settings messages.MatchSettings) (messages.MessageJoinAccepted, error) {
	err := a.send(ctx, messages.MessageTypeCreateMatch, messages.MessageCreateMatch{
		PlayerName: playerName,
		Settings:   settings,
	})
	if err != nil {
		return messages.MessageJoinAccepted{}, errors.Wrap(err, "send create match", nil)
	}
	return a.awaitJoinOutcome(ctx)
}

// Join joins the match with the given join code. Pass the previous player id
// as resumeID to reclaim a slot after a reconnect.
func (a *Adapter) Join(ctx context.Context, joinCode messages.MatchID, playerName string,
	resumeID messages.PlayerID) (messages.MessageJoinAccepted, error) {
	err := a.send(ctx, messages.MessageTypeJoinRequest, messages.MessageJoinRequest{
		JoinCode:       joinCode,
		PlayerName:     playerName,
		ResumePlayerID: resumeID,
	})
	if err != nil {
		return messages.MessageJoinAccepted{}, errors.Wrap(err, "send join request", nil)
	}
	return a.awaitJoinOutcome(ctx)
}

func (a *Adapter) awaitJoinOutcome(ctx context.Context) (messages.MessageJoinAccepted, error) {
	select {
	case <-ctx.Done():
		return messages.MessageJoinAccepted{}, errors.NewContextAbortedError("await join outcome")
	case <-time.After(requestTimeout):
		return messages.MessageJoinAccepted{}, errors.Error{
			Code:    errors.ErrConnection,
			Message: "timeout while waiting for join outcome",
		}
	case outcome := <-a.pendingJoin:
		if outcome.err != nil {
			return messages.MessageJoinAccepted{}, outcome.err
		}
		return outcome.accepted, nil
	}
}

// QueryLobbies lists the discoverable matches on the server.
func (a *Adapter) QueryLobbies(ctx context.Context) ([]messages.LobbyDetails, error) {
	err := a.send(ctx, messages.MessageTypeQueryLobbies, messages.MessageQueryLobbies{})
	if err != nil {
		return nil, errors.Wrap(err, "send lobby query", nil)
	}
	select {
	case <-ctx.Done():
		return nil, errors.NewContextAbortedError("await lobby list")
	case <-time.After(requestTimeout):
		return nil, errors.Error{
			Code:    errors.ErrConnection,
			Message: "timeout while waiting for lobby list",
		}
	case lobbies := <-a.pendingLobbies:
		return lobbies, nil
	}
}

// SetReady announces lobby readiness.
func (a *Adapter) SetReady(ctx context.Context, isReady bool) error {
	return a.send(ctx, messages.MessageTypeReady, messages.MessageReady{IsReady: isReady})
}

// StartMatch asks the server to start the match. Host only.
func (a *Adapter) StartMatch(ctx context.Context) error {
	return a.send(ctx, messages.MessageTypeStartMatch, messages.MessageStartMatch{})
}

// SubmitBundle submits the actions for the given turn. Resubmitting for the
// same turn replaces the previous bundle on the server.
func (a *Adapter) SubmitBundle(ctx context.Context, turn int, actions []json.RawMessage) error {
	return a.send(ctx, messages.MessageTypeTurnBundle, messages.MessageTurnBundle{
		Turn:    turn,
		Actions: actions,
	})
}

// RequestFullSync asks for the authoritative state regardless of the replica
// state.
func (a *Adapter) RequestFullSync(ctx context.Context) error {
	a.m.Lock()
	lastSeq := a.lastSeq
	a.m.Unlock()
	return a.send(ctx, messages.MessageTypeFullSnapshotRequest,
		messages.MessageFullSnapshotRequest{LastSeq: lastSeq})
}

// Leave leaves the match on purpose, giving up the slot without grace.
func (a *Adapter) Leave(ctx context.Context) error {
	return a.send(ctx, messages.MessageTypeLeaveMatch, messages.MessageLeaveMatch{})
}

// VerifyReplica compares the given local state against the server-side hash
// of the last applied delta or snapshot. On divergence it marks the replica
// out of sync and requests the authoritative state.
func (a *Adapter) VerifyReplica(ctx context.Context, localSnapshot []byte) error {
	localHash := messages.StateHash(localSnapshot)
	a.m.Lock()
	serverHash := a.lastStateHash
	if localHash == serverHash {
		a.m.Unlock()
		return nil
	}
	a.synced = false
	a.m.Unlock()
	a.logger.Warn("replica diverged from authoritative state",
		zap.Uint64("local_hash", localHash), zap.Uint64("server_hash", serverHash))
	a.requestResync(ctx)
	return errors.Error{
		Code:    errors.ErrInternal,
		Message: "replica diverged from authoritative state",
		Details: errors.Details{
			"local_hash":  localHash,
			"server_hash": serverHash,
		},
	}
}

func (a *Adapter) send(ctx context.Context, messageType messages.MessageType, payload interface{}) error {
	a.m.Lock()
	matchID := a.matchID
	playerID := a.playerID
	a.m.Unlock()
	frame, err := messages.Compose(messageType, matchID, playerID, payload)
	if err != nil {
		return errors.Wrap(err, "compose frame", errors.Details{"message_type": string(messageType)})
	}
	select {
	case <-ctx.Done():
		return errors.NewContextAbortedError("send frame")
	case <-a.client.Closed():
		return errors.Error{
			Code:    errors.ErrConnection,
			Message: "connection to game server is gone",
		}
	case a.client.Send <- frame:
		return nil
	}
}
