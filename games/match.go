package games

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-game/microcosm-server/client"
	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/logging"
	"github.com/microcosm-game/microcosm-server/messages"
	"go.uber.org/zap"
)

// Coordinator runs one hosted match. It owns the authoritative state
// snapshot exclusively: every mutation (join, leave, readiness, bundle
// submission, turn resolution) goes through the single Run goroutine, so at
// most one mutation is in flight per match while different matches proceed
// fully in parallel.
type Coordinator struct {
	// joinCode identifies the match.
	joinCode messages.MatchID
	// config is the effective match configuration.
	config MatchConfig
	// engine is the game-rules collaborator.
	engine Engine

	// phase is the current match phase.
	phase MatchPhase
	// slots are the player slots in join order.
	slots []*Slot
	// turn is the current turn number. Zero while in lobby, one-based once
	// started and strictly increasing by one per resolved turn.
	turn int
	// seq is the broadcast sequence number of the last sent delta. Gap-free
	// and monotonic.
	seq uint64
	// snapshot is the authoritative game state. Opaque to this layer.
	snapshot []byte
	// bundles holds the submitted turn action bundles for the current turn.
	// Resubmission replaces the prior bundle (last-write-wins).
	bundles map[messages.PlayerID]PlayerBundle

	// commands serializes all mutations through Run.
	commands chan func()
	// done is closed when Run returned.
	done chan struct{}

	// turnTimer forces resolution of the current turn. Stopped outside of
	// MatchPhaseAwaitingActions.
	turnTimer *time.Timer
	// graceTimers drop disconnected slots after the reconnection grace.
	graceTimers map[messages.PlayerID]*time.Timer

	// detailsMutex guards details so that the registry can read lobby details
	// without queueing behind turn resolution.
	detailsMutex sync.RWMutex
	// details is the published lobby description.
	details messages.LobbyDetails

	// events receives lifecycle events. Sends never block; slow observers
	// miss events.
	events chan<- LifecycleEvent

	logger *zap.Logger
}

// NewCoordinator creates a Coordinator for a fresh match in lobby phase.
// Start it with Run. The first player to Join becomes the host.
func NewCoordinator(joinCode messages.MatchID, config MatchConfig, engine Engine,
	events chan<- LifecycleEvent) *Coordinator {
	c := &Coordinator{
		joinCode:    joinCode,
		config:      config,
		engine:      engine,
		phase:       MatchPhaseLobby,
		bundles:     make(map[messages.PlayerID]PlayerBundle),
		commands:    make(chan func()),
		done:        make(chan struct{}),
		graceTimers: make(map[messages.PlayerID]*time.Timer),
		events:      events,
		logger:      logging.GamesLogger.With(zap.String("join_code", string(joinCode))),
	}
	c.updateDetails()
	return c
}

// JoinCode returns the match's join code.
func (c *Coordinator) JoinCode() messages.MatchID {
	return c.joinCode
}

// Done receives when the match has ended and the coordinator stopped.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Details returns the published lobby description. Safe for concurrent use
// and never blocks on match processing.
func (c *Coordinator) Details() messages.LobbyDetails {
	c.detailsMutex.RLock()
	defer c.detailsMutex.RUnlock()
	return c.details
}

// Run processes commands until the match ends or the given context is done.
// It blocks so you need to start a goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	defer func() {
		c.stopTimers()
		close(c.done)
	}()
	c.emitEvent(LifecycleEventCreated)
	for {
		select {
		case <-ctx.Done():
			c.endMatch("server shutting down")
			return
		case command := <-c.commands:
			command()
			if c.phase == MatchPhaseEnded {
				return
			}
		}
	}
}

// enqueue runs the given task on the coordinator goroutine and waits for its
// completion.
func (c *Coordinator) enqueue(ctx context.Context, operation string, task func()) error {
	completed := make(chan struct{})
	wrapped := func() {
		task()
		close(completed)
	}
	select {
	case <-ctx.Done():
		return errors.NewContextAbortedError(operation)
	case <-c.done:
		return errors.Error{
			Code:    errors.ErrNotFound,
			Kind:    errors.KindMatchEnded,
			Message: "match already ended",
		}
	case c.commands <- wrapped:
	}
	select {
	case <-ctx.Done():
		return errors.NewContextAbortedError(operation)
	case <-completed:
		return nil
	case <-c.done:
		// The match may have ended right after the task ran.
		select {
		case <-completed:
			return nil
		default:
			return errors.Error{
				Code:    errors.ErrNotFound,
				Kind:    errors.KindMatchEnded,
				Message: "match ended during operation",
			}
		}
	}
}

// enqueueAsync runs the given task on the coordinator goroutine without
// waiting. Used from timer callbacks.
func (c *Coordinator) enqueueAsync(task func()) {
	select {
	case c.commands <- task:
	case <-c.done:
	}
}

// Join admits a player. The first joining player becomes host. A client
// presenting a resume id within the reconnection grace reclaims its previous
// slot and must resync via full snapshot before applying further deltas.
func (c *Coordinator) Join(ctx context.Context, playerName string, resumeID messages.PlayerID,
	cl *client.Client) (messages.MessageJoinAccepted, error) {
	var accepted messages.MessageJoinAccepted
	var joinErr error
	err := c.enqueue(ctx, "join match", func() {
		accepted, joinErr = c.handleJoin(playerName, resumeID, cl)
	})
	if err != nil {
		if errors.KindOf(err) == errors.KindMatchEnded {
			return messages.MessageJoinAccepted{}, errors.NewJoinRejectedError(errors.KindMatchEnded, string(c.joinCode))
		}
		return messages.MessageJoinAccepted{}, err
	}
	return accepted, joinErr
}

func (c *Coordinator) handleJoin(playerName string, resumeID messages.PlayerID,
	cl *client.Client) (messages.MessageJoinAccepted, error) {
	// Reclaim a slot within the reconnection grace window.
	if resumeID != "" {
		if slot := c.slotByID(resumeID); slot != nil && !slot.Connected() {
			slot.Client = cl
			slot.DisconnectedAt = time.Time{}
			c.stopGraceTimer(slot.ID)
			if playerName != "" {
				slot.Name = playerName
			}
			c.updateDetails()
			c.logger.Info("player reclaimed slot", zap.String("player_id", string(slot.ID)))
			c.broadcastExcept(slot.ID, messages.MessageTypePlayerJoined,
				messages.MessagePlayerJoined{Player: slot.Info()})
			// The client missed all deltas broadcast while it was away, so it
			// gets the authoritative state right away.
			if c.phase != MatchPhaseLobby {
				c.sendSnapshot(slot)
			}
			return messages.MessageJoinAccepted{
				JoinCode: c.joinCode,
				Player:   slot.Info(),
				Players:  c.roster(),
				Turn:     c.turn,
				Resumed:  true,
			}, nil
		}
		// The slot is gone or taken; treat as fresh join.
	}
	if c.phase != MatchPhaseLobby && !c.config.AllowLateJoin {
		return messages.MessageJoinAccepted{}, errors.NewJoinRejectedError(errors.KindMatchInProgress, string(c.joinCode))
	}
	if len(c.slots) >= c.config.MaxPlayers {
		return messages.MessageJoinAccepted{}, errors.NewJoinRejectedError(errors.KindMatchAtCapacity, string(c.joinCode))
	}
	slot := &Slot{
		ID:     messages.PlayerID(uuid.New().String()),
		Name:   playerName,
		IsHost: len(c.slots) == 0,
		Client: cl,
	}
	c.slots = append(c.slots, slot)
	c.updateDetails()
	c.logger.Info("player joined", zap.String("player_id", string(slot.ID)),
		zap.String("player_name", slot.Name))
	c.broadcastExcept(slot.ID, messages.MessageTypePlayerJoined,
		messages.MessagePlayerJoined{Player: slot.Info()})
	if c.phase != MatchPhaseLobby {
		// Late joiner starts from the authoritative state.
		c.sendSnapshot(slot)
	}
	return messages.MessageJoinAccepted{
		JoinCode: c.joinCode,
		Player:   slot.Info(),
		Players:  c.roster(),
		Turn:     c.turn,
	}, nil
}

// SetReady toggles the lobby readiness of the given player.
func (c *Coordinator) SetReady(ctx context.Context, playerID messages.PlayerID, isReady bool) error {
	var opErr error
	err := c.enqueue(ctx, "set ready", func() {
		slot := c.slotByID(playerID)
		if slot == nil {
			opErr = errors.Error{
				Code:    errors.ErrNotFound,
				Kind:    errors.KindPlayerNotJoined,
				Message: "player not joined",
			}
			return
		}
		if c.phase != MatchPhaseLobby {
			opErr = errors.Error{
				Code:    errors.ErrProtocolViolation,
				Kind:    errors.KindMatchPhaseViolation,
				Message: "readiness can only change in lobby",
				Details: errors.Details{"phase": c.phase},
			}
			return
		}
		slot.IsReady = isReady
	})
	if err != nil {
		return err
	}
	return opErr
}

// Start begins the match. Only the host may start; every connected player
// must be ready; at least two players must be present unless solo start is
// allowed.
func (c *Coordinator) Start(ctx context.Context, playerID messages.PlayerID) error {
	var opErr error
	err := c.enqueue(ctx, "start match", func() {
		opErr = c.handleStart(playerID)
	})
	if err != nil {
		return err
	}
	return opErr
}

func (c *Coordinator) handleStart(playerID messages.PlayerID) error {
	slot := c.slotByID(playerID)
	if slot == nil {
		return errors.Error{
			Code:    errors.ErrNotFound,
			Kind:    errors.KindPlayerNotJoined,
			Message: "player not joined",
		}
	}
	if !slot.IsHost {
		return errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindNotHost,
			Message: "only the host may start the match",
		}
	}
	if c.phase != MatchPhaseLobby {
		return errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindMatchPhaseViolation,
			Message: "match already started",
			Details: errors.Details{"phase": c.phase},
		}
	}
	connected := 0
	for _, s := range c.slots {
		if !s.Connected() {
			continue
		}
		connected++
		if !s.IsReady {
			return errors.Error{
				Code:    errors.ErrProtocolViolation,
				Kind:    errors.KindMatchPhaseViolation,
				Message: "not all players are ready",
				Details: errors.Details{"player_id": string(s.ID)},
			}
		}
	}
	if connected < 2 && !c.config.AllowSoloStart {
		return errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindMatchPhaseViolation,
			Message: "not enough players to start",
			Details: errors.Details{"connected": connected},
		}
	}
	snapshot, err := c.engine.InitialSnapshot(c.roster())
	if err != nil {
		return errors.Wrap(err, "create initial snapshot", nil)
	}
	c.snapshot = snapshot
	c.turn = 1
	c.phase = MatchPhaseAwaitingActions
	c.updateDetails()
	c.logger.Info("match started", zap.Int("players", connected))
	c.broadcast(messages.MessageTypeMatchStarted, messages.MessageMatchStarted{
		Turn:      c.turn,
		Players:   c.roster(),
		Snapshot:  c.snapshot,
		StateHash: messages.StateHash(c.snapshot),
	})
	c.emitEvent(LifecycleEventStarted)
	c.scheduleTurnTimer()
	return nil
}

// SubmitBundle accepts a turn action bundle. A bundle for a past or future
// turn fails with errors.ErrStaleTurn; a duplicate bundle for the current
// turn replaces the prior one since resubmission after a dropped
// acknowledgment is expected.
func (c *Coordinator) SubmitBundle(ctx context.Context, playerID messages.PlayerID,
	bundle messages.MessageTurnBundle) error {
	var opErr error
	err := c.enqueue(ctx, "submit bundle", func() {
		opErr = c.handleSubmitBundle(playerID, bundle)
	})
	if err != nil {
		return err
	}
	return opErr
}

func (c *Coordinator) handleSubmitBundle(playerID messages.PlayerID, bundle messages.MessageTurnBundle) error {
	slot := c.slotByID(playerID)
	if slot == nil {
		return errors.Error{
			Code:    errors.ErrNotFound,
			Kind:    errors.KindPlayerNotJoined,
			Message: "player not joined",
		}
	}
	if c.phase != MatchPhaseAwaitingActions {
		return errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindMatchPhaseViolation,
			Message: "not awaiting turn actions",
			Details: errors.Details{"phase": c.phase},
		}
	}
	if bundle.Turn != c.turn {
		return errors.NewStaleTurnError(bundle.Turn, c.turn)
	}
	c.bundles[playerID] = PlayerBundle{
		Player:  playerID,
		Turn:    bundle.Turn,
		Actions: bundle.Actions,
	}
	c.logger.Debug("bundle submitted", zap.String("player_id", string(playerID)),
		zap.Int("turn", bundle.Turn), zap.Int("actions", len(bundle.Actions)))
	if c.allSubmitted() {
		c.resolveTurn()
	}
	return nil
}

// Leave removes the given player on purpose, without reconnection grace.
func (c *Coordinator) Leave(ctx context.Context, playerID messages.PlayerID) error {
	return c.enqueue(ctx, "leave match", func() {
		slot := c.slotByID(playerID)
		if slot == nil {
			return
		}
		c.removeSlot(slot, "left", true)
	})
}

// Disconnect handles a dropped connection for the given player. In lobby the
// slot is removed immediately; in a running match it is kept for the
// reconnection grace so the player can reclaim it.
func (c *Coordinator) Disconnect(ctx context.Context, playerID messages.PlayerID) error {
	return c.enqueue(ctx, "disconnect player", func() {
		slot := c.slotByID(playerID)
		if slot == nil || !slot.Connected() {
			return
		}
		slot.Client = nil
		slot.DisconnectedAt = time.Now()
		if c.phase == MatchPhaseLobby || c.config.ReconnectGrace <= 0 {
			c.removeSlot(slot, "disconnected", true)
			return
		}
		c.updateDetails()
		c.logger.Info("player disconnected, grace running",
			zap.String("player_id", string(playerID)),
			zap.Duration("grace", c.config.ReconnectGrace))
		c.broadcastExcept(slot.ID, messages.MessageTypePlayerLeft,
			messages.MessagePlayerLeft{Player: slot.Info(), Reason: "disconnected"})
		c.startGraceTimer(slot.ID)
		// The remaining players' turn may now be complete.
		if c.phase == MatchPhaseAwaitingActions && c.allSubmitted() {
			c.resolveTurn()
		}
	})
}

// RequestSnapshot sends the authoritative state to the given player.
func (c *Coordinator) RequestSnapshot(ctx context.Context, playerID messages.PlayerID) error {
	var opErr error
	err := c.enqueue(ctx, "request snapshot", func() {
		slot := c.slotByID(playerID)
		if slot == nil {
			opErr = errors.Error{
				Code:    errors.ErrNotFound,
				Kind:    errors.KindPlayerNotJoined,
				Message: "player not joined",
			}
			return
		}
		c.sendSnapshot(slot)
	})
	if err != nil {
		return err
	}
	return opErr
}

// End ends the match for all players. Only the host may end it.
func (c *Coordinator) End(ctx context.Context, playerID messages.PlayerID) error {
	var opErr error
	err := c.enqueue(ctx, "end match", func() {
		slot := c.slotByID(playerID)
		if slot == nil {
			opErr = errors.Error{
				Code:    errors.ErrNotFound,
				Kind:    errors.KindPlayerNotJoined,
				Message: "player not joined",
			}
			return
		}
		if !slot.IsHost {
			opErr = errors.Error{
				Code:    errors.ErrProtocolViolation,
				Kind:    errors.KindNotHost,
				Message: "only the host may end the match",
			}
			return
		}
		c.endMatch("ended by host")
	})
	if err != nil {
		return err
	}
	return opErr
}

// resolveTurn applies the collected bundles to the authoritative state and
// broadcasts the resulting delta. Bundles are applied in ascending player id
// order so that outcomes are reproducible given the same set of bundles. A
// rule violation drops the offending bundle and retries the turn; it is
// never fatal to the match.
func (c *Coordinator) resolveTurn() {
	c.phase = MatchPhaseResolving
	c.updateDetails()
	ordered := c.orderedBundles()
	dropped := make(map[messages.PlayerID]struct{})
	var newSnapshot, delta []byte
	var err error
	for attempt := 0; attempt <= len(ordered); attempt++ {
		newSnapshot, delta, err = c.engine.ApplyTurn(c.snapshot, ordered)
		if err == nil {
			break
		}
		offender, ok := OffendingPlayer(err)
		if !ok {
			break
		}
		if _, alreadyDropped := dropped[offender]; alreadyDropped {
			break
		}
		dropped[offender] = struct{}{}
		c.logger.Info("dropping bundle due to rule violation",
			zap.String("player_id", string(offender)), zap.Int("turn", c.turn))
		c.sendError(offender, err)
		for i := range ordered {
			if ordered[i].Player == offender {
				ordered[i].Actions = nil
			}
		}
	}
	if err != nil {
		// An engine failure that is not pinned to a bundle. Keep the
		// authoritative state untouched and retry the turn at the next
		// timeout so the match never stalls forever.
		errors.Log(c.logger, errors.Wrap(err, "apply turn", errors.Details{"turn": c.turn}))
		c.phase = MatchPhaseAwaitingActions
		c.updateDetails()
		c.scheduleTurnTimer()
		return
	}
	c.snapshot = newSnapshot
	c.seq++
	c.broadcast(messages.MessageTypeStateDelta, messages.MessageStateDelta{
		Turn:      c.turn,
		Seq:       c.seq,
		Payload:   delta,
		StateHash: messages.StateHash(c.snapshot),
	})
	c.logger.Debug("turn resolved", zap.Int("turn", c.turn), zap.Uint64("seq", c.seq))
	c.emitEvent(LifecycleEventTurnResolved)
	c.turn++
	c.bundles = make(map[messages.PlayerID]PlayerBundle)
	c.phase = MatchPhaseAwaitingActions
	c.updateDetails()
	c.scheduleTurnTimer()
}

// orderedBundles returns one bundle per connected slot in ascending player id
// order, substituting empty bundles for players that did not submit.
func (c *Coordinator) orderedBundles() []PlayerBundle {
	ordered := make([]PlayerBundle, 0, len(c.slots))
	for _, slot := range c.slots {
		if !slot.Connected() {
			continue
		}
		bundle, ok := c.bundles[slot.ID]
		if !ok {
			bundle = PlayerBundle{Player: slot.ID, Turn: c.turn}
		}
		ordered = append(ordered, bundle)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Player < ordered[j].Player
	})
	return ordered
}

func (c *Coordinator) allSubmitted() bool {
	for _, slot := range c.slots {
		if !slot.Connected() {
			continue
		}
		if _, ok := c.bundles[slot.ID]; !ok {
			return false
		}
	}
	return true
}

// removeSlot removes the given slot, optionally announcing it. Ends the
// match when the last slot is gone or when the host leaves the lobby.
func (c *Coordinator) removeSlot(slot *Slot, reason string, announce bool) {
	c.stopGraceTimer(slot.ID)
	delete(c.bundles, slot.ID)
	for i, s := range c.slots {
		if s == slot {
			c.slots = append(c.slots[:i], c.slots[i+1:]...)
			break
		}
	}
	c.updateDetails()
	c.logger.Info("player removed", zap.String("player_id", string(slot.ID)),
		zap.String("reason", reason))
	if announce {
		c.broadcast(messages.MessageTypePlayerLeft,
			messages.MessagePlayerLeft{Player: slot.Info(), Reason: reason})
	}
	if len(c.slots) == 0 {
		c.endMatch("all players gone")
		return
	}
	if c.phase == MatchPhaseLobby && slot.IsHost {
		c.endMatch("host left")
		return
	}
	// The remaining players' turn may now be complete.
	if c.phase == MatchPhaseAwaitingActions && c.allSubmitted() {
		c.resolveTurn()
	}
}

func (c *Coordinator) endMatch(reason string) {
	if c.phase == MatchPhaseEnded {
		return
	}
	c.phase = MatchPhaseEnded
	c.updateDetails()
	c.stopTimers()
	c.logger.Info("match ended", zap.String("reason", reason))
	c.broadcast(messages.MessageTypeDisconnect, messages.MessageDisconnect{Reason: reason})
	c.emitEvent(LifecycleEventEnded)
}

// scheduleTurnTimer arms the turn timeout for the current turn. The captured
// turn number guards against a stale timer firing for a later turn.
func (c *Coordinator) scheduleTurnTimer() {
	if c.turnTimer != nil {
		c.turnTimer.Stop()
	}
	turnAtSchedule := c.turn
	c.turnTimer = time.AfterFunc(c.config.TurnTimeout, func() {
		c.enqueueAsync(func() {
			if c.phase != MatchPhaseAwaitingActions || c.turn != turnAtSchedule {
				return
			}
			c.logger.Info("turn timeout, resolving with missing bundles empty",
				zap.Int("turn", c.turn))
			c.resolveTurn()
		})
	})
}

func (c *Coordinator) startGraceTimer(playerID messages.PlayerID) {
	c.stopGraceTimer(playerID)
	c.graceTimers[playerID] = time.AfterFunc(c.config.ReconnectGrace, func() {
		c.enqueueAsync(func() {
			slot := c.slotByID(playerID)
			if slot == nil || slot.Connected() {
				return
			}
			// Already announced when the connection dropped.
			c.removeSlot(slot, "reconnect grace expired", false)
		})
	})
}

func (c *Coordinator) stopGraceTimer(playerID messages.PlayerID) {
	if timer, ok := c.graceTimers[playerID]; ok {
		timer.Stop()
		delete(c.graceTimers, playerID)
	}
}

func (c *Coordinator) stopTimers() {
	if c.turnTimer != nil {
		c.turnTimer.Stop()
	}
	for playerID, timer := range c.graceTimers {
		timer.Stop()
		delete(c.graceTimers, playerID)
	}
}

func (c *Coordinator) slotByID(playerID messages.PlayerID) *Slot {
	for _, slot := range c.slots {
		if slot.ID == playerID {
			return slot
		}
	}
	return nil
}

func (c *Coordinator) roster() []messages.PlayerInfo {
	roster := make([]messages.PlayerInfo, 0, len(c.slots))
	for _, slot := range c.slots {
		roster = append(roster, slot.Info())
	}
	return roster
}

func (c *Coordinator) sendSnapshot(slot *Slot) {
	c.sendTo(slot, messages.MessageTypeFullSnapshotResponse, messages.MessageFullSnapshotResponse{
		Turn:      c.turn,
		Seq:       c.seq,
		Snapshot:  c.snapshot,
		StateHash: messages.StateHash(c.snapshot),
	})
}

func (c *Coordinator) sendError(playerID messages.PlayerID, err error) {
	slot := c.slotByID(playerID)
	if slot == nil {
		return
	}
	c.sendTo(slot, messages.MessageTypeError, messages.MessageErrorFromError(err))
}

// sendTo writes a frame to the slot's connection without blocking. A client
// whose send buffer is full misses the frame and recovers through the
// sequence gap detection on its side. A client whose transport closed already
// misses the frame as well; the coordinator learns of the disconnect through
// its own Disconnect command.
func (c *Coordinator) sendTo(slot *Slot, messageType messages.MessageType, payload interface{}) {
	if !slot.Connected() {
		return
	}
	frame, err := messages.Compose(messageType, c.joinCode, slot.ID, payload)
	if err != nil {
		errors.Log(c.logger, errors.Wrap(err, "compose frame", errors.Details{"message_type": messageType}))
		return
	}
	select {
	case <-slot.Client.Closed():
		c.logger.Debug("dropping frame for closed connection",
			zap.String("player_id", string(slot.ID)),
			zap.String("message_type", string(messageType)))
	case slot.Client.Send <- frame:
	default:
		c.logger.Warn("send buffer full, dropping frame",
			zap.String("player_id", string(slot.ID)),
			zap.String("message_type", string(messageType)))
	}
}

func (c *Coordinator) broadcast(messageType messages.MessageType, payload interface{}) {
	for _, slot := range c.slots {
		c.sendTo(slot, messageType, payload)
	}
}

func (c *Coordinator) broadcastExcept(except messages.PlayerID, messageType messages.MessageType,
	payload interface{}) {
	for _, slot := range c.slots {
		if slot.ID == except {
			continue
		}
		c.sendTo(slot, messageType, payload)
	}
}

func (c *Coordinator) updateDetails() {
	details := messages.LobbyDetails{
		JoinCode:    c.joinCode,
		Name:        c.config.Name,
		Phase:       string(c.phase),
		PlayerCount: len(c.slots),
		MaxPlayers:  c.config.MaxPlayers,
	}
	c.detailsMutex.Lock()
	c.details = details
	c.detailsMutex.Unlock()
}

func (c *Coordinator) emitEvent(eventType LifecycleEventType) {
	if c.events == nil {
		return
	}
	event := LifecycleEvent{
		Type:        eventType,
		JoinCode:    c.joinCode,
		Turn:        c.turn,
		PlayerCount: len(c.slots),
	}
	select {
	case c.events <- event:
	default:
	}
}
