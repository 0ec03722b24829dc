package session

import (
	"context"

	"github.com/microcosm-game/microcosm-server/client"
	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/games"
	"github.com/microcosm-game/microcosm-server/logging"
	"github.com/microcosm-game/microcosm-server/messages"
	"go.uber.org/zap"
)

// maxDecodeStrikes is how many undecodable frames a connection may produce
// before it is dismissed.
const maxDecodeStrikes = 3

// Reception serves connected clients. It decodes incoming frames, answers
// lobby traffic and routes match traffic to the right games.Coordinator. It
// implements client.Listener for ws.Hub.
type Reception struct {
	registry *Registry
	logger   *zap.Logger
}

// NewReception creates a Reception serving matches from the given registry.
func NewReception(registry *Registry) *Reception {
	return &Reception{
		registry: registry,
		logger:   logging.SessionLogger,
	}
}

// AcceptClient starts serving the given client until its connection is gone.
func (r *Reception) AcceptClient(ctx context.Context, c *client.Client) {
	r.logger.Debug("client connected", zap.String("client_id", c.ID))
	go r.serveClient(ctx, c)
}

// SayGoodbyeToClient logs the disconnect. Cleanup happens in serveClient
// which observes the closed receive channel.
func (r *Reception) SayGoodbyeToClient(_ context.Context, c *client.Client) {
	r.logger.Debug("client disconnected", zap.String("client_id", c.ID))
}

// clientSession is the per-connection state of one served client.
type clientSession struct {
	c *client.Client
	// coordinator is set once the client joined a match.
	coordinator *games.Coordinator
	// playerID is set together with coordinator.
	playerID messages.PlayerID
	// decodeStrikes counts undecodable frames.
	decodeStrikes int
	// leftOnPurpose is set when the client announced going away, which skips
	// the reconnection grace.
	leftOnPurpose bool
}

func (session *clientSession) joined() bool {
	return session.coordinator != nil
}

func (r *Reception) serveClient(ctx context.Context, c *client.Client) {
	session := &clientSession{c: c}
	defer r.dropSession(ctx, session)
	// Tear down the transport in case serving stops before the connection
	// does, for example after repeated undecodable frames.
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.Receive:
			if !ok {
				return
			}
			if !r.handleFrame(ctx, session, frame) {
				return
			}
		}
	}
}

// dropSession detaches the session from its match. A purposeful leave was
// already handled; a dropped connection grants the reconnection grace.
func (r *Reception) dropSession(ctx context.Context, session *clientSession) {
	if !session.joined() || session.leftOnPurpose {
		return
	}
	if err := session.coordinator.Disconnect(ctx, session.playerID); err != nil {
		errors.Log(r.logger, errors.Wrap(err, "disconnect player from match",
			errors.Details{"player_id": string(session.playerID)}))
	}
}

// handleFrame serves a single incoming frame. It reports whether the client
// should be served further.
func (r *Reception) handleFrame(ctx context.Context, session *clientSession, frame []byte) bool {
	container, payload, err := messages.ParseMessage(frame)
	if err != nil {
		return r.handleDecodeFailure(session, err)
	}
	session.decodeStrikes = 0
	logging.MessageLogger.Debug(string(container.MessageType),
		zap.String("client_id", session.c.ID),
		zap.String("direction", "incoming"))
	switch typedPayload := payload.(type) {
	case *messages.MessageHeartbeat:
		r.send(session, messages.MessageTypeHeartbeat, messages.MessageHeartbeat{})
		return true
	case *messages.MessageQueryLobbies:
		r.send(session, messages.MessageTypeLobbyList, messages.MessageLobbyList{
			Lobbies: r.registry.Lobbies(),
		})
		return true
	case *messages.MessageCreateMatch:
		return r.handleCreateMatch(ctx, session, typedPayload)
	case *messages.MessageJoinRequest:
		return r.handleJoinRequest(ctx, session, typedPayload)
	case *messages.MessageDisconnect:
		r.handleGoingAway(ctx, session)
		return false
	}
	// Everything below requires a joined match.
	if !session.joined() {
		r.sendError(session, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindPlayerNotJoined,
			Message: "join a match first",
			Details: errors.Details{"message_type": string(container.MessageType)},
		})
		return true
	}
	switch typedPayload := payload.(type) {
	case *messages.MessageReady:
		r.replyOnError(session, session.coordinator.SetReady(ctx, session.playerID, typedPayload.IsReady))
	case *messages.MessageStartMatch:
		r.replyOnError(session, session.coordinator.Start(ctx, session.playerID))
	case *messages.MessageTurnBundle:
		r.handleTurnBundle(ctx, session, typedPayload)
	case *messages.MessageFullSnapshotRequest:
		r.replyOnError(session, session.coordinator.RequestSnapshot(ctx, session.playerID))
	case *messages.MessageLeaveMatch:
		r.handleLeaveMatch(ctx, session)
	case *messages.MessageEndMatch:
		r.handleEndMatch(ctx, session)
	default:
		r.sendError(session, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindUnknownMessageType,
			Message: "message type not accepted from clients",
			Details: errors.Details{"message_type": string(container.MessageType)},
		})
	}
	return true
}

// handleDecodeFailure notifies the client and dismisses it after repeated
// undecodable frames.
func (r *Reception) handleDecodeFailure(session *clientSession, err error) bool {
	session.decodeStrikes++
	errors.Log(r.logger, errors.Wrap(err, "decode frame", errors.Details{
		"client_id": session.c.ID,
		"strikes":   session.decodeStrikes,
	}))
	// An old client speaking a different protocol version will understand a
	// join rejection better than a generic error.
	if e, ok := errors.Cast(err); ok && e.Kind == errors.KindVersionMismatch && !session.joined() {
		r.sendJoinRejected(session, err)
	} else {
		r.sendError(session, err)
	}
	if session.decodeStrikes >= maxDecodeStrikes {
		r.logger.Warn("dismissing client after repeated undecodable frames",
			zap.String("client_id", session.c.ID))
		r.send(session, messages.MessageTypeDisconnect, messages.MessageDisconnect{
			Reason: "too many undecodable frames",
		})
		return false
	}
	return true
}

func (r *Reception) handleCreateMatch(ctx context.Context, session *clientSession,
	message *messages.MessageCreateMatch) bool {
	if session.joined() {
		r.sendError(session, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindPlayerAlreadyJoined,
			Message: "already in a match",
		})
		return true
	}
	coordinator, err := r.registry.CreateMatch(message.Settings)
	if err != nil {
		r.sendError(session, errors.Wrap(err, "create match", nil))
		return true
	}
	accepted, err := coordinator.Join(ctx, message.PlayerName, "", session.c)
	if err != nil {
		r.sendError(session, errors.Wrap(err, "join created match", nil))
		return true
	}
	session.coordinator = coordinator
	session.playerID = accepted.Player.ID
	r.send(session, messages.MessageTypeMatchCreated, messages.MessageMatchCreated{
		JoinCode: accepted.JoinCode,
		Player:   accepted.Player,
	})
	return true
}

func (r *Reception) handleJoinRequest(ctx context.Context, session *clientSession,
	message *messages.MessageJoinRequest) bool {
	if session.joined() {
		r.sendError(session, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindPlayerAlreadyJoined,
			Message: "already in a match",
		})
		return true
	}
	coordinator, err := r.registry.Match(message.JoinCode)
	if err != nil {
		r.sendJoinRejected(session, err)
		return true
	}
	accepted, err := coordinator.Join(ctx, message.PlayerName, message.ResumePlayerID, session.c)
	if err != nil {
		r.sendJoinRejected(session, err)
		return true
	}
	session.coordinator = coordinator
	session.playerID = accepted.Player.ID
	r.send(session, messages.MessageTypeJoinAccepted, accepted)
	return true
}

// handleTurnBundle submits the bundle. A stale bundle is dropped without
// reply since it crossed a state delta on the wire and the client will catch
// up on its own.
func (r *Reception) handleTurnBundle(ctx context.Context, session *clientSession,
	message *messages.MessageTurnBundle) {
	err := session.coordinator.SubmitBundle(ctx, session.playerID, *message)
	if err == nil {
		return
	}
	if errors.Is(err, errors.ErrStaleTurn) {
		errors.Log(r.logger, err)
		return
	}
	r.replyOnError(session, err)
}

func (r *Reception) handleLeaveMatch(ctx context.Context, session *clientSession) {
	err := session.coordinator.Leave(ctx, session.playerID)
	if err != nil {
		r.replyOnError(session, err)
		return
	}
	session.coordinator = nil
	session.playerID = ""
}

// handleEndMatch ends the match for everyone on request of the host. The
// coordinator refuses non-host requests.
func (r *Reception) handleEndMatch(ctx context.Context, session *clientSession) {
	err := session.coordinator.End(ctx, session.playerID)
	if err != nil {
		r.replyOnError(session, err)
		return
	}
	session.coordinator = nil
	session.playerID = ""
}

// handleGoingAway serves a purposeful client disconnect, which skips the
// reconnection grace.
func (r *Reception) handleGoingAway(ctx context.Context, session *clientSession) {
	if !session.joined() {
		return
	}
	session.leftOnPurpose = true
	if err := session.coordinator.Leave(ctx, session.playerID); err != nil {
		errors.Log(r.logger, errors.Wrap(err, "leave match on goodbye",
			errors.Details{"player_id": string(session.playerID)}))
	}
}

// replyOnError sends the given error to the client if there is one to send.
func (r *Reception) replyOnError(session *clientSession, err error) {
	if err == nil {
		return
	}
	errors.Log(r.logger, err)
	if errors.BlameUser(err) {
		r.sendError(session, err)
	}
}

func (r *Reception) sendJoinRejected(session *clientSession, err error) {
	errors.Log(r.logger, err)
	e, _ := errors.Cast(err)
	r.send(session, messages.MessageTypeJoinRejected, messages.MessageJoinRejected{
		Reason:  string(e.Kind),
		Message: e.Message,
	})
}

func (r *Reception) sendError(session *clientSession, err error) {
	r.send(session, messages.MessageTypeError, messages.MessageErrorFromError(err))
}

// send writes a frame to the client without blocking. Match traffic carries
// the match meta; lobby traffic goes out without it.
func (r *Reception) send(session *clientSession, messageType messages.MessageType, payload interface{}) {
	var matchID messages.MatchID
	if session.joined() {
		matchID = session.coordinator.JoinCode()
	}
	frame, err := messages.Compose(messageType, matchID, session.playerID, payload)
	if err != nil {
		errors.Log(r.logger, errors.Wrap(err, "compose frame",
			errors.Details{"message_type": string(messageType)}))
		return
	}
	select {
	case <-session.c.Closed():
		r.logger.Debug("dropping frame for closed connection",
			zap.String("client_id", session.c.ID),
			zap.String("message_type", string(messageType)))
	case session.c.Send <- frame:
		logging.MessageLogger.Debug(string(messageType),
			zap.String("client_id", session.c.ID),
			zap.String("direction", "outgoing"))
	default:
		r.logger.Warn("send buffer full, dropping frame",
			zap.String("client_id", session.c.ID),
			zap.String("message_type", string(messageType)))
	}
}
