package messages

import (
	"encoding/json"

	"github.com/microcosm-game/microcosm-server/errors"
)

// payloadContainerForType creates the payload container matching the given
// MessageType. The switch is exhaustive over all known types so that adding a
// message type without a payload container fails loudly here.
func payloadContainerForType(messageType MessageType) (interface{}, error) {
	switch messageType {
	case MessageTypeCreateMatch:
		return &MessageCreateMatch{}, nil
	case MessageTypeDisconnect:
		return &MessageDisconnect{}, nil
	case MessageTypeEndMatch:
		return &MessageEndMatch{}, nil
	case MessageTypeError:
		return &MessageError{}, nil
	case MessageTypeFullSnapshotRequest:
		return &MessageFullSnapshotRequest{}, nil
	case MessageTypeFullSnapshotResponse:
		return &MessageFullSnapshotResponse{}, nil
	case MessageTypeHeartbeat:
		return &MessageHeartbeat{}, nil
	case MessageTypeJoinAccepted:
		return &MessageJoinAccepted{}, nil
	case MessageTypeJoinRejected:
		return &MessageJoinRejected{}, nil
	case MessageTypeJoinRequest:
		return &MessageJoinRequest{}, nil
	case MessageTypeLeaveMatch:
		return &MessageLeaveMatch{}, nil
	case MessageTypeLobbyList:
		return &MessageLobbyList{}, nil
	case MessageTypeMatchCreated:
		return &MessageMatchCreated{}, nil
	case MessageTypeMatchStarted:
		return &MessageMatchStarted{}, nil
	case MessageTypePlayerJoined:
		return &MessagePlayerJoined{}, nil
	case MessageTypePlayerLeft:
		return &MessagePlayerLeft{}, nil
	case MessageTypeQueryLobbies:
		return &MessageQueryLobbies{}, nil
	case MessageTypeReady:
		return &MessageReady{}, nil
	case MessageTypeStartMatch:
		return &MessageStartMatch{}, nil
	case MessageTypeStateDelta:
		return &MessageStateDelta{}, nil
	case MessageTypeTurnBundle:
		return &MessageTurnBundle{}, nil
	}
	return nil, errors.NewDecodeError("unknown message type", errors.KindUnknownMessageType, nil)
}

// ParseContainer parses the envelope of the given raw frame and verifies the
// protocol version.
func ParseContainer(raw []byte) (MessageContainer, error) {
	var container MessageContainer
	if err := json.Unmarshal(raw, &container); err != nil {
		return MessageContainer{}, errors.NewDecodeError("parse message container", errors.KindDecodeJSON, err)
	}
	if container.Version != ProtocolVersion {
		return MessageContainer{}, errors.Error{
			Code:    errors.ErrDecode,
			Kind:    errors.KindVersionMismatch,
			Message: "incompatible protocol version",
			Details: errors.Details{
				"got_version":  container.Version,
				"want_version": ProtocolVersion,
			},
		}
	}
	return container, nil
}

// ParseMessage parses a given raw frame and returns the container and the
// typed payload.
func ParseMessage(raw []byte) (MessageContainer, interface{}, error) {
	container, err := ParseContainer(raw)
	if err != nil {
		return MessageContainer{}, nil, errors.Wrap(err, "parse container", nil)
	}
	payload, err := payloadContainerForType(container.MessageType)
	if err != nil {
		return MessageContainer{}, nil, errors.Wrap(err, "get payload container for message type",
			errors.Details{"message_type": container.MessageType})
	}
	if len(container.Content) > 0 {
		if err := json.Unmarshal(container.Content, payload); err != nil {
			return MessageContainer{}, nil, errors.NewDecodeError("parse message payload",
				errors.KindDecodeJSON, err)
		}
	}
	return container, payload, nil
}

// MarshalPayload converts the passed payload to a JSON raw message.
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	marshalledPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "marshal payload",
		}
	}
	return marshalledPayload, nil
}

// Compose builds and marshals a MessageContainer with the given meta and
// payload. Encoding is deterministic: the same logical message always yields
// identical bytes.
func Compose(messageType MessageType, matchID MatchID, playerID PlayerID, payload interface{}) ([]byte, error) {
	content, err := MarshalPayload(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload", errors.Details{"message_type": messageType})
	}
	raw, err := json.Marshal(MessageContainer{
		Version:     ProtocolVersion,
		MessageType: messageType,
		MatchID:     matchID,
		PlayerID:    playerID,
		Content:     content,
	})
	if err != nil {
		return nil, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "marshal container",
		}
	}
	return raw, nil
}

// ComposeMust builds and marshals a MessageContainer and panics if an error
// occurs. Only use this for payload types that are known to marshal.
func ComposeMust(messageType MessageType, matchID MatchID, playerID PlayerID, payload interface{}) []byte {
	raw, err := Compose(messageType, matchID, playerID, payload)
	if err != nil {
		panic(err)
	}
	return raw
}
