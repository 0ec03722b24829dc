package messages

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/microcosm-game/microcosm-server/errors"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name        string
		messageType MessageType
		payload     interface{}
	}{
		{
			name:        "join request",
			messageType: MessageTypeJoinRequest,
			payload: &MessageJoinRequest{
				JoinCode:   "AB12",
				PlayerName: "meg",
			},
		},
		{
			name:        "join rejected",
			messageType: MessageTypeJoinRejected,
			payload: &MessageJoinRejected{
				Reason:  string(errors.KindMatchAtCapacity),
				Message: "match is full",
			},
		},
		{
			name:        "turn bundle",
			messageType: MessageTypeTurnBundle,
			payload: &MessageTurnBundle{
				Turn:    3,
				Actions: []json.RawMessage{json.RawMessage(`{"move":"north"}`)},
			},
		},
		{
			name:        "turn bundle with no actions",
			messageType: MessageTypeTurnBundle,
			payload: &MessageTurnBundle{
				Turn: 1,
			},
		},
		{
			name:        "state delta",
			messageType: MessageTypeStateDelta,
			payload: &MessageStateDelta{
				Turn:      1,
				Seq:       1,
				Payload:   []byte("delta-bytes"),
				StateHash: StateHash([]byte("snapshot")),
			},
		},
		{
			name:        "full snapshot response with zero-length snapshot",
			messageType: MessageTypeFullSnapshotResponse,
			payload: &MessageFullSnapshotResponse{
				Turn:      2,
				Seq:       4,
				Snapshot:  []byte{},
				StateHash: StateHash(nil),
			},
		},
		{
			name:        "heartbeat",
			messageType: MessageTypeHeartbeat,
			payload:     &MessageHeartbeat{},
		},
		{
			name:        "disconnect",
			messageType: MessageTypeDisconnect,
			payload:     &MessageDisconnect{Reason: "quit to menu"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Compose(tt.messageType, "AB12", "player-0", tt.payload)
			if err != nil {
				t.Fatalf("Compose() error = %v", err)
			}
			container, payload, err := ParseMessage(raw)
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			if container.MessageType != tt.messageType {
				t.Errorf("ParseMessage() message type = %v, want %v", container.MessageType, tt.messageType)
			}
			if container.MatchID != "AB12" || container.PlayerID != "player-0" {
				t.Errorf("ParseMessage() meta = %v", container)
			}
			if !reflect.DeepEqual(payload, tt.payload) {
				t.Errorf("ParseMessage() payload = %+v, want %+v", payload, tt.payload)
			}
		})
	}
}

func TestParseMessage_RoundTripAllTypes(t *testing.T) {
	// Decode(Encode(m)) must equal m for every message variant.
	payloads := map[MessageType]interface{}{
		MessageTypeCreateMatch: &MessageCreateMatch{
			PlayerName: "meg",
			Settings:   MatchSettings{Name: "world", MaxPlayers: 4, TurnTimeoutSec: 90, AllowLateJoin: false},
		},
		MessageTypeDisconnect:          &MessageDisconnect{Reason: "bye"},
		MessageTypeEndMatch:            &MessageEndMatch{},
		MessageTypeError:               &MessageError{Code: "rule-violation", Message: "invalid move"},
		MessageTypeFullSnapshotRequest: &MessageFullSnapshotRequest{LastSeq: 7},
		MessageTypeFullSnapshotResponse: &MessageFullSnapshotResponse{
			Turn: 4, Seq: 9, Snapshot: []byte("full"), StateHash: StateHash([]byte("full")),
		},
		MessageTypeHeartbeat: &MessageHeartbeat{},
		MessageTypeJoinAccepted: &MessageJoinAccepted{
			JoinCode: "AB12",
			Player:   PlayerInfo{ID: "p1", Name: "meg", Connected: true},
			Players:  []PlayerInfo{{ID: "p0", Name: "host", IsHost: true, Connected: true}, {ID: "p1", Name: "meg", Connected: true}},
			Turn:     0,
		},
		MessageTypeJoinRejected: &MessageJoinRejected{Reason: "unknown-join-code", Message: "no such match"},
		MessageTypeJoinRequest:  &MessageJoinRequest{JoinCode: "AB12", PlayerName: "meg"},
		MessageTypeLeaveMatch:   &MessageLeaveMatch{},
		MessageTypeLobbyList: &MessageLobbyList{
			Lobbies: []LobbyDetails{{JoinCode: "AB12", Name: "world", Phase: "lobby", PlayerCount: 1, MaxPlayers: 4}},
		},
		MessageTypeMatchCreated: &MessageMatchCreated{JoinCode: "AB12", Player: PlayerInfo{ID: "p0", Name: "host", IsHost: true, Connected: true}},
		MessageTypeMatchStarted: &MessageMatchStarted{
			Turn:     1,
			Players:  []PlayerInfo{{ID: "p0", Name: "host", IsHost: true, IsReady: true, Connected: true}},
			Snapshot: []byte("initial"), StateHash: StateHash([]byte("initial")),
		},
		MessageTypePlayerJoined: &MessagePlayerJoined{Player: PlayerInfo{ID: "p1", Name: "meg", Connected: true}},
		MessageTypePlayerLeft:   &MessagePlayerLeft{Player: PlayerInfo{ID: "p1", Name: "meg"}, Reason: "disconnected"},
		MessageTypeQueryLobbies: &MessageQueryLobbies{},
		MessageTypeReady:        &MessageReady{IsReady: true},
		MessageTypeStartMatch:   &MessageStartMatch{},
		MessageTypeStateDelta: &MessageStateDelta{
			Turn: 1, Seq: 1, Payload: []byte("delta"), StateHash: StateHash([]byte("new")),
		},
		MessageTypeTurnBundle: &MessageTurnBundle{Turn: 1, Actions: []json.RawMessage{}},
	}
	for messageType, payload := range payloads {
		t.Run(string(messageType), func(t *testing.T) {
			raw, err := Compose(messageType, "AB12", "p0", payload)
			if err != nil {
				t.Fatalf("Compose() error = %v", err)
			}
			_, got, err := ParseMessage(raw)
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			if !reflect.DeepEqual(got, payload) {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, payload)
			}
		})
	}
	// Exhaustiveness guard: a new message type without a round-trip case
	// should fail here.
	allTypes := []MessageType{
		MessageTypeCreateMatch, MessageTypeDisconnect, MessageTypeError,
		MessageTypeFullSnapshotRequest, MessageTypeFullSnapshotResponse,
		MessageTypeHeartbeat, MessageTypeJoinAccepted, MessageTypeJoinRejected,
		MessageTypeJoinRequest, MessageTypeLeaveMatch, MessageTypeLobbyList,
		MessageTypeMatchCreated, MessageTypeMatchStarted, MessageTypePlayerJoined,
		MessageTypePlayerLeft, MessageTypeQueryLobbies, MessageTypeReady,
		MessageTypeStartMatch, MessageTypeStateDelta, MessageTypeTurnBundle,
	}
	for _, messageType := range allTypes {
		if _, ok := payloads[messageType]; !ok {
			t.Errorf("missing round-trip case for message type %s", messageType)
		}
	}
}

func TestParseContainer_VersionMismatch(t *testing.T) {
	raw := []byte(fmt.Sprintf(`{"v":%d,"message_type":"heartbeat"}`, ProtocolVersion+1))
	_, err := ParseContainer(raw)
	if !errors.Is(err, errors.ErrDecode) {
		t.Fatalf("ParseContainer() error = %v, want decode error", err)
	}
	if errors.KindOf(err) != errors.KindVersionMismatch {
		t.Errorf("ParseContainer() kind = %v, want %v", errors.KindOf(err), errors.KindVersionMismatch)
	}
}

func TestParseContainer_MissingVersion(t *testing.T) {
	_, err := ParseContainer([]byte(`{"message_type":"heartbeat"}`))
	if errors.KindOf(err) != errors.KindVersionMismatch {
		t.Errorf("ParseContainer() kind = %v, want %v", errors.KindOf(err), errors.KindVersionMismatch)
	}
}

func TestParseMessage_UnknownType(t *testing.T) {
	raw := []byte(fmt.Sprintf(`{"v":%d,"message_type":"teleport"}`, ProtocolVersion))
	_, _, err := ParseMessage(raw)
	if errors.KindOf(err) != errors.KindUnknownMessageType {
		t.Errorf("ParseMessage() kind = %v, want %v", errors.KindOf(err), errors.KindUnknownMessageType)
	}
}

func TestParseMessage_BadJSON(t *testing.T) {
	_, _, err := ParseMessage([]byte(`{"v":1,`))
	if !errors.Is(err, errors.ErrDecode) {
		t.Errorf("ParseMessage() error = %v, want decode error", err)
	}
}

func TestCompose_Deterministic(t *testing.T) {
	payload := &MessageStateDelta{Turn: 1, Seq: 1, Payload: []byte("delta"), StateHash: 42}
	first, err := Compose(MessageTypeStateDelta, "AB12", "p0", payload)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	second, err := Compose(MessageTypeStateDelta, "AB12", "p0", payload)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("Compose() not deterministic:\n%s\n%s", first, second)
	}
	// Byte-exact fixture guards against accidental envelope drift.
	want := `{"v":1,"message_type":"state-delta","match_id":"AB12","player_id":"p0",` +
		`"content":{"turn":1,"seq":1,"payload":"ZGVsdGE=","state_hash":42}}`
	if string(first) != want {
		t.Errorf("Compose() = %s, want %s", first, want)
	}
}

func TestStateHash(t *testing.T) {
	if StateHash([]byte("snapshot")) == StateHash([]byte("other")) {
		t.Errorf("StateHash() should differ for different snapshots")
	}
	if StateHash(nil) != StateHash([]byte{}) {
		t.Errorf("StateHash() should treat nil and empty the same")
	}
}
