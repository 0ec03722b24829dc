package eventbridge

import (
	"context"
	"testing"

	"github.com/eclipse/paho.golang/paho"
	"github.com/microcosm-game/microcosm-server/games"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockPublisher records published messages.
type mockPublisher struct {
	published []*paho.Publish
}

func (m *mockPublisher) Publish(_ context.Context, publish *paho.Publish) (*paho.PublishResponse, error) {
	m.published = append(m.published, publish)
	return &paho.PublishResponse{}, nil
}

func TestTopicForMatch(t *testing.T) {
	assert.Equal(t, "microcosm/matches/AB12", topicForMatch("AB12"))
}

func TestMQTTBridge_PublishEvent(t *testing.T) {
	publisher := &mockPublisher{}
	bridge := &mqttBridge{
		logger:    zap.NewNop(),
		publisher: publisher,
	}
	bridge.publishEvent(context.Background(), games.LifecycleEvent{
		Type:        games.LifecycleEventTurnResolved,
		JoinCode:    "AB12",
		Turn:        3,
		PlayerCount: 4,
	})
	require.Len(t, publisher.published, 1, "event should have been published")
	publish := publisher.published[0]
	assert.Equal(t, "microcosm/matches/AB12", publish.Topic)
	assert.JSONEq(t, `{"type":"turn-resolved","join_code":"AB12","turn":3,"player_count":4}`,
		string(publish.Payload))
}

func TestNewBridge_InvalidAddr(t *testing.T) {
	_, err := NewBridge(Config{MQTTAddr: "://not-a-url"})
	require.Error(t, err, "bridge creation with invalid addr should fail")
}
