// Package eventbridge publishes match lifecycle events to an MQTT broker.
// Lobby browsers, tournament tooling and monitoring subscribe there without
// speaking the game protocol.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/games"
	"github.com/microcosm-game/microcosm-server/logging"
	"github.com/microcosm-game/microcosm-server/messages"
	"go.uber.org/zap"
)

const mqttClientID = "microcosm-server"
const baseTopic = "microcosm/matches"
const mqttKeepAlive = 8

const mqttQOS = 0

// Config is the config for the Bridge.
type Config struct {
	// MQTTAddr is the address where the MQTT-server is found.
	MQTTAddr string
}

// Bridge publishes match lifecycle events to MQTT.
type Bridge interface {
	// Run runs the Bridge, publishing the given events until the context is
	// done. Never call it twice!
	Run(ctx context.Context, events <-chan games.LifecycleEvent) error
}

// publisher is used for publishing MQTT messages.
type publisher interface {
	Publish(ctx context.Context, publish *paho.Publish) (*paho.PublishResponse, error)
}

type mqttBridge struct {
	logger *zap.Logger
	config Config
	// brokerURL is the URL of the MQTT broker.
	brokerURL *url.URL
	// publisher is used for publishing MQTT messages. Set by Run.
	publisher publisher
}

// NewBridge creates a Bridge with the given Config. Run it with Bridge.Run.
func NewBridge(config Config) (Bridge, error) {
	// Parse URL.
	brokerURL, err := url.Parse(config.MQTTAddr)
	if err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "invalid mqtt addr",
			errors.Details{"was": config.MQTTAddr})
	}
	return &mqttBridge{
		logger:    logging.BridgeLogger,
		config:    config,
		brokerURL: brokerURL,
	}, nil
}

// announcement is the wire format of a published lifecycle event.
type announcement struct {
	Type        string `json:"type"`
	JoinCode    string `json:"join_code"`
	Turn        int    `json:"turn"`
	PlayerCount int    `json:"player_count"`
}

func (bridge *mqttBridge) Run(ctx context.Context, events <-chan games.LifecycleEvent) error {
	// Establish MQTT connection.
	conn, err := autopaho.NewConnection(ctx, bridge.genClientConfig())
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "create mqtt server connection failed", nil)
	}
	bridge.publisher = conn
	for {
		select {
		case <-ctx.Done():
			// Shutdown MQTT connection.
			disconnectTimeout, cancelDisconnectTimeout := context.WithTimeout(context.Background(), 3*time.Second)
			err = conn.Disconnect(disconnectTimeout)
			cancelDisconnectTimeout()
			if err != nil {
				return errors.NewInternalErrorFromErr(err, "disconnect from mqtt server failed", nil)
			}
			return nil
		case event := <-events:
			bridge.publishEvent(ctx, event)
		}
	}
}

// genClientConfig generates the autopaho.ClientConfig that is ready to
// launch.
func (bridge *mqttBridge) genClientConfig() autopaho.ClientConfig {
	return autopaho.ClientConfig{
		BrokerUrls: []*url.URL{bridge.brokerURL},
		KeepAlive:  mqttKeepAlive,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			bridge.logger.Info("mqtt server connection established")
		},
		OnConnectError: func(err error) {
			errors.Log(bridge.logger, errors.Error{
				Code:    errors.ErrConnection,
				Err:     err,
				Message: "mqtt server connection failed",
			})
		},
		ClientConfig: paho.ClientConfig{
			ClientID: mqttClientID,
			Router:   paho.NewStandardRouter(),
			OnServerDisconnect: func(disconnect *paho.Disconnect) {
				reason := string(disconnect.ReasonCode)
				if disconnect.Properties != nil {
					reason = disconnect.Properties.ReasonString
				}
				errors.Log(bridge.logger, errors.Error{
					Code:    errors.ErrConnection,
					Message: fmt.Sprintf("mqtt server requested disconnect: %s", reason),
				})
			},
			OnClientError: func(err error) {
				errors.Log(bridge.logger, errors.Error{
					Code:    errors.ErrConnection,
					Err:     err,
					Message: "mqtt server connection client error",
				})
			},
		},
	}
}

// publishEvent publishes the given event. Publish errors are logged and never
// affect the match that emitted the event.
func (bridge *mqttBridge) publishEvent(ctx context.Context, event games.LifecycleEvent) {
	payload, err := json.Marshal(announcement{
		Type:        string(event.Type),
		JoinCode:    string(event.JoinCode),
		Turn:        event.Turn,
		PlayerCount: event.PlayerCount,
	})
	if err != nil {
		errors.Log(bridge.logger, errors.NewInternalErrorFromErr(err, "marshal announcement", nil))
		return
	}
	topic := topicForMatch(event.JoinCode)
	bridge.logger.Debug(string(payload), zap.String("message_topic", topic))
	_, err = bridge.publisher.Publish(ctx, &paho.Publish{
		QoS:     mqttQOS,
		Topic:   topic,
		Payload: payload,
	})
	if err != nil {
		errors.Log(bridge.logger, errors.NewInternalErrorFromErr(err, "publish announcement",
			errors.Details{"message_topic": topic}))
	}
}

// topicForMatch builds the topic lifecycle events of the given match are
// published to.
func topicForMatch(joinCode messages.MatchID) string {
	return fmt.Sprintf("%s/%s", baseTopic, joinCode)
}
