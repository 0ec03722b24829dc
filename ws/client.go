package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/microcosm-game/microcosm-server/client"
	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/logging"
	"go.uber.org/zap"
)

const (
	// writeTimeout is the timeout for writing a frame to the peer.
	writeTimeout = 10 * time.Second
	// pingInterval is the interval in which pings are sent to the peer. Must
	// be less than pongTimeout.
	pingInterval = (pongTimeout * 9) / 10
	// pongTimeout is the timeout for waiting for the next pong message from
	// the peer. This doubles as the connection heartbeat timeout: a peer that
	// stops answering pings is disconnected.
	pongTimeout = 60 * time.Second
	// maxFrameSize is the maximum frame size allowed from peer.
	maxFrameSize = 1 << 20
)

// Client holds the websocket connection and is being used by Hub. For dialed
// connections there is no hub and teardown happens through the pumps alone.
type Client struct {
	*client.Client
	// hub is the websocket hub which is used for registering and
	// unregistering. Nil for dialed (client-side) connections.
	hub *Hub
	// connection is the actual websocket connection.
	connection *websocket.Conn
}

// logger returns a zap.Logger with the Client id as field.
func (c *Client) logger() *zap.Logger {
	return logging.WSLogger.With(zap.String("client_id", c.ID))
}

// readPump forwards frames from the websocket connection to the Receive
// channel. Receive is closed when the connection is gone, so consumers always
// observe disconnection as a terminal event.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if c.hub != nil {
			c.hub.unregister <- c
		} else {
			// No hub for dialed connections, so stop the write pump directly.
			c.Close()
		}
		err := c.connection.Close()
		if err != nil {
			c.logger().Debug("close connection", zap.Error(err))
		}
		close(c.Receive)
	}()
	c.connection.SetReadLimit(maxFrameSize)
	_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
	// Handle received pong.
	c.connection.SetPongHandler(func(string) error {
		_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		// Read next frame.
		_, frame, err := c.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger().Debug("unexpected close", zap.Error(err))
			}
			break
		}
		// Forward.
		select {
		case <-ctx.Done():
			c.logger().Warn("dropping frame due to ctx done")
		case c.Receive <- frame:
		}
	}
}

// writePump forwards outgoing frames from the Send channel to the websocket
// connection. We do not pass a context.Context here because the close signal
// or the connection going away will lead to termination, anyways.
func (c *Client) writePump() {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		// Stop ping ticker in order to avoid ticker leak.
		pingTicker.Stop()
		// Close connection.
		err := c.connection.Close()
		if err != nil {
			c.logger().Debug("close connection", zap.Error(err))
		}
	}()
	for {
		select {
		case <-c.Closed():
			// Flush frames that were queued before the close signal, then say
			// goodbye to the peer.
			for {
				select {
				case frame := <-c.Send:
					_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := c.connection.WriteMessage(websocket.BinaryMessage, frame); err != nil {
						return
					}
				default:
					_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
					err := c.connection.WriteMessage(websocket.CloseMessage, []byte{})
					if err != nil {
						c.logger().Debug("write close message", zap.Error(err))
					}
					return
				}
			}
		case frame := <-c.Send:
			// Set write timeout.
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			// Write frame. Each frame is one binary websocket message, so the
			// websocket layer provides the length-prefixed framing.
			err := c.connection.WriteMessage(websocket.BinaryMessage, frame)
			if err != nil {
				// We expect the read pump to fail as well.
				errors.Log(c.logger(), errors.FromErr("write frame", errors.ErrConnection, err, nil))
				return
			}
		case <-pingTicker.C:
			// Send ping.
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
