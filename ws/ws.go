// Package ws provides the websocket transport for game traffic. Each binary
// websocket message carries exactly one wire-codec frame.

package ws

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/microcosm-game/microcosm-server/client"
	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/logging"
)

// HandleWS handles websocket requests. The passed context is used in order to
// stop all remaining read-pumps.
func HandleWS(hub *Hub, ctx context.Context) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errors.Log(logging.WSLogger, errors.FromErr("upgrade connection", errors.ErrConnection, err, nil))
			return
		}
		c := &Client{
			Client:     client.NewClient(uuid.New().String()),
			hub:        hub,
			connection: conn,
		}
		// Use the client's hub so that the reference from the handler can be
		// dropped.
		c.hub.register <- c
		// Power the pumps.
		go c.writePump()
		go c.readPump(ctx)
	}
}

// Connect dials the game server at the given websocket URL and returns a
// client handle that behaves exactly like a server-side one: frames arrive on
// Receive until disconnect closes it, frames passed to Send are delivered in
// order.
func Connect(ctx context.Context, url string) (*client.Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.FromErr("dial game server", errors.ErrConnection, err,
			errors.Details{"url": url})
	}
	c := &Client{
		Client:     client.NewClient(uuid.New().String()),
		connection: conn,
	}
	go c.writePump()
	go c.readPump(ctx)
	return c.Client, nil
}
