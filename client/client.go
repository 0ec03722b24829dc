package client

import (
	"context"
	"sync"
)

// frameBuffer is the capacity of the Send and Receive channels.
const frameBuffer = 256

// Client holds the connection and is used by session.Registry as well as
// ws.Hub. It is a non-owning handle: the transport owns the underlying
// connection, closes Receive when the connection is gone and stops writing
// when Close was called.
type Client struct {
	// ID is a temporary id assigned to the Client.
	ID string
	// Send is the channel outgoing frames are passed to. Never closed, so
	// senders can never hit a closed channel.
	Send chan []byte
	// Receive is the channel for incoming frames. Closed by the transport on
	// disconnect, so consumers always observe a terminal event.
	Receive chan []byte

	// closed signals that the connection is gone or should be torn down.
	closed chan struct{}
	// closeOnce guards closed.
	closeOnce sync.Once
}

// NewClient creates a Client with buffered frame channels.
func NewClient(id string) *Client {
	return &Client{
		ID:      id,
		Send:    make(chan []byte, frameBuffer),
		Receive: make(chan []byte, frameBuffer),
		closed:  make(chan struct{}),
	}
}

// Close signals that the connection is gone or should be torn down. The
// transport stops its write pump on the signal and closes the underlying
// connection. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// Closed receives when Close was called.
func (c *Client) Closed() <-chan struct{} {
	return c.closed
}

// Listener provides methods for accepting new clients and unregister events.
type Listener interface {
	// AcceptClient is called when a new Client connects.
	AcceptClient(ctx context.Context, client *Client)
	// SayGoodbyeToClient is called when a Client's connection has been closed.
	SayGoodbyeToClient(ctx context.Context, client *Client)
}
