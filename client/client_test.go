package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Close(t *testing.T) {
	c := NewClient("test-client")
	select {
	case <-c.Closed():
		require.Fail(t, "fresh client should not be closed")
	default:
	}
	c.Close()
	// Repeated close must not panic.
	c.Close()
	select {
	case <-c.Closed():
	case <-time.After(3 * time.Second):
		require.Fail(t, "close signal should fire")
	}
}

func TestClient_SendStaysOpenAfterClose(t *testing.T) {
	c := NewClient("test-client")
	c.Close()
	// Senders race the teardown and must never hit a closed channel.
	assert.NotPanics(t, func() {
		c.Send <- []byte("frame")
	})
}
