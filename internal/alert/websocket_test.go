package alert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWebSocketHubCloseStopsRun(t *testing.T) {
	hub := NewWebSocketHub()

	stopped := make(chan struct{})
	go func() {
		hub.Run()
		close(stopped)
	}()

	hub.Close()
	// A second Close must not panic.
	hub.Close()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, 0, hub.ConnectedCount())
}

func TestWebSocketHubSendWithoutClientsDrops(t *testing.T) {
	hub := NewWebSocketHub()

	stopped := make(chan struct{})
	go func() {
		hub.Run()
		close(stopped)
	}()

	// With no clients the message is dropped, never queued, so Send cannot
	// block shutdown.
	assert.NoError(t, hub.Send(context.Background(), Message{Text: "test"}))

	hub.Close()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
