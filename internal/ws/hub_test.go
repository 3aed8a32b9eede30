package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	runA = "550e8400-e29b-41d4-a716-446655440000"
	runB = "660e8400-e29b-41d4-a716-446655440000"
)

func mustReceiveMessage(t *testing.T, ch <-chan []byte, timeout time.Duration) []byte {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for websocket payload")
		return nil
	}
}

func mustNotReceiveMessage(t *testing.T, ch <-chan []byte, timeout time.Duration) {
	t.Helper()
	select {
	case payload := <-ch:
		t.Fatalf("expected no payload, got %q", string(payload))
	case <-time.After(timeout):
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run()
		close(stopped)
	}()
	t.Cleanup(func() {
		hub.Close()
		<-stopped
	})
	return hub
}

func TestHubBroadcastFiltersByRun(t *testing.T) {
	hub := startHub(t)

	clientA := NewClient(hub, nil)
	clientA.SetRunID(runA)

	clientB := NewClient(hub, nil)
	clientB.SetRunID(runB)

	watcher := NewClient(hub, nil)

	require.True(t, hub.Register(clientA))
	require.True(t, hub.Register(clientB))
	require.True(t, hub.Register(watcher))

	hub.Broadcast(runA, []byte("run-a"))
	received := mustReceiveMessage(t, clientA.Send, 200*time.Millisecond)
	if string(received) != "run-a" {
		t.Fatalf("expected run-a payload, got %q", string(received))
	}
	received = mustReceiveMessage(t, watcher.Send, 200*time.Millisecond)
	if string(received) != "run-a" {
		t.Fatalf("expected unsubscribed client to receive run-a, got %q", string(received))
	}
	mustNotReceiveMessage(t, clientB.Send, 80*time.Millisecond)
}

func TestHubPublishEncodesEvent(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, nil)
	require.True(t, hub.Register(client))

	require.NoError(t, hub.Publish(Event{
		Type:       MessageChunkAllocated,
		RunID:      runA,
		Department: "Parks",
		Chunk:      1,
		Chunks:     2,
		Programs:   10,
		Source:     "oracle",
		Budget:     41666.67,
	}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(mustReceiveMessage(t, client.Send, 200*time.Millisecond), &got))
	assert.Equal(t, "ChunkAllocated", got["type"])
	assert.Equal(t, runA, got["run_id"])
	assert.Equal(t, "Parks", got["department"])
	assert.Equal(t, float64(2), got["chunks"])
	assert.Equal(t, 41666.67, got["budget"])
	assert.NotContains(t, got, "error")
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, nil)
	require.True(t, hub.Register(client))

	hub.Unregister(client)

	select {
	case _, ok := <-client.Send:
		assert.False(t, ok)
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected send channel to be closed")
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run()
		close(stopped)
	}()

	client := NewClient(hub, nil)
	require.True(t, hub.Register(client))

	hub.Close()
	hub.Close()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop")
	}
	_, ok := <-client.Send
	assert.False(t, ok)

	assert.False(t, hub.Register(NewClient(hub, nil)))
	hub.Broadcast(runA, []byte("dropped"))
	hub.Unregister(client)
}
