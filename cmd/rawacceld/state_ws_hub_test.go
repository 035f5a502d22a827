package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"rawaccel"
)

// These tests drive the hub without a websocket server. Clients carry a nil
// conn; the hub only closes conns on eviction and tolerates nil.

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(discardLogger(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func startHub(t *testing.T, hub *Hub) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return func() {
		stop()
		select {
		case <-hub.done:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for hub to stop")
		}
	}
}

func testClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     discardLogger(),
	}
}

func registerClient(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	stop := startHub(t, hub)
	defer stop()

	c1 := testClient(hub, "c1", 4)
	c2 := testClient(hub, "c2", 4)
	registerClient(t, hub, c1)
	registerClient(t, hub, c2)
	if hub.Clients() != 2 {
		t.Fatalf("Clients() = %d, want 2", hub.Clients())
	}

	msg := []byte(`{"type":"settings_changed","data":{}}`)
	// Direct send: BroadcastBytes may drop while the queue is full.
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub := newTestHub(t, 1, 8)
	stop := startHub(t, hub)
	defer stop()

	slow := testClient(hub, "slow", 1)
	fast := testClient(hub, "fast", 8)
	registerClient(t, hub, slow)
	registerClient(t, hub, fast)

	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"settings_changed"}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", got, msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	// Drain the pre-filled message, then expect the channel to be closed.
	select {
	case <-slow.send:
	default:
	}
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")
}

func TestHub_BroadcastSettings(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	stop := startHub(t, hub)
	defer stop()

	c := testClient(hub, "c", 4)
	registerClient(t, hub, c)

	state := newTestFilter(t, &stepClock{}, rawaccel.DefaultSettings())
	state.Subscribe(hub.BroadcastSettings)
	next := rawaccel.DefaultSettings()
	next.DegreesRotation = 4
	state.Write(next)

	select {
	case raw := <-c.send:
		var env struct {
			Type string            `json:"type"`
			Data rawaccel.Settings `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		if env.Type != wsTypeSettingsChanged || env.Data.DegreesRotation != 4 {
			t.Fatalf("envelope = %+v", env)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for settings_changed")
	}
}

func TestHub_InitialSnapshotAtRegistration(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	stop := startHub(t, hub)
	defer stop()

	state := newTestFilter(t, &stepClock{}, rawaccel.DefaultSettings())
	state.Subscribe(hub.BroadcastSettings)

	c := testClient(hub, "c", 4)
	c.initial = func() []byte {
		msg, err := marshalEnvelope(wsTypeSettingsInit, state.Read())
		if err != nil {
			t.Errorf("marshal: %v", err)
			return nil
		}
		return msg
	}

	// A commit between creating the client and registering it must still
	// reach the client.
	next := rawaccel.DefaultSettings()
	next.SpeedCap = 15
	state.Write(next)
	waitUntil(t, 500*time.Millisecond, func() bool { return len(hub.broadcast) == 0 }, "broadcast not drained")
	registerClient(t, hub, c)

	select {
	case raw := <-c.send:
		var env struct {
			Type string            `json:"type"`
			Data rawaccel.Settings `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		if env.Type != wsTypeSettingsInit || env.Data.SpeedCap != 15 {
			t.Fatalf("first message = %+v", env)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for settings_init")
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	stop := startHub(t, hub)

	c := testClient(hub, "c", 4)
	registerClient(t, hub, c)
	stop()

	if _, ok := <-c.send; ok {
		t.Fatalf("send channel still open after hub stopped")
	}
	if hub.Clients() != 0 {
		t.Fatalf("Clients() = %d after stop", hub.Clients())
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
