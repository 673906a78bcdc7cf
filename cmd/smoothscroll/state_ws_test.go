package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// Hub tests exercise fanout and slow-client eviction without a network. We
// construct Clients with a nil websocket.Conn; the hub guards conn against
// nil on every close path.

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s", msg)
}

func registered(h *Hub, c *Client) func() bool {
	return func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		_, ok := h.clients[c]
		return ok
	}
}

func newHubClient(h *Hub, addr string, sendBuf int) *Client {
	return &Client{
		hub:        h,
		conn:       nil,
		send:       make(chan []byte, sendBuf),
		remoteAddr: addr,
		logger:     testLogger(),
	}
}

// TestHub_BroadcastDeliveredToAllClients: every registered client receives a
// broadcast frame.
func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(testLogger())
	go hub.Run(ctx)

	c1 := newHubClient(hub, "c1", 4)
	c2 := newHubClient(hub, "c2", 4)

	hub.register <- c1
	waitUntil(t, 500*time.Millisecond, registered(hub, c1), "client1 not registered in time")
	hub.register <- c2
	waitUntil(t, 500*time.Millisecond, registered(hub, c2), "client2 not registered in time")

	hub.BroadcastState(smootherSnapshot{Active: true, Speed: 600, TotalDelta: 10})

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			var env stateEnvelope
			if err := json.Unmarshal(got, &env); err != nil {
				t.Fatalf("%s: invalid envelope: %v", c.remoteAddr, err)
			}
			if env.Type != "state" || !env.Data.Active || env.Data.TotalDelta != 10 {
				t.Errorf("%s: unexpected envelope: %+v", c.remoteAddr, env)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("%s did not receive the broadcast", c.remoteAddr)
		}
	}
}

// TestHub_SlowClientEvicted: a client with a full send buffer is dropped;
// the healthy client keeps receiving.
func TestHub_SlowClientEvicted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(testLogger())
	go hub.Run(ctx)

	slow := newHubClient(hub, "slow", 1)
	fast := newHubClient(hub, "fast", 16)

	hub.register <- slow
	waitUntil(t, 500*time.Millisecond, registered(hub, slow), "slow client not registered in time")
	hub.register <- fast
	waitUntil(t, 500*time.Millisecond, registered(hub, fast), "fast client not registered in time")

	// Fill the slow client's buffer, then overflow it.
	hub.BroadcastState(smootherSnapshot{Active: true})
	hub.BroadcastState(smootherSnapshot{Active: true, TotalDelta: 1})

	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[slow]
		return !ok
	}, "slow client not evicted")

	waitUntil(t, 500*time.Millisecond, registered(hub, fast), "fast client was evicted too")
	if len(fast.send) != 2 {
		t.Errorf("fast client expected 2 frames, got %d", len(fast.send))
	}
}

// TestHub_ShutdownClosesClients: cancellation disconnects everyone.
func TestHub_ShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub(testLogger())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	c := newHubClient(hub, "c", 4)
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, registered(hub, c), "client not registered in time")

	cancel()
	<-done

	hub.mu.Lock()
	n := len(hub.clients)
	hub.mu.Unlock()
	if n != 0 {
		t.Errorf("expected all clients disconnected, %d remain", n)
	}
}
