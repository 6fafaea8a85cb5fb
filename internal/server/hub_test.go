package server_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuschat/relay/internal/server"
)

func newTestClient(t *testing.T, hub *server.Hub, addr string) *server.Client {
	t.Helper()
	return server.NewClient(nil, hub, nil, addr, *server.NewConfig())
}

func waitForClientCount(t *testing.T, hub *server.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d registered clients, got %d", want, hub.ClientCount())
}

// readDelivery reads one delivered payload from a client's send channel.
func readDelivery(t *testing.T, client *server.Client, timeout time.Duration) string {
	t.Helper()
	select {
	case payload, ok := <-client.GetSendChan():
		require.True(t, ok, "send channel closed while waiting for delivery")
		return string(payload)
	case <-time.After(timeout):
		t.Fatal("Timed out waiting for delivery")
		return ""
	}
}

func TestNewHub(t *testing.T) {
	hub := server.NewHub()

	require.NotNil(t, hub)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestRegisterAndUnregister(t *testing.T) {
	hub := server.NewHub()
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	a := newTestClient(t, hub, "127.0.0.1:1001")
	b := newTestClient(t, hub, "127.0.0.1:1002")

	hub.Register(a)
	hub.Register(b)
	waitForClientCount(t, hub, 2)

	hub.Unregister(a)
	waitForClientCount(t, hub, 1)

	hub.Unregister(b)
	waitForClientCount(t, hub, 0)
}

// Unregistering a client that is already gone must be a no-op, not an error.
func TestUnregisterIsIdempotent(t *testing.T) {
	hub := server.NewHub()
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	a := newTestClient(t, hub, "127.0.0.1:1001")
	hub.Register(a)
	waitForClientCount(t, hub, 1)

	hub.Unregister(a)
	waitForClientCount(t, hub, 0)

	hub.Unregister(a)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

// After any interleaving of register/unregister operations, the live set
// equals the clients registered and not yet unregistered.
func TestRegistryReplay(t *testing.T) {
	hub := server.NewHub()
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	clients := make([]*server.Client, 10)
	for i := range clients {
		clients[i] = newTestClient(t, hub, fmt.Sprintf("127.0.0.1:2%03d", i))
	}

	// Interleave: register all, unregister evens, re-check, unregister some twice.
	for _, c := range clients {
		hub.Register(c)
	}
	waitForClientCount(t, hub, len(clients))

	for i := 0; i < len(clients); i += 2 {
		hub.Unregister(clients[i])
	}
	waitForClientCount(t, hub, len(clients)/2)

	for i := 0; i < len(clients); i += 2 {
		hub.Unregister(clients[i])
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, len(clients)/2, hub.ClientCount())
}

// Broadcasting with N clients registered delivers to exactly those N,
// including whichever client the message came from, and to nobody that has
// unregistered.
func TestBroadcastReachesAllRegisteredClients(t *testing.T) {
	hub := server.NewHub()
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	a := newTestClient(t, hub, "127.0.0.1:1001")
	b := newTestClient(t, hub, "127.0.0.1:1002")
	c := newTestClient(t, hub, "127.0.0.1:1003")

	hub.Register(a)
	hub.Register(b)
	hub.Register(c)
	waitForClientCount(t, hub, 3)

	hub.Unregister(c)
	waitForClientCount(t, hub, 2)

	hub.Broadcast(server.Message{Text: "hello"})

	assert.Equal(t, "hello", readDelivery(t, a, time.Second))
	assert.Equal(t, "hello", readDelivery(t, b, time.Second))

	// The unregistered client's channel was closed without a delivery.
	select {
	case payload, ok := <-c.GetSendChan():
		assert.False(t, ok, "unregistered client received delivery: %q", payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Unregistered client's send channel was not closed")
	}
}

// A client whose send buffer is full is evicted, and the failure does not
// abort delivery to the remaining clients.
func TestBroadcastEvictsUnresponsiveClient(t *testing.T) {
	hub := server.NewHub()
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	stuck := newTestClient(t, hub, "127.0.0.1:1001")
	healthy := newTestClient(t, hub, "127.0.0.1:1002")

	hub.Register(stuck)
	hub.Register(healthy)
	waitForClientCount(t, hub, 2)

	// The send channel buffers 256 payloads; fill both clients exactly.
	for i := 0; i < 256; i++ {
		hub.Broadcast(server.Message{Text: "flood"})
	}
	for i := 0; i < 256; i++ {
		assert.Equal(t, "flood", readDelivery(t, healthy, time.Second))
	}

	// One more broadcast overflows only the stuck client, which is evicted;
	// delivery to the healthy client still happens.
	hub.Broadcast(server.Message{Text: "last"})

	waitForClientCount(t, hub, 1)
	assert.Equal(t, "last", readDelivery(t, healthy, time.Second))
}

func TestConcurrentBroadcasts(t *testing.T) {
	hub := server.NewHub()
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func(id int) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Goroutine %d panicked: %v", id, r)
				}
				done <- true
			}()
			hub.Broadcast(server.Message{Text: "concurrent message"})
		}(i)
	}

	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Concurrent broadcast test timed out")
		}
	}
}

// A hub that has shut down refuses new registrations instead of silently
// swallowing them; the caller keeps ownership of the connection.
func TestRegisterAfterShutdownIsRefused(t *testing.T) {
	hub := server.NewHub()
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	a := newTestClient(t, hub, "127.0.0.1:1001")
	assert.False(t, hub.Register(a))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubShutdown(t *testing.T) {
	hub := server.NewHub()
	go hub.Run()

	a := newTestClient(t, hub, "127.0.0.1:1001")
	hub.Register(a)
	waitForClientCount(t, hub, 1)

	require.NoError(t, hub.Shutdown(5*time.Second))
}

func TestNewClient(t *testing.T) {
	hub := server.NewHub()

	client := server.NewClient(nil, hub, nil, "127.0.0.1:12345", *server.NewConfig())

	require.NotNil(t, client)
	assert.NotEmpty(t, client.ID())

	select {
	case <-client.GetSendChan():
		t.Error("Expected empty send channel but received a delivery")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestClientIDsAreUnique(t *testing.T) {
	hub := server.NewHub()

	a := server.NewClient(nil, hub, nil, "127.0.0.1:1", *server.NewConfig())
	b := server.NewClient(nil, hub, nil, "127.0.0.1:2", *server.NewConfig())

	assert.NotEqual(t, a.ID(), b.ID())
}
