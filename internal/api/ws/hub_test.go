package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymahak/cust/internal/api/ws"
)

func TestLocal_FanOut(t *testing.T) {
	t.Parallel()

	bus := ws.NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, cleanA, err := bus.Subscribe(ctx, "escalations")
	require.NoError(t, err)
	defer cleanA()
	b, cleanB, err := bus.Subscribe(ctx, "escalations")
	require.NoError(t, err)
	defer cleanB()
	other, cleanOther, err := bus.Subscribe(ctx, "elsewhere")
	require.NoError(t, err)
	defer cleanOther()

	require.NoError(t, bus.Publish(ctx, "escalations", []byte("hello")))

	assert.Equal(t, []byte("hello"), <-a)
	assert.Equal(t, []byte("hello"), <-b)
	select {
	case msg := <-other:
		t.Fatalf("unexpected message on other channel: %s", msg)
	default:
	}
}

func TestLocal_CleanupClosesChannel(t *testing.T) {
	t.Parallel()

	bus := ws.NewLocal()
	ctx, cancel := context.WithCancel(context.Background())

	ch, cleanup, err := bus.Subscribe(ctx, "escalations")
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	cleanup() // idempotent
	require.NoError(t, bus.Publish(context.Background(), "escalations", []byte("late")))
}

func TestLocal_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	bus := ws.NewLocal()
	_, cleanup, err := bus.Subscribe(context.Background(), "escalations")
	require.NoError(t, err)
	defer cleanup()

	done := make(chan struct{})
	go func() {
		for range 1000 {
			_ = bus.Publish(context.Background(), "escalations", []byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHub_RelaysEvents(t *testing.T) {
	t.Parallel()

	bus := ws.NewLocal()
	hub := ws.NewHub(bus, "escalations", nil)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeEscalations))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// The subscription is registered after the upgrade; publish until the
	// first message arrives.
	got := make(chan []byte, 1)
	go func() {
		_, data, readErr := conn.Read(ctx)
		if readErr == nil {
			got <- data
		}
	}()

	payload := []byte(`{"type":"escalation.created"}`)
	require.Eventually(t, func() bool {
		_ = bus.Publish(ctx, "escalations", payload)
		select {
		case data := <-got:
			assert.JSONEq(t, string(payload), string(data))
			return true
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
}
