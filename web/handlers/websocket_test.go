package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/events"
	"github.com/scrypster/recall/pkg/types"
	"github.com/scrypster/recall/web/handlers"
)

func TestWebSocketHub_RejectsForeignOrigin(t *testing.T) {
	hub := handlers.NewWebSocketHub([]string{"localhost:6464"}, nil)
	defer hub.Stop()

	req := httptest.NewRequest("GET", "/ws", nil)
	req = req.WithContext(handlers.WithUser(req.Context(), "alice"))
	req.Header.Set("Origin", "http://evil.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebSocketHub_RequiresUser(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, nil)
	defer hub.Stop()

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebSocketHub_DeliversOnlyToOwner(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	alice := &handlers.MockClient{User: "alice", SendChan: make(chan []byte, 1)}
	bob := &handlers.MockClient{User: "bob", SendChan: make(chan []byte, 1)}
	hub.Register(alice)
	hub.Register(bob)

	require.NoError(t, hub.Publish(context.Background(), events.Event{
		Type:     events.TypeStatusChanged,
		UserID:   "alice",
		MemoryID: "m1",
		Status:   types.StatusCompleted,
	}))

	select {
	case msg := <-alice.SendChan:
		var got events.Event
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "m1", got.MemoryID)
		assert.Equal(t, types.StatusCompleted, got.Status)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case <-bob.SendChan:
		t.Fatal("bob received alice's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebSocketHub_EndToEnd(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(handlers.RequireAuth(hub, config.SecurityConfig{
		Mode:      "production",
		APITokens: map[string]string{"secret": "alice"},
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):]+"/ws?access_token=secret", nil) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	// Registration is asynchronous; publish until the client sees an event.
	received := make(chan events.Event, 1)
	go func() {
		_, data, err := conn.Read(ctx) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		if err != nil {
			return
		}
		var e events.Event
		if json.Unmarshal(data, &e) == nil {
			received <- e
		}
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case e := <-received:
			assert.Equal(t, "m1", e.MemoryID)
			return
		case <-ticker.C:
			_ = hub.Publish(ctx, events.Event{Type: events.TypeStatusChanged, UserID: "alice", MemoryID: "m1"})
		case <-ctx.Done():
			t.Fatal("timeout waiting for websocket event")
		}
	}
}
