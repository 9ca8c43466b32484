package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func headerIdentity(r *http.Request) (string, bool) {
	id := r.Header.Get("X-User")
	return id, id != ""
}

func newServer(t *testing.T) (eventbus.Bus, *Hub, string) {
	t.Helper()
	bus := eventbus.New(zerolog.Nop())
	hub := NewHub(bus, headerIdentity, func(*http.Request) bool { return true }, zerolog.Nop())
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return bus, hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("X-User", userID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPushesAddressedEvents(t *testing.T) {
	bus, hub, url := newServer(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")
	require.Eventually(t, func() bool { return hub.Connections() == 2 }, time.Second, 5*time.Millisecond)

	bus.Publish(eventbus.Event{Topic: eventbus.TopicRefreshNotifications, Audience: []string{"alice"}})
	bus.Publish(eventbus.Event{Topic: eventbus.TopicRequestsUpdated, EntityID: "r1"})

	var evt eventbus.Event
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, alice.ReadJSON(&evt))
	require.Equal(t, eventbus.TopicRefreshNotifications, evt.Topic)
	require.NoError(t, alice.ReadJSON(&evt))
	require.Equal(t, eventbus.TopicRequestsUpdated, evt.Topic)
	require.Equal(t, "r1", evt.EntityID)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, bob.ReadJSON(&evt))
	require.Equal(t, eventbus.TopicRequestsUpdated, evt.Topic, "bob never sees alice's notification refresh")
}

func TestRejectsAnonymousUpgrade(t *testing.T) {
	_, _, url := newServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestClientDisconnectIsForgotten(t *testing.T) {
	_, hub, url := newServer(t)
	conn := dial(t, url, "alice")
	require.Eventually(t, func() bool { return hub.Connections() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections() == 0 }, time.Second, 5*time.Millisecond)
}
