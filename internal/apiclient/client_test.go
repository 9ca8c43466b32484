package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/realtime"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", "tok")
	require.NoError(t, err)
	return c
}

func TestNewRejectsInvalidURL(t *testing.T) {
	_, err := New("localhost", "tok")
	require.Error(t, err)
}

func TestListRequestsSendsTokenAndDirection(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/requests", r.URL.Path)
		require.Equal(t, "sent", r.URL.Query().Get("direction"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"requests": []models.Request{{ID: "r1", Title: "VPN", Status: models.RequestSubmitted}},
		})
	})

	reqs, err := c.ListRequests(context.Background(), models.DirectionSent)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, "r1", reqs[0].ID)
}

func TestErrorStatusesAreClassified(t *testing.T) {
	cases := map[int]apperr.Kind{
		http.StatusBadRequest:         apperr.KindValidation,
		http.StatusForbidden:          apperr.KindForbidden,
		http.StatusNotFound:           apperr.KindNotFound,
		http.StatusConflict:           apperr.KindConflict,
		http.StatusPreconditionFailed: apperr.KindPrecondition,
	}
	for status, kind := range cases {
		status, kind := status, kind
		t.Run(string(kind), func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
			})
			_, err := c.UpdateRequestStatus(context.Background(), "r1", models.RequestApproved)
			require.True(t, apperr.Is(err, kind))
			require.Equal(t, "nope", err.Error())
		})
	}
}

func TestServerErrorIsUnclassified(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.UnreadCount(context.Background())
	require.Error(t, err)
	require.Equal(t, apperr.Kind(""), apperr.KindOf(err))
}

func TestNotificationCalls(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/notifications":
			require.Equal(t, "10", r.URL.Query().Get("limit"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"notifications": []models.Notification{{ID: "n1"}}})
		case "/api/notifications/unread-count":
			_ = json.NewEncoder(w).Encode(map[string]int{"count": 3})
		case "/api/notifications/read-all":
			require.Equal(t, http.MethodPost, r.Method)
			_ = json.NewEncoder(w).Encode(map[string]int{"updated": 3})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	feed, err := c.ListNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)

	count, err := c.UnreadCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	updated, err := c.MarkAllRead(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, updated)
}

func TestStreamEventsRelaysToLocalBus(t *testing.T) {
	serverBus := eventbus.New(zerolog.Nop())
	hub := realtime.NewHub(serverBus, func(r *http.Request) (string, bool) {
		id := r.URL.Query().Get("access_token")
		return id, id != ""
	}, nil, zerolog.Nop())
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle("/api/events", hub)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL+"/api", "u1")
	require.NoError(t, err)

	local := eventbus.New(zerolog.Nop())
	var got atomic.Int32
	local.Subscribe(eventbus.TopicRequestsUpdated, func(evt eventbus.Event) {
		if evt.EntityID == "r1" {
			got.Add(1)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.StreamEvents(ctx, local) }()

	require.Eventually(t, func() bool { return hub.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	serverBus.Publish(eventbus.Event{Topic: eventbus.TopicRequestsUpdated, EntityID: "other", Audience: []string{"u2"}})
	serverBus.Publish(eventbus.Event{Topic: eventbus.TopicRequestsUpdated, EntityID: "r1", Audience: []string{"u1"}})
	require.Eventually(t, func() bool { return got.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}
