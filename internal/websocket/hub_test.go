package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gator-press/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startHub serves the hub on an httptest server; the user id comes from the
// ?user query. The returned channel receives once per registered client.
func startHub(t *testing.T) (*Hub, *httptest.Server, <-chan struct{}) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	go hub.Run()
	registered := make(chan struct{}, 8)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user"))
		if err != nil {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, userID, conn).Serve()
		registered <- struct{}{}
	}))
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, srv, registered
}

func dial(t *testing.T, srv *httptest.Server, registered <-chan struct{}, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("client was never registered")
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub, srv, registered := startHub(t)
	conn := dial(t, srv, registered, uuid.New())

	postID := uuid.New()
	hub.PublishEvent(models.LifecycleEvent{
		Type:   models.EventPostSubmitted,
		PostID: postID,
		Title:  "Hello",
		Status: models.StatusReview,
		Actor:  "alice",
		At:     time.Now(),
	})

	var got map[string]interface{}
	readJSON(t, conn, &got)
	assert.Equal(t, "post.submitted", got["type"])
	assert.Equal(t, postID.String(), got["postId"])
	assert.Equal(t, "REVIEW", got["status"])
	assert.NotContains(t, got, "createdBy")
}

func TestHubSendsDirectMessageToCreator(t *testing.T) {
	hub, srv, registered := startHub(t)
	creator := uuid.New()
	conn := dial(t, srv, registered, creator)

	hub.PublishEvent(models.LifecycleEvent{
		Type:      models.EventPostPublished,
		PostID:    uuid.New(),
		Status:    models.StatusPublished,
		CreatedBy: creator,
	})

	var broadcast, direct map[string]interface{}
	readJSON(t, conn, &broadcast)
	readJSON(t, conn, &direct)
	// Broadcast and direct queues are separate, so accept either order.
	if _, ok := broadcast["direct"]; ok {
		broadcast, direct = direct, broadcast
	}
	assert.Equal(t, "post.published", broadcast["type"])
	assert.Equal(t, true, direct["direct"])
	event, ok := direct["event"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "post.published", event["type"])
}

func TestHubStopClosesConnections(t *testing.T) {
	hub, srv, registered := startHub(t)
	conn := dial(t, srv, registered, uuid.New())

	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// Publishing after stop must not block.
	doneCh := make(chan struct{})
	go func() {
		for i := 0; i < hubQueueSize*2; i++ {
			hub.PublishEvent(models.LifecycleEvent{Type: models.EventPostDeleted, PostID: uuid.New()})
		}
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishEvent blocked after Stop")
	}
}
