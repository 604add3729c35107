package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/jokebox/internal/model"
)

func newStreamServer(t *testing.T, b *Broker, origins []string) *httptest.Server {
	t.Helper()
	s := NewStreamer(b, origins, discardLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Stream(w, r, model.AuthUser{ID: r.URL.Query().Get("user"), Email: "x@example.com"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, user string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
}

func waitForSubscribers(t *testing.T, b *Broker, userID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.Subscribers(userID) == n },
		time.Second, 5*time.Millisecond)
}

func TestStreamer_RelaysOwnEvents(t *testing.T) {
	b := NewBroker(8, discardLogger())
	srv := newStreamServer(t, b, []string{"*"})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "alice"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForSubscribers(t, b, "alice", 1)

	b.Publish(event(model.JokeInserted, "bob", "not-yours"))
	b.Publish(event(model.JokeUpdated, "alice", "j1"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got model.JokeEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, model.JokeUpdated, got.Operation)
	assert.Equal(t, "j1", got.Joke.ID)
	assert.Equal(t, "alice", got.Joke.UserID)
}

func TestStreamer_UnsubscribesOnClientClose(t *testing.T) {
	b := NewBroker(8, discardLogger())
	srv := newStreamServer(t, b, []string{"*"})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "alice"), nil)
	require.NoError(t, err)
	waitForSubscribers(t, b, "alice", 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitForSubscribers(t, b, "alice", 0)
}

func TestStreamer_ClosesWhenBrokerCloses(t *testing.T) {
	b := NewBroker(8, discardLogger())
	srv := newStreamServer(t, b, []string{"*"})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "alice"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForSubscribers(t, b, "alice", 1)

	b.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
}

func TestStreamer_RejectsForeignOrigin(t *testing.T) {
	b := NewBroker(8, discardLogger())
	srv := newStreamServer(t, b, []string{"https://app.example.com"})

	header := http.Header{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "alice"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": {"https://app.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "alice"), header)
	require.NoError(t, err)
	conn.Close()
}
