package wsconn_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/wishboard/pkg/wsconn"
)

func serve(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(r.Context(), conn)
	}))
	t.Cleanup(hs.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPump_IgnoresBadFrames(t *testing.T) {
	var mu sync.Mutex
	var got []string
	conn := serve(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = wsconn.Pump(ctx, conn, nil, func(raw []byte) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, string(raw))
			return nil
		})
	})

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "hello"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPump_ClosedSendEndsWithNormalClosure(t *testing.T) {
	send := make(chan []byte, 1)
	send <- []byte("last")
	close(send)
	conn := serve(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = wsconn.Pump(ctx, conn, send, func([]byte) error { return nil })
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "last", string(raw))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
