package bus_test

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/wishboard/pkg/bus"
	"github.com/astromechza/wishboard/pkg/reconcile"
	"github.com/astromechza/wishboard/pkg/relay"
	"github.com/astromechza/wishboard/pkg/wish"
)

func startRelay(t *testing.T) (*relay.Server, *relay.Store, *httptest.Server) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "relay.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := relay.OpenStore(context.Background(), db, relay.DefaultBoardID)
	require.NoError(t, err)
	srv, err := relay.NewServer(store, relay.Options{UploadDir: t.TempDir()})
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
	})
	return srv, store, hs
}

func next(t *testing.T, out <-chan reconcile.Message) reconcile.Message {
	t.Helper()
	select {
	case msg := <-out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message from bus")
		return reconcile.Message{}
	}
}

func TestClient_ConnectedThenSnapshot(t *testing.T) {
	_, store, hs := startRelay(t)
	require.NoError(t, store.Add(wish.Wish{ID: "a", ChildName: "Ali", PhotoURL: "/uploads/a.jpg"}))

	out := make(chan reconcile.Message, 16)
	c, err := bus.NewClient(hs.URL, out, bus.WithRetryDelay(20*time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	assert.Equal(t, reconcile.KindConnected, next(t, out).Kind)
	snap := next(t, out)
	require.Equal(t, reconcile.KindAllWishes, snap.Kind)
	assert.Equal(t, []wish.Wish{{ID: "a", ChildName: "Ali", PhotoURL: "/uploads/a.jpg"}}, snap.Wishes)
	assert.Equal(t, reconcile.KindSpotlightOff, next(t, out).Kind)
	theme := next(t, out)
	assert.Equal(t, reconcile.KindThemeChange, theme.Kind)
	assert.Equal(t, "default", theme.Theme)

	c.RequestSnapshot()
	assert.Equal(t, reconcile.KindAllWishes, next(t, out).Kind)

	got, err := c.FetchTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default", got)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	srv, _, hs := startRelay(t)
	out := make(chan reconcile.Message, 16)
	c, err := bus.NewClient(hs.URL, out, bus.WithRetryDelay(20*time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	assert.Equal(t, reconcile.KindConnected, next(t, out).Kind)
	assert.Equal(t, reconcile.KindAllWishes, next(t, out).Kind)
	assert.Equal(t, reconcile.KindSpotlightOff, next(t, out).Kind)
	assert.Equal(t, reconcile.KindThemeChange, next(t, out).Kind)

	srv.Hub().Close()

	assert.Equal(t, reconcile.KindDisconnected, next(t, out).Kind)
	assert.Equal(t, reconcile.KindConnected, next(t, out).Kind)
	assert.Equal(t, reconcile.KindAllWishes, next(t, out).Kind)
}

func TestClient_RequestSnapshotWithoutConnection(t *testing.T) {
	c, err := bus.NewClient("http://127.0.0.1:1", make(chan reconcile.Message))
	require.NoError(t, err)
	assert.NotPanics(t, c.RequestSnapshot)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := bus.NewClient("ftp://example.com", nil)
	assert.Error(t, err)
	_, err = bus.NewClient("://", nil)
	assert.Error(t, err)
}
