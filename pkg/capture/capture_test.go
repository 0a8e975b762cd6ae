package capture_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/wishboard/pkg/capture"
	"github.com/astromechza/wishboard/pkg/relay"
	"github.com/astromechza/wishboard/pkg/wish"
)

var jpegPhoto = append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{7}, 128)...)

func newClient(t *testing.T) *capture.Client {
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
	c, err := capture.NewClient(hs.URL, hs.Client())
	require.NoError(t, err)
	return c
}

func TestSubmit(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	w, err := c.Submit(ctx, capture.Submission{ChildName: " Elif ", Photo: bytes.NewReader(jpegPhoto)})
	require.NoError(t, err)
	assert.Equal(t, "Elif", w.ChildName)
	assert.Equal(t, "/uploads/"+w.ID+".jpg", w.PhotoURL)

	wishes, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []wish.Wish{w}, wishes)
}

func TestSubmit_LocalValidation(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	_, err := c.Submit(ctx, capture.Submission{ChildName: "E", Photo: bytes.NewReader(jpegPhoto)})
	assert.ErrorIs(t, err, capture.ErrInvalidName)
	assert.ErrorIs(t, err, wish.ErrNameTooShort)

	_, err = c.Submit(ctx, capture.Submission{ChildName: "Elif"})
	assert.ErrorIs(t, err, capture.ErrMissingPhoto)

	_, err = c.Submit(ctx, capture.Submission{ChildName: "Elif", Photo: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, capture.ErrMissingPhoto)
}

func TestSubmit_ServerMessage(t *testing.T) {
	c := newClient(t)
	_, err := c.Submit(context.Background(), capture.Submission{ChildName: "Elif", Photo: bytes.NewReader([]byte("not a photo"))})

	var se *capture.ServerError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Contains(t, se.Message, "not an image")
}

func TestAdmin(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	a, err := c.Submit(ctx, capture.Submission{ChildName: "Ali", Photo: bytes.NewReader(jpegPhoto)})
	require.NoError(t, err)
	_, err = c.Submit(ctx, capture.Submission{ChildName: "Veli", Photo: bytes.NewReader(jpegPhoto)})
	require.NoError(t, err)

	got, err := c.Spotlight(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	require.NoError(t, c.SpotlightOff(ctx))

	require.NoError(t, c.Delete(ctx, a.ID))
	var se *capture.ServerError
	err = c.Delete(ctx, a.ID)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)

	require.NoError(t, c.SetTheme(ctx, "spring"))
	theme, err := c.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, "spring", theme)
	assert.Error(t, c.SetTheme(ctx, "neon"))

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	wishes, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, wishes)
}
