package relay

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/wishboard/pkg/wish"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "board.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func openStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db := openDB(t)
	s, err := OpenStore(context.Background(), db, DefaultBoardID)
	require.NoError(t, err)
	return s, db
}

func TestStore_AddListOrder(t *testing.T) {
	s, _ := openStore(t)
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Add(wish.Wish{ID: id, ChildName: "kid " + id, PhotoURL: "/uploads/" + id + ".jpg"}))
	}

	wishes, err := s.List()
	require.NoError(t, err)
	require.Len(t, wishes, 3)
	assert.Equal(t, "c", wishes[0].ID)
	assert.Equal(t, "a", wishes[1].ID)
	assert.Equal(t, "b", wishes[2].ID)
	assert.Equal(t, "kid a", wishes[1].ChildName)
	assert.Equal(t, 3, s.Len())
}

func TestStore_GetDeleteClear(t *testing.T) {
	s, _ := openStore(t)
	require.NoError(t, s.Add(wish.Wish{ID: "a", ChildName: "Ann"}))
	require.NoError(t, s.Add(wish.Wish{ID: "b", ChildName: "Bob"}))

	w, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "Ann", w.ChildName)

	_, err = s.Get("zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete("a"))
	assert.ErrorIs(t, s.Delete("a"), ErrNotFound)

	n, err := s.Clear()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Clear()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_Theme(t *testing.T) {
	s, _ := openStore(t)
	assert.Equal(t, "default", s.Theme())
	require.NoError(t, s.SetTheme("winter"))
	assert.Equal(t, "winter", s.Theme())
}

func TestStore_BackupAndReload(t *testing.T) {
	ctx := context.Background()
	s, db := openStore(t)

	wrote, err := s.Backup(ctx)
	require.NoError(t, err)
	assert.False(t, wrote, "nothing changed since open")

	require.NoError(t, s.Add(wish.Wish{ID: "a", ChildName: "Ann", PhotoURL: "/uploads/a.jpg"}))
	require.NoError(t, s.SetTheme("night"))
	wrote, err = s.Backup(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = s.Backup(ctx)
	require.NoError(t, err)
	assert.False(t, wrote)

	reloaded, err := OpenStore(ctx, db, DefaultBoardID)
	require.NoError(t, err)
	wishes, err := reloaded.List()
	require.NoError(t, err)
	assert.Equal(t, []wish.Wish{{ID: "a", ChildName: "Ann", PhotoURL: "/uploads/a.jpg"}}, wishes)
	assert.Equal(t, "night", reloaded.Theme())

	// sequence carries on after a reload
	require.NoError(t, reloaded.Add(wish.Wish{ID: "0", ChildName: "Zed"}))
	wishes, err = reloaded.List()
	require.NoError(t, err)
	assert.Equal(t, "0", wishes[1].ID)
}

func TestStore_ConcurrentBackupKeepsLatest(t *testing.T) {
	ctx := context.Background()
	s, db := openStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("w%d", i)
			assert.NoError(t, s.Add(wish.Wish{ID: id, ChildName: "kid " + id}))
			_, err := s.Backup(ctx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	wrote, err := s.Backup(ctx)
	require.NoError(t, err)
	assert.False(t, wrote, "the last concurrent backup already holds every add")

	reloaded, err := OpenStore(ctx, db, DefaultBoardID)
	require.NoError(t, err)
	wishes, err := reloaded.List()
	require.NoError(t, err)
	assert.Len(t, wishes, 8)
}

func TestStore_ForkHasHistory(t *testing.T) {
	s, _ := openStore(t)
	require.NoError(t, s.Add(wish.Wish{ID: "a", ChildName: "Ann"}))
	require.NoError(t, s.Delete("a"))

	doc, err := s.Fork()
	require.NoError(t, err)
	changes, err := doc.Changes()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(changes), 3)
}

func TestDescribe(t *testing.T) {
	s, _ := openStore(t)
	require.NoError(t, s.Add(wish.Wish{ID: "a", ChildName: "Ann"}))
	require.NoError(t, s.Add(wish.Wish{ID: "b", ChildName: "Bob"}))
	require.NoError(t, s.SetTheme("spring"))

	doc, err := s.Fork()
	require.NoError(t, err)
	got, err := Describe(doc)
	require.NoError(t, err)
	assert.Equal(t, "wishes=2 theme=spring", got)

	wishes, theme, err := ReadDoc(doc)
	require.NoError(t, err)
	assert.Equal(t, "spring", theme)
	assert.Equal(t, "a", wishes[0].ID)
}
