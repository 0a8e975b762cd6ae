package relay

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/wishboard/pkg/wish"
)

var ErrNotFound = errors.New("wish not found")

const DefaultBoardID = "default"

// Store is the relay's board, held as an automerge document so its full
// change history can be inspected later. The document is backed up to sqlite.
//
// Layout of the document:
//
//	wishes:  map id -> {childName, photoUrl, seq}
//	theme:   string
//	nextSeq: counter
type Store struct {
	db *sql.DB
	id string

	mu  sync.Mutex
	doc *automerge.Doc

	// backupMu serializes Backup so an older save never lands after a newer
	// one. It guards saved.
	backupMu sync.Mutex
	saved    string
}

// OpenStore ensures the boards table exists and loads (or creates) the board
// with the given id.
func OpenStore(ctx context.Context, db *sql.DB, id string) (*Store, error) {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS boards (
		id text not null primary key,
		content text
		)`,
	); err != nil {
		return nil, fmt.Errorf("failed to create boards table: %w", err)
	}

	var content string
	err := db.QueryRowContext(ctx, `SELECT content FROM boards WHERE id = ?`, id).Scan(&content)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		doc, err := newBoardDoc()
		if err != nil {
			return nil, err
		}
		content = base64.StdEncoding.EncodeToString(doc.Save())
		if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO boards (id, content) VALUES (?, ?)`, id, content); err != nil {
			return nil, fmt.Errorf("failed to insert board: %w", err)
		}
		slog.Info("created board", "board", id)
		return &Store{db: db, id: id, doc: doc, saved: content}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to query board: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode board: %w", err)
	}
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	s := &Store{db: db, id: id, doc: doc, saved: content}
	slog.Info("loaded board", "board", id, "heads", doc.Heads(), "wishes", s.Len())
	return s, nil
}

func newBoardDoc() (*automerge.Doc, error) {
	doc := automerge.New()
	if err := doc.Path("wishes").Set(automerge.NewMap()); err != nil {
		return nil, fmt.Errorf("failed to init wishes: %w", err)
	}
	if err := doc.Path("theme").Set("default"); err != nil {
		return nil, fmt.Errorf("failed to init theme: %w", err)
	}
	if err := doc.Path("nextSeq").Set(automerge.NewCounter(0)); err != nil {
		return nil, fmt.Errorf("failed to init sequence: %w", err)
	}
	if _, err := commit(doc, "init board"); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return doc, nil
}

// commit tolerates an empty transaction.
func commit(doc *automerge.Doc, msg string) (automerge.ChangeHash, error) {
	return doc.Commit(msg, automerge.CommitOptions{AllowEmpty: true})
}

type entry struct {
	wish wish.Wish
	seq  int64
}

// List returns every wish in arrival order.
func (s *Store) List() ([]wish.Wish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listDoc(s.doc)
}

func listDoc(doc *automerge.Doc) ([]wish.Wish, error) {
	values, err := doc.Path("wishes").Map().Values()
	if err != nil {
		return nil, fmt.Errorf("failed to read wishes: %w", err)
	}
	entries := make([]entry, 0, len(values))
	for id, v := range values {
		e, err := decodeEntry(id, v)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].seq != entries[j].seq {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].wish.ID < entries[j].wish.ID
	})
	out := make([]wish.Wish, len(entries))
	for i, e := range entries {
		out[i] = e.wish
	}
	return out, nil
}

func decodeEntry(id string, v *automerge.Value) (entry, error) {
	if v.Kind() != automerge.KindMap {
		return entry{}, fmt.Errorf("wish %s is a %s, not a map", id, v.Kind())
	}
	m := v.Map()
	name, err := automerge.As[string](m.Get("childName"))
	if err != nil {
		return entry{}, fmt.Errorf("failed to read name of %s: %w", id, err)
	}
	photo, err := automerge.As[string](m.Get("photoUrl"))
	if err != nil {
		return entry{}, fmt.Errorf("failed to read photo of %s: %w", id, err)
	}
	seq, err := automerge.As[int64](m.Get("seq"))
	if err != nil {
		return entry{}, fmt.Errorf("failed to read seq of %s: %w", id, err)
	}
	return entry{wish: wish.Wish{ID: id, ChildName: name, PhotoURL: photo}, seq: seq}, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Path("wishes").Map().Len()
}

func (s *Store) Get(id string) (wish.Wish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.doc.Path("wishes", id).Get()
	if err != nil {
		return wish.Wish{}, fmt.Errorf("failed to read wish: %w", err)
	}
	if v.Kind() == automerge.KindVoid {
		return wish.Wish{}, ErrNotFound
	}
	e, err := decodeEntry(id, v)
	if err != nil {
		return wish.Wish{}, err
	}
	return e.wish, nil
}

// Add records a new wish at the end of the board.
func (s *Store) Add(w wish.Wish) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter := s.doc.Path("nextSeq").Counter()
	if err := counter.Inc(1); err != nil {
		return fmt.Errorf("failed to increment sequence: %w", err)
	}
	seq, err := counter.Get()
	if err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}
	if err := s.doc.Path("wishes", w.ID).Set(map[string]any{
		"childName": w.ChildName,
		"photoUrl":  w.PhotoURL,
		"seq":       seq,
	}); err != nil {
		return fmt.Errorf("failed to set wish: %w", err)
	}
	if _, err := commit(s.doc, "add "+w.ID); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishes := s.doc.Path("wishes").Map()
	v, err := wishes.Get(id)
	if err != nil {
		return fmt.Errorf("failed to read wish: %w", err)
	}
	if v.Kind() == automerge.KindVoid {
		return ErrNotFound
	}
	if err := wishes.Delete(id); err != nil {
		return fmt.Errorf("failed to delete wish: %w", err)
	}
	if _, err := commit(s.doc, "delete "+id); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Clear removes every wish and returns how many there were.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishes := s.doc.Path("wishes").Map()
	keys, err := wishes.Keys()
	if err != nil {
		return 0, fmt.Errorf("failed to list wishes: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	for _, k := range keys {
		if err := wishes.Delete(k); err != nil {
			return 0, fmt.Errorf("failed to delete wish: %w", err)
		}
	}
	if _, err := commit(s.doc, "clear"); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return len(keys), nil
}

func (s *Store) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return themeOf(s.doc)
}

func themeOf(doc *automerge.Doc) string {
	theme, err := automerge.As[string](doc.Path("theme").Get())
	if err != nil || theme == "" {
		return "default"
	}
	return theme
}

// ReadDoc returns the wishes and theme held by a board document, such as one
// dumped by the relay on shutdown.
func ReadDoc(doc *automerge.Doc) ([]wish.Wish, string, error) {
	wishes, err := listDoc(doc)
	if err != nil {
		return nil, "", err
	}
	return wishes, themeOf(doc), nil
}

// Describe summarises a board document in one line. It labels history graphs.
func Describe(doc *automerge.Doc) (string, error) {
	wishes, theme, err := ReadDoc(doc)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("wishes=%d theme=%s", len(wishes), theme), nil
}

func (s *Store) SetTheme(theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.doc.Path("theme").Set(theme); err != nil {
		return fmt.Errorf("failed to set theme: %w", err)
	}
	if _, err := commit(s.doc, "theme "+theme); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Save returns the serialized document.
func (s *Store) Save() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Save()
}

// Fork returns an independent copy of the document, for inspection.
func (s *Store) Fork() (*automerge.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Fork()
}

// Backup writes the document to sqlite if it changed since the last backup.
// It reports whether a write happened.
func (s *Store) Backup(ctx context.Context) (bool, error) {
	s.backupMu.Lock()
	defer s.backupMu.Unlock()

	s.mu.Lock()
	content := base64.StdEncoding.EncodeToString(s.doc.Save())
	heads := s.doc.Heads()
	s.mu.Unlock()

	if content == s.saved {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE boards SET content = ? WHERE id = ? AND content != ?`,
		content, s.id, content,
	)
	if err != nil {
		return false, fmt.Errorf("failed to backup doc in database: %w", err)
	}
	s.saved = content
	if r, _ := res.RowsAffected(); r > 0 {
		slog.Info("backed up", "board", s.id, "heads", heads)
		return true, nil
	}
	return false, nil
}
