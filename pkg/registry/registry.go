// Package registry is a display's view of which wishes exist and in which
// order they arrived.
//
// Admit and Evict are idempotent so that an at-least-once bus and replays of
// buffered events can be applied blindly. A delete that arrives before the
// matching create is remembered as a tombstone for a short window; if the
// create shows up inside that window it is suppressed.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/astromechza/wishboard/pkg/wish"
)

const (
	DefaultTombstoneWindow = 2 * time.Second
	DefaultMaxTombstones   = 64
)

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func WithTombstones(window time.Duration, max int) Option {
	return func(r *Registry) {
		r.tombstoneWindow = window
		r.maxTombstones = max
	}
}

type tombstone struct {
	id      string
	expires time.Time
}

type Registry struct {
	mu    sync.RWMutex
	order []wish.Wish
	index map[string]int
	now   func() time.Time

	tombstones      []tombstone
	tombstoneWindow time.Duration
	maxTombstones   int
}

func New(opts ...Option) *Registry {
	r := &Registry{
		index:           make(map[string]int),
		now:             time.Now,
		tombstoneWindow: DefaultTombstoneWindow,
		maxTombstones:   DefaultMaxTombstones,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Admit appends w unless its id is already present or was deleted moments
// ago. It returns true only when a new entry was created.
func (r *Registry) Admit(w wish.Wish) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[w.ID]; ok {
		slog.Debug("duplicate admit ignored", "id", w.ID)
		return false
	}
	if r.consumeTombstoneLocked(w.ID) {
		slog.Warn("admit suppressed by earlier delete", "id", w.ID)
		return false
	}
	r.index[w.ID] = len(r.order)
	r.order = append(r.order, w)
	return true
}

// Evict removes id. An unknown id is recorded as a tombstone and false is
// returned.
func (r *Registry) Evict(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		r.addTombstoneLocked(id)
		return false
	}
	copy(r.order[pos:], r.order[pos+1:])
	r.order[len(r.order)-1] = wish.Wish{}
	r.order = r.order[:len(r.order)-1]
	delete(r.index, id)
	for i := pos; i < len(r.order); i++ {
		r.index[r.order[i].ID] = i
	}
	return true
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[id]
	return ok
}

func (r *Registry) Get(id string) (wish.Wish, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.index[id]
	if !ok {
		return wish.Wish{}, false
	}
	return r.order[pos], true
}

// All returns a copy of the wishes in insertion order.
func (r *Registry) All() []wish.Wish {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]wish.Wish, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	for i, w := range r.order {
		out[i] = w.ID
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear drops every wish and tombstone in one step.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.index = make(map[string]int)
	r.tombstones = nil
}

// Tombstones reports how many unmatched deletes are still inside their window.
func (r *Registry) Tombstones() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneTombstonesLocked(r.now())
	return len(r.tombstones)
}

func (r *Registry) addTombstoneLocked(id string) {
	now := r.now()
	r.pruneTombstonesLocked(now)
	if r.maxTombstones <= 0 || r.tombstoneWindow <= 0 {
		slog.Warn("delete for unknown wish dropped", "id", id)
		return
	}
	for i := range r.tombstones {
		if r.tombstones[i].id == id {
			r.tombstones[i].expires = now.Add(r.tombstoneWindow)
			return
		}
	}
	if len(r.tombstones) >= r.maxTombstones {
		slog.Warn("tombstone buffer full, dropping oldest", "id", r.tombstones[0].id)
		r.tombstones = r.tombstones[1:]
	}
	slog.Debug("delete for unknown wish buffered", "id", id, "window", r.tombstoneWindow)
	r.tombstones = append(r.tombstones, tombstone{id: id, expires: now.Add(r.tombstoneWindow)})
}

func (r *Registry) consumeTombstoneLocked(id string) bool {
	r.pruneTombstonesLocked(r.now())
	for i, ts := range r.tombstones {
		if ts.id == id {
			r.tombstones = append(r.tombstones[:i], r.tombstones[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) pruneTombstonesLocked(now time.Time) {
	kept := r.tombstones[:0]
	for _, ts := range r.tombstones {
		if now.After(ts.expires) {
			slog.Warn("unmatched delete expired", "id", ts.id)
			continue
		}
		kept = append(kept, ts)
	}
	r.tombstones = kept
}
