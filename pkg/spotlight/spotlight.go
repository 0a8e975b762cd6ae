// Package spotlight follows the relay's single focused wish.
//
// The relay is the only writer. A display never picks a spotlight itself, it
// only mirrors what it is told, with one wrinkle: a spotlight can arrive
// before the new-wish that admits it. Such an id is held as pending for a
// short window and promoted if the wish turns up in time.
package spotlight

import (
	"log/slog"
	"time"
)

const DefaultPendingWindow = 500 * time.Millisecond

// Arbiter is not safe for concurrent use; the board serializes access to it
// together with the registry.
type Arbiter struct {
	window time.Duration

	active string

	pending        string
	pendingExpires time.Time
}

func New(window time.Duration) *Arbiter {
	if window < 0 {
		window = 0
	}
	return &Arbiter{window: window}
}

// Set makes id the spotlight. When present is false the id is not in the
// registry yet and is only remembered as pending. Any previous spotlight is
// dropped in the same step. It returns true if the focus changed.
func (a *Arbiter) Set(id string, present bool, now time.Time) bool {
	if present {
		changed := a.active != id
		a.active = id
		a.pending = ""
		return changed
	}
	changed := a.active != "" || a.pending != id
	a.active = ""
	if a.window == 0 {
		slog.Warn("spotlight for unknown wish ignored", "id", id)
		a.pending = ""
		return changed
	}
	slog.Debug("spotlight for unknown wish pending", "id", id, "window", a.window)
	a.pending = id
	a.pendingExpires = now.Add(a.window)
	return changed
}

// Clear drops both the active and any pending spotlight. It returns true if
// there was anything to clear.
func (a *Arbiter) Clear() bool {
	changed := a.active != "" || a.pending != ""
	a.active = ""
	a.pending = ""
	return changed
}

// Current is the focused wish, which is always present in the registry.
func (a *Arbiter) Current() (string, bool) {
	return a.active, a.active != ""
}

func (a *Arbiter) Pending() (string, bool) {
	return a.pending, a.pending != ""
}

// Admitted promotes a pending spotlight once its wish has been admitted. It
// returns true if id became the spotlight.
func (a *Arbiter) Admitted(id string, now time.Time) bool {
	if a.pending == "" || a.pending != id {
		return false
	}
	if now.After(a.pendingExpires) {
		a.expire()
		return false
	}
	a.active = id
	a.pending = ""
	return true
}

// Evicted keeps Current consistent with the registry when a wish goes away.
func (a *Arbiter) Evicted(id string) bool {
	if a.active == id && id != "" {
		a.active = ""
		return true
	}
	if a.pending == id && id != "" {
		a.pending = ""
	}
	return false
}

// Expire drops a pending spotlight whose window has passed.
func (a *Arbiter) Expire(now time.Time) {
	if a.pending != "" && now.After(a.pendingExpires) {
		a.expire()
	}
}

func (a *Arbiter) expire() {
	slog.Warn("pending spotlight expired before its wish arrived", "id", a.pending)
	a.pending = ""
}
