// Package reconcile keeps a display's board in step with the relay.
//
// The relay sends one snapshot after each connect and incremental events
// afterwards. Events that race ahead of the snapshot are held back and
// replayed once it lands, so the outcome never depends on arrival order
// around a reconnect.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/astromechza/wishboard/pkg/effects"
	"github.com/astromechza/wishboard/pkg/wish"
)

const (
	DefaultBufferSize      = 256
	DefaultSnapshotTimeout = 500 * time.Millisecond
)

type State int32

const (
	StateUnsynced State = iota
	StateSyncing
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateUnsynced:
		return "unsynced"
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Applier mutates the board. Every method must be idempotent; the bool
// results report whether anything actually changed.
type Applier interface {
	ResetTo(wishes []wish.Wish)
	Admit(w wish.Wish) bool
	Evict(id string) bool
	ClearAll()
	Spotlight(w wish.Wish) bool
	SpotlightOff() bool
	SetTheme(theme string)
	MarkStale()
}

type Effects interface {
	Dispatch(kind effects.Kind, w wish.Wish)
}

// SnapshotRequester asks the relay to send the snapshot again.
type SnapshotRequester interface {
	RequestSnapshot()
}

type Option func(*Machine)

func WithBufferSize(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.bufferSize = n
		}
	}
}

func WithSnapshotTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.snapshotTimeout = d
		}
	}
}

func WithRequester(r SnapshotRequester) Option {
	return func(m *Machine) {
		m.requester = r
	}
}

// Machine is driven by a single goroutine, either Run or a test calling
// Handle directly. State may be read from anywhere.
type Machine struct {
	board     Applier
	fx        Effects
	requester SnapshotRequester

	bufferSize      int
	snapshotTimeout time.Duration

	state  atomic.Int32
	early  []Message
	rearm  bool
	resync atomic.Int64
}

func New(board Applier, fx Effects, opts ...Option) *Machine {
	m := &Machine{
		board:           board,
		fx:              fx,
		bufferSize:      DefaultBufferSize,
		snapshotTimeout: DefaultSnapshotTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) State() State {
	return State(m.state.Load())
}

// Resyncs counts snapshots applied so far.
func (m *Machine) Resyncs() int64 {
	return m.resync.Load()
}

// Buffered is the number of events waiting for a snapshot.
func (m *Machine) Buffered() int {
	return len(m.early)
}

func (m *Machine) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		slog.Debug("sync state changed", "from", old, "to", s)
	}
}

// Handle applies one message.
func (m *Machine) Handle(msg Message) {
	switch msg.Kind {
	case KindConnected:
		m.early = m.early[:0]
		m.setState(StateSyncing)
		m.rearm = true
	case KindDisconnected:
		if n := len(m.early); n > 0 {
			slog.Debug("discarding buffered events", "count", n)
		}
		m.early = m.early[:0]
		m.board.MarkStale()
		m.setState(StateUnsynced)
	case KindAllWishes:
		m.applySnapshot(msg.Wishes)
	case KindThemeChange:
		m.board.SetTheme(msg.Theme)
	default:
		if !msg.Kind.incremental() {
			slog.Warn("ignoring unknown message", "kind", msg.Kind)
			return
		}
		if m.State() != StateSynced {
			m.buffer(msg)
			return
		}
		m.apply(msg)
	}
}

func (m *Machine) buffer(msg Message) {
	if len(m.early) >= m.bufferSize {
		slog.Warn("early event buffer full, dropping oldest", "size", m.bufferSize, "dropped", m.early[0].Kind)
		copy(m.early, m.early[1:])
		m.early = m.early[:len(m.early)-1]
	}
	m.early = append(m.early, msg)
}

func (m *Machine) applySnapshot(wishes []wish.Wish) {
	m.board.ResetTo(wishes)
	m.setState(StateSynced)
	m.resync.Add(1)
	slog.Info("board synced", "wishes", len(wishes), "replaying", len(m.early))

	replay := m.early
	m.early = nil
	for _, msg := range replay {
		m.apply(msg)
	}
	m.early = replay[:0]
}

func (m *Machine) apply(msg Message) {
	switch msg.Kind {
	case KindNewWish:
		if m.board.Admit(msg.Wish) {
			m.dispatch(effects.KindNewWish, msg.Wish)
		} else {
			slog.Debug("new-wish not admitted", "id", msg.Wish.ID)
		}
	case KindWishDeleted:
		if !m.board.Evict(msg.ID) {
			slog.Debug("wish-deleted for unknown wish", "id", msg.ID)
		}
	case KindAllCleared:
		m.board.ClearAll()
		m.dispatch(effects.KindCleared, wish.Wish{})
	case KindSpotlight:
		if m.board.Spotlight(msg.Wish) {
			m.dispatch(effects.KindSpotlight, msg.Wish)
		}
	case KindSpotlightOff:
		m.board.SpotlightOff()
	}
}

func (m *Machine) dispatch(kind effects.Kind, w wish.Wish) {
	if m.fx != nil {
		m.fx.Dispatch(kind, w)
	}
}

func (m *Machine) snapshotOverdue() {
	slog.Warn("no snapshot after connecting, asking again", "waited", m.snapshotTimeout)
	if m.requester != nil {
		m.requester.RequestSnapshot()
	}
	m.rearm = true
}

// Run consumes messages until ctx is done or in is closed.
func (m *Machine) Run(ctx context.Context, in <-chan Message) error {
	timer := time.NewTimer(m.snapshotTimeout)
	timer.Stop()
	defer timer.Stop()
	var overdue <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			m.Handle(msg)
		case <-overdue:
			if m.State() == StateSyncing {
				m.snapshotOverdue()
			}
		}

		if m.rearm {
			m.rearm = false
			timer.Reset(m.snapshotTimeout)
			overdue = timer.C
		}
		if overdue != nil && m.State() != StateSyncing {
			timer.Stop()
			overdue = nil
		}
	}
}
